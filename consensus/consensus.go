// Package consensus implements the per-session bookkeeping state machine
// described in the key-server cluster design: collect at least
// threshold+1 confirmations from a nominated set of peers, then drive a
// job on a selected subset of confirmed peers, tracking in-flight
// requests and responses until the job completes or consensus becomes
// unreachable.
//
// The engine is synchronous and does no I/O of its own; callers own the
// network side and feed node responses, timeouts, and job results in.
// It is generic over the job response payload type so any threshold
// protocol (key generation, decryption, ...) can reuse it.
package consensus

import (
	"sort"

	"github.com/sjeohp/parity/keyid"
)

// State names the tagged variant the Consensus value currently holds.
type State int

const (
	// Establishing is the initial state: nodes have been offered
	// participation and are responding.
	Establishing State = iota
	// Established means threshold+1 nodes have confirmed.
	Established
	// Active means a job has been started against a selected subset.
	Active
	// Completed means every selected node has responded.
	Completed
	// Unreachable is terminal: consensus can never be established.
	Unreachable
)

func (s State) String() string {
	switch s {
	case Establishing:
		return "Establishing"
	case Established:
		return "Established"
	case Active:
		return "Active"
	case Completed:
		return "Completed"
	case Unreachable:
		return "Unreachable"
	default:
		return "Unknown"
	}
}

// core holds the bookkeeping shared by every non-terminal state: which
// nodes were asked to join, which confirmed, which rejected. The three
// sets are always pairwise disjoint.
type core struct {
	threshold int
	requested map[keyid.NodeId]struct{}
	rejected  map[keyid.NodeId]struct{}
	confirmed map[keyid.NodeId]struct{}
}

func newCore(threshold int, nominated []keyid.NodeId) *core {
	c := &core{
		threshold: threshold,
		requested: make(map[keyid.NodeId]struct{}, len(nominated)),
		rejected:  make(map[keyid.NodeId]struct{}),
		confirmed: make(map[keyid.NodeId]struct{}),
	}
	for _, n := range nominated {
		c.requested[n] = struct{}{}
	}
	return c
}

func (c *core) acceptOffer(node keyid.NodeId) error {
	if _, ok := c.requested[node]; !ok {
		return ErrInvalidStateForRequest
	}
	delete(c.requested, node)
	c.confirmed[node] = struct{}{}
	return nil
}

func (c *core) rejectOffer(node keyid.NodeId) error {
	if _, ok := c.requested[node]; !ok {
		return ErrInvalidStateForRequest
	}
	delete(c.requested, node)
	c.rejected[node] = struct{}{}
	return nil
}

// nodeTimeouted moves node into rejected if it was pending or confirmed.
// It is always legal: a timeout on an unknown node is a no-op.
func (c *core) nodeTimeouted(node keyid.NodeId) {
	_, wasRequested := c.requested[node]
	_, wasConfirmed := c.confirmed[node]
	if wasRequested || wasConfirmed {
		delete(c.requested, node)
		delete(c.confirmed, node)
		c.rejected[node] = struct{}{}
	}
}

func (c *core) viable() bool {
	return len(c.requested)+len(c.confirmed) >= c.threshold+1
}

// active is the bookkeeping added once consensus starts driving a job.
type active[R any] struct {
	core      *core
	selected  map[keyid.NodeId]struct{}
	inFlight  map[keyid.NodeId]struct{}
	responses map[keyid.NodeId]R
}

func newActive[R any](c *core) *active[R] {
	return &active[R]{
		core:      c,
		selected:  make(map[keyid.NodeId]struct{}),
		inFlight:  make(map[keyid.NodeId]struct{}),
		responses: make(map[keyid.NodeId]R),
	}
}

func (a *active[R]) restart() {
	a.selected = make(map[keyid.NodeId]struct{})
	a.inFlight = make(map[keyid.NodeId]struct{})
	a.responses = make(map[keyid.NodeId]R)
}

func (a *active[R]) selectNodes() ([]keyid.NodeId, error) {
	if len(a.selected) != 0 {
		return nil, ErrInvalidStateForRequest
	}

	confirmed := make([]keyid.NodeId, 0, len(a.core.confirmed))
	for n := range a.core.confirmed {
		confirmed = append(confirmed, n)
	}
	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i].Less(confirmed[j]) })

	n := a.core.threshold + 1
	if n > len(confirmed) {
		n = len(confirmed)
	}
	for _, id := range confirmed[:n] {
		a.selected[id] = struct{}{}
	}
	return a.selectedSlice(), nil
}

func (a *active[R]) selectedSlice() []keyid.NodeId {
	out := make([]keyid.NodeId, 0, len(a.selected))
	for n := range a.selected {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (a *active[R]) jobRequestSent(node keyid.NodeId) error {
	if _, ok := a.core.confirmed[node]; !ok {
		return ErrInvalidNodeForRequest
	}
	if _, ok := a.selected[node]; !ok {
		return ErrInvalidNodeForRequest
	}
	if _, ok := a.inFlight[node]; ok {
		return ErrInvalidNodeForRequest
	}
	a.inFlight[node] = struct{}{}
	return nil
}

func (a *active[R]) jobResponseReceived(node keyid.NodeId, response R) error {
	if _, ok := a.inFlight[node]; !ok {
		return ErrInvalidStateForRequest
	}
	delete(a.inFlight, node)
	a.responses[node] = response
	return nil
}

// nodeTimeouted reports whether the node's loss requires the active job
// to restart, i.e. it was in flight or had already responded.
func (a *active[R]) nodeTimeouted(node keyid.NodeId) bool {
	a.core.nodeTimeouted(node)
	_, wasInFlight := a.inFlight[node]
	_, hadResponded := a.responses[node]
	delete(a.inFlight, node)
	delete(a.responses, node)
	return wasInFlight || hadResponded
}

func (a *active[R]) sessionTimeouted() {
	for node := range a.inFlight {
		a.core.nodeTimeouted(node)
	}
	a.restart()
}

// Consensus is the tagged-variant state machine described above,
// parameterized over the type of a job response.
type Consensus[R any] struct {
	state  State
	core   *core
	active *active[R]
}

// New creates a Consensus in the Establishing state. It fails with
// ErrInvalidThreshold if fewer than threshold+1 nodes are nominated.
func New[R any](threshold int, nominated []keyid.NodeId) (*Consensus[R], error) {
	if len(nominated) < threshold+1 {
		return nil, ErrInvalidThreshold
	}
	return &Consensus[R]{
		state: Establishing,
		core:  newCore(threshold, nominated),
	}, nil
}

// State returns the current tagged-variant state.
func (c *Consensus[R]) State() State { return c.state }

// IsEstablished reports whether consensus has at least reached
// Established (including Active/Completed).
func (c *Consensus[R]) IsEstablished() bool {
	switch c.state {
	case Established, Active, Completed:
		return true
	default:
		return false
	}
}

// Threshold returns the threshold this consensus was created with.
func (c *Consensus[R]) Threshold() int { return c.core.threshold }

// OfferResponse dispatches to AcceptOffer or RejectOffer.
func (c *Consensus[R]) OfferResponse(node keyid.NodeId, accepted bool) error {
	if accepted {
		return c.AcceptOffer(node)
	}
	return c.RejectOffer(node)
}

// AcceptOffer records that node confirmed participation.
func (c *Consensus[R]) AcceptOffer(node keyid.NodeId) error {
	switch c.state {
	case Establishing:
		if err := c.core.acceptOffer(node); err != nil {
			return err
		}
		if len(c.core.confirmed) != c.core.threshold+1 {
			return nil
		}
		c.state = Established
		return nil
	case Established, Active, Completed:
		return c.core.acceptOffer(node)
	default:
		return ErrInvalidStateForRequest
	}
}

// RejectOffer records that node declined participation. If the
// remaining nomination can no longer reach threshold+1, consensus
// transitions to Unreachable and ErrConsensusUnreachable is returned.
func (c *Consensus[R]) RejectOffer(node keyid.NodeId) error {
	switch c.state {
	case Establishing:
		if err := c.core.rejectOffer(node); err != nil {
			return err
		}
		if c.core.viable() {
			return nil
		}
	case Established, Active, Completed:
		return c.core.rejectOffer(node)
	default:
		return ErrInvalidStateForRequest
	}

	c.state = Unreachable
	return ErrConsensusUnreachable
}

// Activate starts (or restarts) the job phase, legal from Established
// or Active.
func (c *Consensus[R]) Activate() error {
	switch c.state {
	case Established, Active:
		c.active = newActive[R](c.core)
	default:
		return ErrInvalidStateForRequest
	}
	c.state = Active
	return nil
}

// SelectNodes deterministically selects the first threshold+1 confirmed
// nodes in ascending NodeId order, legal only in Active with no prior
// selection.
func (c *Consensus[R]) SelectNodes() ([]keyid.NodeId, error) {
	if c.state != Active {
		return nil, ErrInvalidStateForRequest
	}
	return c.active.selectNodes()
}

// SelectedNodes returns the previously selected subset.
func (c *Consensus[R]) SelectedNodes() ([]keyid.NodeId, error) {
	if c.state != Active {
		return nil, ErrInvalidStateForRequest
	}
	if len(c.active.selected) == 0 {
		return nil, ErrInvalidStateForRequest
	}
	return c.active.selectedSlice(), nil
}

// JobRequestSent marks node as having an outstanding job request.
func (c *Consensus[R]) JobRequestSent(node keyid.NodeId) error {
	if c.state != Active {
		return ErrInvalidStateForRequest
	}
	return c.active.jobRequestSent(node)
}

// JobResponseReceived records a job response from node, legal in
// Active or Completed. Once every selected node has responded, the
// consensus transitions to Completed.
func (c *Consensus[R]) JobResponseReceived(node keyid.NodeId, response R) error {
	if c.state != Active && c.state != Completed {
		return ErrInvalidStateForRequest
	}
	if err := c.active.jobResponseReceived(node, response); err != nil {
		return err
	}
	if c.state == Active && len(c.active.responses) == len(c.active.selected) {
		c.state = Completed
	}
	return nil
}

// Responses returns a snapshot of the job responses collected so far.
func (c *Consensus[R]) Responses() map[keyid.NodeId]R {
	out := make(map[keyid.NodeId]R, len(c.active.responses))
	for k, v := range c.active.responses {
		out[k] = v
	}
	return out
}

// NodeTimeouted handles the loss of a single node, returning true if
// the caller must restart (resend) job requests.
func (c *Consensus[R]) NodeTimeouted(node keyid.NodeId) (bool, error) {
	switch c.state {
	case Establishing, Established:
		c.core.nodeTimeouted(node)
		if c.core.viable() {
			return false, nil
		}
	case Active:
		restartRequired := c.active.nodeTimeouted(node)
		if c.core.viable() {
			if !restartRequired {
				return false, nil
			}
			c.active.restart()
			return true, nil
		}
	case Completed:
		return false, nil
	default:
		return false, ErrInvalidStateForRequest
	}

	c.state = Unreachable
	return false, ErrConsensusUnreachable
}

// SessionTimeouted applies a session-wide timeout. In Active, every
// in-flight node is rejected and the job restarts.
func (c *Consensus[R]) SessionTimeouted() error {
	switch c.state {
	case Establishing, Established:
		// fall through to the viability check below
	case Active:
		c.active.sessionTimeouted()
	case Completed:
		return nil
	case Unreachable:
		return ErrConsensusUnreachable
	}

	if c.core.viable() {
		return nil
	}

	c.state = Unreachable
	return ErrConsensusUnreachable
}
