package session

import (
	"sync"

	"github.com/sjeohp/parity/consensus"
	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

// EncryptionSession drives threshold key generation: it collects
// confirmations from the nominated node set, activates a job against
// the selected subset once established, disseminates each selected
// node's share, and on completion produces this node's public key
// share response.
type EncryptionSession struct {
	mu sync.Mutex

	id        wire.SessionId
	self      keyid.NodeId
	threshold uint32
	nodes     []keyid.NodeId

	core  *consensus.Consensus[[]byte]
	state State

	disseminated map[keyid.NodeId][]byte
}

// NewEncryptionSession builds a session for id, nominating nodes at
// threshold. self must be a member of nodes.
func NewEncryptionSession(id wire.SessionId, threshold uint32, nodes []keyid.NodeId, self keyid.NodeId) (*EncryptionSession, error) {
	core, err := consensus.New[[]byte](int(threshold), nodes)
	if err != nil {
		return nil, err
	}
	s := &EncryptionSession{
		id:           id,
		self:         self,
		threshold:    threshold,
		nodes:        nodes,
		core:         core,
		state:        StateEstablishing,
		disseminated: make(map[keyid.NodeId][]byte),
	}
	// a node only ever learns of a session it is nominated into, so it
	// confirms its own participation immediately.
	_ = s.core.AcceptOffer(self)
	return s, nil
}

// EncryptionFactory constructs EncryptionSession values; it implements
// Factory.
type EncryptionFactory struct{}

func (EncryptionFactory) New(id wire.SessionId, threshold uint32, nodes []keyid.NodeId, self keyid.NodeId) (Session, error) {
	return NewEncryptionSession(id, threshold, nodes, self)
}

func (s *EncryptionSession) ID() wire.SessionId { return s.id }

func (s *EncryptionSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *EncryptionSession) Nodes() []keyid.NodeId {
	out := make([]keyid.NodeId, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Offer builds the ConfirmInitialization this node owes in response to
// the InitializeSession that created the session.
func (s *EncryptionSession) Offer() *wire.ConfirmInitialization {
	return wire.NewConfirmInitialization(s.id, true)
}

func (s *EncryptionSession) OnConfirmInitialization(from keyid.NodeId, msg *wire.ConfirmInitialization) ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEstablishing {
		return nil, ErrInvalidStateForRequest
	}
	if err := s.core.OfferResponse(from, msg.Accepted); err != nil && err != consensus.ErrConsensusUnreachable {
		return nil, err
	}
	if !s.core.IsEstablished() {
		return nil, nil
	}
	// established: activate and select the job-performing subset, then
	// tell every selected node the session is live.
	if err := s.core.Activate(); err != nil {
		return nil, err
	}
	selected, err := s.core.SelectNodes()
	if err != nil {
		return nil, err
	}
	s.state = StateActive
	out := make([]Outbound, 0, len(selected))
	for _, node := range selected {
		out = append(out, unicast(node, wire.NewCompleteInitialization(s.id))...)
	}
	return out, nil
}

func (s *EncryptionSession) OnCompleteInitialization(from keyid.NodeId, msg *wire.CompleteInitialization) ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateEstablishing:
		if err := s.core.Activate(); err != nil {
			return nil, err
		}
		if _, err := s.core.SelectNodes(); err != nil {
			return nil, err
		}
		s.state = StateActive
		fallthrough
	case StateActive:
		if err := s.core.JobRequestSent(s.self); err != nil && err != consensus.ErrInvalidNodeForRequest {
			return nil, err
		}
		s.state = StateKeysDissemination
		return broadcast(wire.NewKeysDissemination(s.id, s.shareFor(s.self))), nil
	default:
		return nil, nil
	}
}

// shareFor derives this node's (placeholder) key-share payload for
// node. The actual threshold-cryptography math is out of scope; the
// session layer only needs a deterministic, opaque payload to carry
// through the consensus job-response bookkeeping.
func (s *EncryptionSession) shareFor(node keyid.NodeId) []byte {
	share := make([]byte, keyid.Size+len(s.id))
	copy(share, node.Bytes())
	copy(share[keyid.Size:], s.id[:])
	return share
}

func (s *EncryptionSession) OnKeysDissemination(from keyid.NodeId, msg *wire.KeysDissemination) ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateKeysDissemination && s.state != StateActive {
		return nil, ErrInvalidStateForRequest
	}
	s.state = StateKeysDissemination
	s.disseminated[from] = msg.Data

	selected, err := s.core.SelectedNodes()
	if err != nil {
		return nil, err
	}
	for _, node := range selected {
		if _, ok := s.disseminated[node]; !ok {
			return nil, nil
		}
	}
	s.state = StateKeyCheck
	return nil, nil
}

func (s *EncryptionSession) OnComplaint(from keyid.NodeId, msg *wire.Complaint) ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateKeysDissemination && s.state != StateKeyCheck {
		return nil, ErrInvalidStateForRequest
	}
	return broadcast(wire.NewComplaintResponse(s.id, s.disseminated[s.self])), nil
}

func (s *EncryptionSession) OnComplaintResponse(from keyid.NodeId, msg *wire.ComplaintResponse) ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateKeysDissemination && s.state != StateKeyCheck {
		return nil, ErrInvalidStateForRequest
	}
	return nil, nil
}

func (s *EncryptionSession) OnPublicKeyShare(from keyid.NodeId, msg *wire.PublicKeyShare) ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateKeyCheck && s.state != StateCompleted {
		return nil, ErrInvalidStateForRequest
	}
	if err := s.core.JobResponseReceived(from, msg.Share); err != nil {
		return nil, err
	}
	if s.core.State() == consensus.Completed {
		s.state = StateCompleted
	}
	return nil, nil
}

func (s *EncryptionSession) OnSessionError(from keyid.NodeId, msg *wire.SessionError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	return nil
}

func (s *EncryptionSession) OnSessionTimeout() ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.core.SessionTimeouted(); err != nil {
		s.state = StateFailed
		return nil, err
	}
	return nil, nil
}

// StartKeyGenerationPhase fires once the dispatcher's 3-second timer
// elapses after entering KeyCheck. It produces this node's public key
// share and records it as this node's own job response.
func (s *EncryptionSession) StartKeyGenerationPhase() ([]Outbound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateKeyCheck {
		return nil, ErrInvalidStateForRequest
	}
	share := s.shareFor(s.self)
	if err := s.core.JobResponseReceived(s.self, share); err != nil {
		return nil, err
	}
	if s.core.State() == consensus.Completed {
		s.state = StateCompleted
	}
	return broadcast(wire.NewPublicKeyShare(s.id, share)), nil
}
