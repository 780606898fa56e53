// Package session drives one threshold-protocol run on top of the
// generic consensus engine: it owns the wire-level handlers for a
// single SessionId and translates protocol messages into consensus
// transitions and outbound replies. Two protocols share this shape —
// encryption (key generation) and decryption — though only encryption
// has a working implementation; see DecryptionSession.
package session

import (
	"errors"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

// State is the session-level lifecycle, a refinement of the
// consensus package's coarser Establishing/Established/Active/
// Completed states with the two key-generation-specific phases
// (KeysDissemination, KeyCheck) spliced into Active.
type State int

const (
	StateEstablishing State = iota
	StateActive
	StateKeysDissemination
	StateKeyCheck
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEstablishing:
		return "Establishing"
	case StateActive:
		return "Active"
	case StateKeysDissemination:
		return "KeysDissemination"
	case StateKeyCheck:
		return "KeyCheck"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

var (
	// ErrInvalidStateForRequest is returned when a handler is called
	// while the session is not in a state that permits it.
	ErrInvalidStateForRequest = errors.New("session: invalid state for request")
	// ErrDuplicateSessionId is returned by a SessionRegistry when a
	// session already exists under the id being inserted.
	ErrDuplicateSessionId = errors.New("session: duplicate session id")
	// ErrInvalidSessionId is returned by a SessionRegistry lookup that
	// finds no session under the given id.
	ErrInvalidSessionId = errors.New("session: invalid session id")
)

// Session is the capability set a dispatcher drives: one handler per
// wire message kind that can carry a SessionId, plus lifecycle hooks
// for starting the protocol and for timeouts.
type Session interface {
	ID() wire.SessionId
	State() State
	// Nodes returns the session's nominated node set, used by a
	// dispatcher to expand a broadcast Outbound into per-peer sends.
	Nodes() []keyid.NodeId

	OnConfirmInitialization(from keyid.NodeId, msg *wire.ConfirmInitialization) ([]Outbound, error)
	OnCompleteInitialization(from keyid.NodeId, msg *wire.CompleteInitialization) ([]Outbound, error)
	OnKeysDissemination(from keyid.NodeId, msg *wire.KeysDissemination) ([]Outbound, error)
	OnComplaint(from keyid.NodeId, msg *wire.Complaint) ([]Outbound, error)
	OnComplaintResponse(from keyid.NodeId, msg *wire.ComplaintResponse) ([]Outbound, error)
	OnPublicKeyShare(from keyid.NodeId, msg *wire.PublicKeyShare) ([]Outbound, error)
	OnSessionError(from keyid.NodeId, msg *wire.SessionError) error
	OnSessionTimeout() ([]Outbound, error)

	// StartKeyGenerationPhase fires once, 3 seconds after the session
	// enters KeyCheck, and produces this node's public key share.
	StartKeyGenerationPhase() ([]Outbound, error)
}

// Outbound pairs a message with the node it should be sent to; a nil
// recipient means "broadcast to every node in the session's nominated
// set (Nodes) other than self".
type Outbound struct {
	To      *keyid.NodeId
	Message wire.Message
}

func broadcast(msg wire.Message) []Outbound { return []Outbound{{nil, msg}} }

func unicast(to keyid.NodeId, msg wire.Message) []Outbound {
	id := to
	return []Outbound{{&id, msg}}
}

// Factory creates a Session for a freshly observed SessionId.
type Factory interface {
	New(id wire.SessionId, threshold uint32, nodes []keyid.NodeId, self keyid.NodeId) (Session, error)
}
