package session

import (
	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

// DecryptionSession is an explicit rejection stub: no threshold
// decryption implementation exists, so every handler refuses the
// request rather than silently accepting messages it cannot act on.
// The cluster dispatcher never constructs or registers one (it answers
// decryption messages with a SessionError directly), so no decryption
// session appears in a node's Snapshot.
type DecryptionSession struct {
	id wire.SessionId
}

// NewDecryptionSession constructs the stub for id.
func NewDecryptionSession(id wire.SessionId) *DecryptionSession {
	return &DecryptionSession{id: id}
}

// DecryptionFactory constructs DecryptionSession stubs; it implements
// Factory, ignoring threshold/nodes/self since the stub never drives a
// consensus run.
type DecryptionFactory struct{}

func (DecryptionFactory) New(id wire.SessionId, threshold uint32, nodes []keyid.NodeId, self keyid.NodeId) (Session, error) {
	return NewDecryptionSession(id), nil
}

func (s *DecryptionSession) ID() wire.SessionId { return s.id }

func (s *DecryptionSession) State() State { return StateFailed }

func (s *DecryptionSession) Nodes() []keyid.NodeId { return nil }

func (s *DecryptionSession) OnConfirmInitialization(keyid.NodeId, *wire.ConfirmInitialization) ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnCompleteInitialization(keyid.NodeId, *wire.CompleteInitialization) ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnKeysDissemination(keyid.NodeId, *wire.KeysDissemination) ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnComplaint(keyid.NodeId, *wire.Complaint) ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnComplaintResponse(keyid.NodeId, *wire.ComplaintResponse) ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnPublicKeyShare(keyid.NodeId, *wire.PublicKeyShare) ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnSessionError(keyid.NodeId, *wire.SessionError) error {
	return ErrInvalidStateForRequest
}

func (s *DecryptionSession) OnSessionTimeout() ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}

func (s *DecryptionSession) StartKeyGenerationPhase() ([]Outbound, error) {
	return nil, ErrInvalidStateForRequest
}
