package wire

import (
	"github.com/sjeohp/parity/keyid"
)

// KeepAlive carries no payload; receipt alone refreshes the sender's
// last-activity timestamp in the connection registry.
type KeepAlive struct{ base }

func NewKeepAlive() *KeepAlive { return &KeepAlive{base{"KeepAlive"}} }

func (m *KeepAlive) Marshal() ([]byte, error)    { return nil, nil }
func (m *KeepAlive) Unmarshal(data []byte) error { return nil }

// InitializeSession proposes a new encryption session over a nominated
// node set with the given threshold.
type InitializeSession struct {
	base
	Session   SessionId
	Threshold uint32
	Nodes     []keyid.NodeId
}

func NewInitializeSession(session SessionId, threshold uint32, nodes []keyid.NodeId) *InitializeSession {
	return &InitializeSession{base{"InitializeSession"}, session, threshold, nodes}
}

func (m *InitializeSession) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, m.Session[:]...)
	buf = putUint32(buf, m.Threshold)
	buf = putNodeIds(buf, m.Nodes)
	return buf, nil
}

func (m *InitializeSession) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	threshold, err := r.uint32()
	if err != nil {
		return err
	}
	nodes, err := r.nodeIds()
	if err != nil {
		return err
	}
	m.Session, m.Threshold, m.Nodes = session, threshold, nodes
	return nil
}

// ConfirmInitialization answers an InitializeSession offer.
type ConfirmInitialization struct {
	base
	Session  SessionId
	Accepted bool
}

func NewConfirmInitialization(session SessionId, accepted bool) *ConfirmInitialization {
	return &ConfirmInitialization{base{"ConfirmInitialization"}, session, accepted}
}

func (m *ConfirmInitialization) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 17)
	buf = append(buf, m.Session[:]...)
	if m.Accepted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

func (m *ConfirmInitialization) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	if len(r.data)-r.off < 1 {
		return ErrUnknownKind
	}
	accepted := r.data[r.off] != 0
	r.off++
	m.Session, m.Accepted = session, accepted
	return nil
}

// CompleteInitialization announces that the sender has activated the
// session and selected its job-performing subset.
type CompleteInitialization struct {
	base
	Session SessionId
}

func NewCompleteInitialization(session SessionId) *CompleteInitialization {
	return &CompleteInitialization{base{"CompleteInitialization"}, session}
}

func (m *CompleteInitialization) Marshal() ([]byte, error) {
	return append([]byte(nil), m.Session[:]...), nil
}

func (m *CompleteInitialization) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	m.Session = session
	return nil
}

// KeysDissemination carries one node's opaque key-share material
// toward every other selected node.
type KeysDissemination struct {
	base
	Session SessionId
	Data    []byte
}

func NewKeysDissemination(session SessionId, data []byte) *KeysDissemination {
	return &KeysDissemination{base{"KeysDissemination"}, session, data}
}

func (m *KeysDissemination) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 16+4+len(m.Data))
	buf = append(buf, m.Session[:]...)
	buf = putBytes(buf, m.Data)
	return buf, nil
}

func (m *KeysDissemination) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	payload, err := r.bytes()
	if err != nil {
		return err
	}
	m.Session, m.Data = session, payload
	return nil
}

// Complaint accuses a node of sending a malformed or invalid share.
type Complaint struct {
	base
	Session SessionId
	Against keyid.NodeId
	Reason  string
}

func NewComplaint(session SessionId, against keyid.NodeId, reason string) *Complaint {
	return &Complaint{base{"Complaint"}, session, against, reason}
}

func (m *Complaint) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 16+keyid.Size+4+len(m.Reason))
	buf = append(buf, m.Session[:]...)
	buf = append(buf, m.Against.Bytes()...)
	buf = putString(buf, m.Reason)
	return buf, nil
}

func (m *Complaint) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	if len(r.data)-r.off < keyid.Size {
		return ErrUnknownKind
	}
	against, err := keyid.Parse(r.data[r.off : r.off+keyid.Size])
	if err != nil {
		return err
	}
	r.off += keyid.Size
	reason, err := r.string()
	if err != nil {
		return err
	}
	m.Session, m.Against, m.Reason = session, against, reason
	return nil
}

// ComplaintResponse is the accused node's rebuttal evidence.
type ComplaintResponse struct {
	base
	Session  SessionId
	Response []byte
}

func NewComplaintResponse(session SessionId, response []byte) *ComplaintResponse {
	return &ComplaintResponse{base{"ComplaintResponse"}, session, response}
}

func (m *ComplaintResponse) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 16+4+len(m.Response))
	buf = append(buf, m.Session[:]...)
	buf = putBytes(buf, m.Response)
	return buf, nil
}

func (m *ComplaintResponse) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	response, err := r.bytes()
	if err != nil {
		return err
	}
	m.Session, m.Response = session, response
	return nil
}

// PublicKeyShare carries one node's share of the jointly generated
// public key once key generation has completed.
type PublicKeyShare struct {
	base
	Session SessionId
	Share   []byte
}

func NewPublicKeyShare(session SessionId, share []byte) *PublicKeyShare {
	return &PublicKeyShare{base{"PublicKeyShare"}, session, share}
}

func (m *PublicKeyShare) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 16+4+len(m.Share))
	buf = append(buf, m.Session[:]...)
	buf = putBytes(buf, m.Share)
	return buf, nil
}

func (m *PublicKeyShare) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	share, err := r.bytes()
	if err != nil {
		return err
	}
	m.Session, m.Share = session, share
	return nil
}

// SessionError reports that a session was aborted, naming why. The
// receiving node drops its local session state on receipt.
type SessionError struct {
	base
	Session SessionId
	Error   string
}

func NewSessionError(session SessionId, reason string) *SessionError {
	return &SessionError{base{"SessionError"}, session, reason}
}

func (m *SessionError) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 16+4+len(m.Error))
	buf = append(buf, m.Session[:]...)
	buf = putString(buf, m.Error)
	return buf, nil
}

func (m *SessionError) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	reason, err := r.string()
	if err != nil {
		return err
	}
	m.Session, m.Error = session, reason
	return nil
}

// DecryptionInitializeSession mirrors InitializeSession for the
// decryption protocol. No concrete decryption implementation exists
// yet (see DecryptionSession in the session package), so this is the
// only decryption message type defined.
type DecryptionInitializeSession struct {
	base
	Session   SessionId
	Threshold uint32
	Nodes     []keyid.NodeId
}

func NewDecryptionInitializeSession(session SessionId, threshold uint32, nodes []keyid.NodeId) *DecryptionInitializeSession {
	return &DecryptionInitializeSession{base{"DecryptionInitializeSession"}, session, threshold, nodes}
}

func (m *DecryptionInitializeSession) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, m.Session[:]...)
	buf = putUint32(buf, m.Threshold)
	buf = putNodeIds(buf, m.Nodes)
	return buf, nil
}

func (m *DecryptionInitializeSession) Unmarshal(data []byte) error {
	r := &reader{data: data}
	session, err := r.sessionID()
	if err != nil {
		return err
	}
	threshold, err := r.uint32()
	if err != nil {
		return err
	}
	nodes, err := r.nodeIds()
	if err != nil {
		return err
	}
	m.Session, m.Threshold, m.Nodes = session, threshold, nodes
	return nil
}
