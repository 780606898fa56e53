package session

import (
	"sync"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

// decryptionKey scopes a decryption session by both its id and the
// node that initiated it: unlike encryption, two distinct peers may
// run decryption sessions with colliding SessionIds without clashing.
type decryptionKey struct {
	id        wire.SessionId
	initiator keyid.NodeId
}

// Registry holds every encryption and decryption session this node is
// currently a participant in.
type Registry struct {
	mu         sync.Mutex
	encryption map[wire.SessionId]Session
	decryption map[decryptionKey]Session
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		encryption: make(map[wire.SessionId]Session),
		decryption: make(map[decryptionKey]Session),
	}
}

// PutEncryption inserts a newly created encryption session, failing
// with ErrDuplicateSessionId if one already exists under id.
func (r *Registry) PutEncryption(id wire.SessionId, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.encryption[id]; ok {
		return ErrDuplicateSessionId
	}
	r.encryption[id] = s
	return nil
}

// GetEncryption looks up the encryption session for id.
func (r *Registry) GetEncryption(id wire.SessionId) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.encryption[id]
	if !ok {
		return nil, ErrInvalidSessionId
	}
	return s, nil
}

// RemoveEncryption drops the encryption session for id, if any.
func (r *Registry) RemoveEncryption(id wire.SessionId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.encryption, id)
}

// PutDecryption inserts a decryption session scoped to (id, initiator).
func (r *Registry) PutDecryption(id wire.SessionId, initiator keyid.NodeId, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := decryptionKey{id, initiator}
	if _, ok := r.decryption[key]; ok {
		return ErrDuplicateSessionId
	}
	r.decryption[key] = s
	return nil
}

// GetDecryption looks up the decryption session for (id, initiator).
func (r *Registry) GetDecryption(id wire.SessionId, initiator keyid.NodeId) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.decryption[decryptionKey{id, initiator}]
	if !ok {
		return nil, ErrInvalidSessionId
	}
	return s, nil
}

// RemoveDecryption drops the decryption session for (id, initiator).
func (r *Registry) RemoveDecryption(id wire.SessionId, initiator keyid.NodeId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.decryption, decryptionKey{id, initiator})
}

// EncryptionSessionIds returns a snapshot of every live encryption
// session id, for status reporting.
func (r *Registry) EncryptionSessionIds() []wire.SessionId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.SessionId, 0, len(r.encryption))
	for id := range r.encryption {
		out = append(out, id)
	}
	return out
}

// Status is one live session's row for operator-facing reporting.
type Status struct {
	ID    wire.SessionId
	Kind  string
	State State
}

// Sessions returns a snapshot of every live session, encryption and
// decryption alike, for the status CLI surface.
func (r *Registry) Sessions() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.encryption)+len(r.decryption))
	for id, s := range r.encryption {
		out = append(out, Status{ID: id, Kind: "encryption", State: s.State()})
	}
	for key, s := range r.decryption {
		out = append(out, Status{ID: key.id, Kind: "decryption", State: s.State()})
	}
	return out
}
