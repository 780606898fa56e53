package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/wire"
)

func someNodes(t *testing.T, n int) []keyid.NodeId {
	out := make([]keyid.NodeId, n)
	for i := range out {
		kp, err := keyid.Generate()
		assert.Nil(t, err)
		out[i] = kp.NodeId()
	}
	return out
}

func TestEncryptionSessionFullRun(t *testing.T) {
	nodes := someNodes(t, 3)
	self := nodes[0]
	id, err := wire.NewSessionId()
	assert.Nil(t, err)

	s, err := NewEncryptionSession(id, 2, nodes, self)
	assert.Nil(t, err)
	assert.Equal(t, StateEstablishing, s.State())

	out, err := s.OnConfirmInitialization(nodes[1], wire.NewConfirmInitialization(id, true))
	assert.Nil(t, err)
	assert.Nil(t, out)
	assert.Equal(t, StateEstablishing, s.State())

	out, err = s.OnConfirmInitialization(nodes[2], wire.NewConfirmInitialization(id, true))
	assert.Nil(t, err)
	assert.Equal(t, StateActive, s.State())
	assert.NotEmpty(t, out)

	out, err = s.OnCompleteInitialization(nodes[1], wire.NewCompleteInitialization(id))
	assert.Nil(t, err)
	assert.Equal(t, StateKeysDissemination, s.State())
	assert.Len(t, out, 1)
	dissemination, ok := out[0].Message.(*wire.KeysDissemination)
	assert.True(t, ok)

	// feed every selected node's dissemination, including our own.
	_, err = s.OnKeysDissemination(self, dissemination)
	assert.Nil(t, err)
	for _, n := range nodes {
		if n == self {
			continue
		}
		_, err = s.OnKeysDissemination(n, wire.NewKeysDissemination(id, []byte("share")))
		assert.Nil(t, err)
	}
	assert.Equal(t, StateKeyCheck, s.State())

	out, err = s.StartKeyGenerationPhase()
	assert.Nil(t, err)
	assert.Len(t, out, 1)
	share, ok := out[0].Message.(*wire.PublicKeyShare)
	assert.True(t, ok)
	assert.Equal(t, id, share.Session)
}

func TestEncryptionSessionRejectsHandlersOutOfOrder(t *testing.T) {
	nodes := someNodes(t, 3)
	self := nodes[0]
	id, err := wire.NewSessionId()
	assert.Nil(t, err)
	s, err := NewEncryptionSession(id, 1, nodes, self)
	assert.Nil(t, err)

	_, err = s.OnKeysDissemination(nodes[1], wire.NewKeysDissemination(id, nil))
	assert.Equal(t, ErrInvalidStateForRequest, err)

	_, err = s.StartKeyGenerationPhase()
	assert.Equal(t, ErrInvalidStateForRequest, err)
}

func TestRegistryDuplicateSessionId(t *testing.T) {
	r := NewRegistry()
	nodes := someNodes(t, 3)
	id, err := wire.NewSessionId()
	assert.Nil(t, err)
	s, err := NewEncryptionSession(id, 1, nodes, nodes[0])
	assert.Nil(t, err)

	assert.Nil(t, r.PutEncryption(id, s))
	assert.Equal(t, ErrDuplicateSessionId, r.PutEncryption(id, s))

	got, err := r.GetEncryption(id)
	assert.Nil(t, err)
	assert.Equal(t, s, got)

	r.RemoveEncryption(id)
	_, err = r.GetEncryption(id)
	assert.Equal(t, ErrInvalidSessionId, err)
}

func TestDecryptionSessionAlwaysRejects(t *testing.T) {
	id, err := wire.NewSessionId()
	assert.Nil(t, err)
	s := NewDecryptionSession(id)

	_, err = s.OnConfirmInitialization(keyid.NodeId{}, nil)
	assert.Equal(t, ErrInvalidStateForRequest, err)
	_, err = s.OnSessionTimeout()
	assert.Equal(t, ErrInvalidStateForRequest, err)
	assert.Equal(t, StateFailed, s.State())
}
