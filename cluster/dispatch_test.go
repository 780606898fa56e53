package cluster

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/session"
	"github.com/sjeohp/parity/wire"
)

type sentMessage struct {
	to  keyid.NodeId
	msg wire.Message
}

func newRecordingDispatcher(self keyid.NodeId) (*Dispatcher, *[]sentMessage) {
	var mu sync.Mutex
	var sent []sentMessage
	d := NewDispatcher(self, session.NewRegistry(), func(peer keyid.NodeId, msg wire.Message) {
		mu.Lock()
		sent = append(sent, sentMessage{peer, msg})
		mu.Unlock()
	})
	return d, &sent
}

func fakeConnection(t *testing.T, peer keyid.NodeId) *Connection {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return NewConnection(peer, "addr", DirectionInbound, a)
}

func TestDispatcherCreatesEncryptionSessionOnInitialize(t *testing.T) {
	self, err := keyid.Generate()
	assert.Nil(t, err)
	peer, err := keyid.Generate()
	assert.Nil(t, err)

	d, sent := newRecordingDispatcher(self.NodeId())
	conn := fakeConnection(t, peer.NodeId())

	id, err := wire.NewSessionId()
	assert.Nil(t, err)
	init := wire.NewInitializeSession(id, 1, []keyid.NodeId{self.NodeId(), peer.NodeId()})

	env := &wire.Envelope{Kind: wire.KindEncryption, Message: init}
	d.Dispatch(peer.NodeId(), conn, env)

	got, err := d.sessions.GetEncryption(id)
	assert.Nil(t, err)
	assert.Equal(t, id, got.ID())

	assert.Len(t, *sent, 1)
	_, ok := (*sent)[0].msg.(*wire.ConfirmInitialization)
	assert.True(t, ok)
}

func TestDispatcherRefusesDecryption(t *testing.T) {
	self, err := keyid.Generate()
	assert.Nil(t, err)
	peer, err := keyid.Generate()
	assert.Nil(t, err)

	d, sent := newRecordingDispatcher(self.NodeId())
	conn := fakeConnection(t, peer.NodeId())

	id, err := wire.NewSessionId()
	assert.Nil(t, err)
	msg := wire.NewDecryptionInitializeSession(id, 1, []keyid.NodeId{self.NodeId(), peer.NodeId()})
	env := &wire.Envelope{Kind: wire.KindDecryption, Message: msg}
	d.Dispatch(peer.NodeId(), conn, env)

	assert.Len(t, *sent, 1)
	errMsg, ok := (*sent)[0].msg.(*wire.SessionError)
	assert.True(t, ok)
	assert.Equal(t, id, errMsg.Session)
}
