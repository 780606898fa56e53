package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
)

func someNodeId(t *testing.T) keyid.NodeId {
	kp, err := keyid.Generate()
	assert.Nil(t, err)
	return kp.NodeId()
}

func TestKeepAliveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	assert.Nil(t, WriteMessage(&buf, NewKeepAlive()))

	env, err := ReadMessage(&buf)
	assert.Nil(t, err)
	assert.Equal(t, KindCluster, env.Kind)
	assert.IsType(t, &KeepAlive{}, env.Message)
}

func TestInitializeSessionRoundTrip(t *testing.T) {
	session, err := NewSessionId()
	assert.Nil(t, err)
	nodes := []keyid.NodeId{someNodeId(t), someNodeId(t), someNodeId(t)}

	var buf bytes.Buffer
	assert.Nil(t, WriteMessage(&buf, NewInitializeSession(session, 2, nodes)))

	env, err := ReadMessage(&buf)
	assert.Nil(t, err)
	assert.Equal(t, KindEncryption, env.Kind)
	got, ok := env.Message.(*InitializeSession)
	assert.True(t, ok)
	assert.Equal(t, session, got.Session)
	assert.Equal(t, uint32(2), got.Threshold)
	assert.Equal(t, nodes, got.Nodes)
}

func TestComplaintRoundTrip(t *testing.T) {
	session, err := NewSessionId()
	assert.Nil(t, err)
	against := someNodeId(t)

	var buf bytes.Buffer
	assert.Nil(t, WriteMessage(&buf, NewComplaint(session, against, "bad share")))

	env, err := ReadMessage(&buf)
	assert.Nil(t, err)
	got, ok := env.Message.(*Complaint)
	assert.True(t, ok)
	assert.Equal(t, session, got.Session)
	assert.Equal(t, against, got.Against)
	assert.Equal(t, "bad share", got.Reason)
}

func TestSessionErrorRoundTrip(t *testing.T) {
	session, err := NewSessionId()
	assert.Nil(t, err)

	var buf bytes.Buffer
	assert.Nil(t, WriteMessage(&buf, NewSessionError(session, "consensus unreachable")))

	env, err := ReadMessage(&buf)
	assert.Nil(t, err)
	got, ok := env.Message.(*SessionError)
	assert.True(t, ok)
	assert.Equal(t, session, got.Session)
	assert.Equal(t, "consensus unreachable", got.Error)
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = 0xff, 0xff, 0xff, 0x7f
	buf.Write(lenBuf[:])

	_, err := ReadMessage(&buf)
	assert.Equal(t, ErrMessageTooLarge, err)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte{99, 0})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
