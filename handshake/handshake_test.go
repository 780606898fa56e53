package handshake

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
)

func TestAuthenticateMutual(t *testing.T) {
	initiatorKP, err := keyid.Generate()
	assert.Nil(t, err)
	responderKP, err := keyid.Generate()
	assert.Nil(t, err)

	acceptable := map[keyid.NodeId]struct{}{
		initiatorKP.NodeId(): {},
		responderKP.NodeId(): {},
	}

	a, b := net.Pipe()

	type result struct {
		nc  *NetConnection
		err error
	}
	initiatorCh := make(chan result, 1)
	responderCh := make(chan result, 1)

	go func() {
		nc, err := Authenticate(a, initiatorKP, acceptable, true)
		initiatorCh <- result{nc, err}
	}()
	go func() {
		nc, err := Authenticate(b, responderKP, acceptable, false)
		responderCh <- result{nc, err}
	}()

	ir := <-initiatorCh
	rr := <-responderCh

	assert.Nil(t, ir.err)
	assert.Nil(t, rr.err)
	assert.Equal(t, responderKP.NodeId(), ir.nc.NodeId)
	assert.Equal(t, initiatorKP.NodeId(), rr.nc.NodeId)
}

func TestAuthenticateRejectsUnacceptablePeer(t *testing.T) {
	initiatorKP, err := keyid.Generate()
	assert.Nil(t, err)
	responderKP, err := keyid.Generate()
	assert.Nil(t, err)
	strangerKP, err := keyid.Generate()
	assert.Nil(t, err)

	// the responder only accepts a stranger id, never the initiator's.
	acceptable := map[keyid.NodeId]struct{}{
		strangerKP.NodeId(): {},
	}

	a, b := net.Pipe()

	initiatorErrCh := make(chan error, 1)
	responderErrCh := make(chan error, 1)

	go func() {
		_, err := Authenticate(a, initiatorKP, acceptable, true)
		initiatorErrCh <- err
	}()
	go func() {
		_, err := Authenticate(b, responderKP, acceptable, false)
		responderErrCh <- err
	}()

	assert.Equal(t, ErrUnacceptablePeer, <-responderErrCh)
	assert.NotNil(t, <-initiatorErrCh)
}
