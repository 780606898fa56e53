package cluster

import (
	"net"
	"time"

	"github.com/sjeohp/parity/handshake"
	"github.com/sjeohp/parity/keyid"
)

const dialTimeout = 10 * time.Second

// authenticateAccepted runs the authentication handshake as the
// responder over an already-accepted connection. Whether the peer ends
// up kept or dropped for being on the wrong tie-break direction is
// decided afterward by Registry.Insert.
func authenticateAccepted(conn net.Conn, self *keyid.KeyPair, acceptable map[keyid.NodeId]struct{}) (*handshake.NetConnection, error) {
	return handshake.Authenticate(conn, self, acceptable, false)
}

// dialOne dials address and runs the authentication handshake as the
// initiator. Per the connection tie-break rule, only the lower NodeId
// of a pair should ever be dialing; callers enforce that before
// calling dialOne.
func dialOne(address string, self *keyid.KeyPair, acceptable map[keyid.NodeId]struct{}) (*handshake.NetConnection, error) {
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return nil, err
	}
	nc, err := handshake.Authenticate(conn, self, acceptable, true)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return nc, nil
}
