// Package parity is one node of a peer-to-peer secret-store key-server
// cluster: it maintains authenticated connections to a fixed roster of
// peers and runs threshold-cryptography sessions over them. Package
// parity itself holds the node's configuration; the cluster, wire,
// handshake, session, and consensus packages provide the transport and
// protocol machinery it wires together.
package parity

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"

	"github.com/sjeohp/parity/keyid"
)

// ConfigMinimumWorkerThreads is the minimum number of worker threads a
// Configuration may request; below this the cluster cannot make
// progress servicing its own maintenance loop alongside connections.
const ConfigMinimumWorkerThreads = 1

// PeerAddress is a roster entry's dial address. Only numeric hosts are
// accepted: the roster is fixed at startup and must never depend on
// DNS resolution succeeding at an arbitrary later time.
type PeerAddress struct {
	Host string
	Port uint16
}

func (a PeerAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ParsePeerAddress parses "host:port", rejecting any host that is not
// already a numeric IPv4/IPv6 literal.
func ParsePeerAddress(s string) (PeerAddress, error) {
	host, portStr, err := splitHostPort(s)
	if err != nil {
		return PeerAddress{}, ErrInvalidNodeAddress
	}
	if !isNumericHost(host) {
		return PeerAddress{}, ErrInvalidNodeAddress
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return PeerAddress{}, ErrInvalidNodeAddress
	}
	return PeerAddress{Host: host, Port: uint16(port)}, nil
}

func splitHostPort(s string) (host, port string, err error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 || idx == len(s)-1 {
		return "", "", errors.New("parity: missing port")
	}
	return s[:idx], s[idx+1:], nil
}

func isNumericHost(host string) bool {
	return net.ParseIP(host) != nil
}

// Configuration holds everything one node needs to join the cluster:
// its own identity, how many workers service connection I/O, where it
// listens, and the fixed roster of every peer (including itself).
type Configuration struct {
	WorkerThreads int
	SelfKeyPair   *keyid.KeyPair
	ListenAddress PeerAddress
	Roster        map[keyid.NodeId]PeerAddress
}

// DefaultWorkerThreads sizes the worker pool to runtime.GOMAXPROCS(0).
func DefaultWorkerThreads() int {
	return runtime.GOMAXPROCS(0)
}

// VerifyConfig validates a Configuration one required field at a time,
// each with its own sentinel error.
func VerifyConfig(c *Configuration) error {
	if c.WorkerThreads < ConfigMinimumWorkerThreads {
		return ErrConfigWorkerThreads
	}
	if c.SelfKeyPair == nil {
		return ErrConfigPrivateKey
	}
	if c.ListenAddress.Port == 0 {
		return ErrConfigListenAddress
	}
	if len(c.Roster) == 0 {
		return ErrConfigRoster
	}
	if _, ok := c.Roster[c.SelfKeyPair.NodeId()]; !ok {
		return ErrConfigSelfNotInRoster
	}
	return nil
}
