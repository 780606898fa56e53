package parity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
)

func TestVerifyConfig(t *testing.T) {
	config := new(Configuration)

	err := VerifyConfig(config)
	assert.Equal(t, ErrConfigWorkerThreads, err)

	config.WorkerThreads = DefaultWorkerThreads()
	err = VerifyConfig(config)
	assert.Equal(t, ErrConfigPrivateKey, err)

	self, err := keyid.Generate()
	assert.Nil(t, err)
	config.SelfKeyPair = self

	err = VerifyConfig(config)
	assert.Equal(t, ErrConfigListenAddress, err)

	config.ListenAddress = PeerAddress{Host: "127.0.0.1", Port: 9000}
	err = VerifyConfig(config)
	assert.Equal(t, ErrConfigRoster, err)

	peer, err := keyid.Generate()
	assert.Nil(t, err)
	config.Roster = map[keyid.NodeId]PeerAddress{
		peer.NodeId(): {Host: "127.0.0.1", Port: 9001},
	}
	err = VerifyConfig(config)
	assert.Equal(t, ErrConfigSelfNotInRoster, err)

	config.Roster[self.NodeId()] = config.ListenAddress
	assert.Nil(t, VerifyConfig(config))
}

func TestParsePeerAddress(t *testing.T) {
	addr, err := ParsePeerAddress("127.0.0.1:9000")
	assert.Nil(t, err)
	assert.Equal(t, PeerAddress{Host: "127.0.0.1", Port: 9000}, addr)
	assert.Equal(t, "127.0.0.1:9000", addr.String())

	_, err = ParsePeerAddress("example.com:9000")
	assert.Equal(t, ErrInvalidNodeAddress, err)

	_, err = ParsePeerAddress("127.0.0.1")
	assert.Equal(t, ErrInvalidNodeAddress, err)
}
