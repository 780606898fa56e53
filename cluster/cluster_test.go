package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
)

// TestClusterFormsConnectionAcrossRoster brings up two real Clusters
// over loopback TCP and checks they authenticate and register a
// connection with each other.
func TestClusterFormsConnectionAcrossRoster(t *testing.T) {
	kpA, err := keyid.Generate()
	assert.Nil(t, err)
	kpB, err := keyid.Generate()
	assert.Nil(t, err)

	addrA := "127.0.0.1:18981"
	addrB := "127.0.0.1:18982"
	roster := map[keyid.NodeId]string{
		kpA.NodeId(): addrA,
		kpB.NodeId(): addrB,
	}

	clusterA, err := New(Config{Self: kpA, ListenAddress: addrA, Roster: roster})
	assert.Nil(t, err)
	defer clusterA.Close()

	clusterB, err := New(Config{Self: kpB, ListenAddress: addrB, Roster: roster})
	assert.Nil(t, err)
	defer clusterB.Close()

	clusterA.Run()
	clusterB.Run()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, okA := clusterA.registry.Get(kpB.NodeId())
		_, okB := clusterB.registry.Get(kpA.NodeId())
		if okA && okB {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	_, okA := clusterA.registry.Get(kpB.NodeId())
	_, okB := clusterB.registry.Get(kpA.NodeId())
	assert.True(t, okA)
	assert.True(t, okB)

	snap := clusterA.Snapshot()
	assert.Equal(t, kpA.NodeId(), snap.Self)
	assert.Len(t, snap.Peers, 1)
	assert.Equal(t, kpB.NodeId(), snap.Peers[0].NodeId)
	assert.True(t, snap.Peers[0].Connected)
}
