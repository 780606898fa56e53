package cluster

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
)

func twoNodesOrdered(t *testing.T) (lower, higher keyid.NodeId) {
	for {
		a, err := keyid.Generate()
		assert.Nil(t, err)
		b, err := keyid.Generate()
		assert.Nil(t, err)
		aID, bID := a.NodeId(), b.NodeId()
		if aID.Less(bID) {
			return aID, bID
		}
		if bID.Less(aID) {
			return bID, aID
		}
	}
}

func TestInsertAdmitsFirstConnection(t *testing.T) {
	lower, higher := twoNodesOrdered(t)
	r := NewRegistry(lower)

	a, b := net.Pipe()
	defer b.Close()
	c := NewConnection(higher, "addr", DirectionInbound, a)
	assert.True(t, r.Insert(c))

	got, ok := r.Get(higher)
	assert.True(t, ok)
	assert.Equal(t, c, got)
}

func TestInsertAppliesTieBreakOnConflict(t *testing.T) {
	lower, higher := twoNodesOrdered(t)
	r := NewRegistry(lower)

	// self is lower, so the correct direction toward higher is
	// outbound. An inbound connection from higher arrives first...
	a1, b1 := net.Pipe()
	defer b1.Close()
	wrong := NewConnection(higher, "addr", DirectionInbound, a1)
	assert.True(t, r.Insert(wrong))

	// ...then the correct outbound connection replaces it.
	a2, b2 := net.Pipe()
	defer b2.Close()
	right := NewConnection(higher, "addr", DirectionOutbound, a2)
	assert.True(t, r.Insert(right))

	got, ok := r.Get(higher)
	assert.True(t, ok)
	assert.Equal(t, right, got)

	// the wrong-direction connection was closed by Insert.
	select {
	case <-wrong.closed:
	default:
		t.Fatal("expected replaced connection to be closed")
	}
}

func TestInsertRejectsWrongDirectionWhenCorrectAlreadyHeld(t *testing.T) {
	lower, higher := twoNodesOrdered(t)
	r := NewRegistry(lower)

	a1, b1 := net.Pipe()
	defer b1.Close()
	right := NewConnection(higher, "addr", DirectionOutbound, a1)
	assert.True(t, r.Insert(right))

	a2, b2 := net.Pipe()
	defer b2.Close()
	wrong := NewConnection(higher, "addr", DirectionInbound, a2)
	assert.False(t, r.Insert(wrong))

	got, ok := r.Get(higher)
	assert.True(t, ok)
	assert.Equal(t, right, got)
}

func TestRemoveRequiresSameConnection(t *testing.T) {
	lower, higher := twoNodesOrdered(t)
	r := NewRegistry(lower)

	a, b := net.Pipe()
	defer b.Close()
	c := NewConnection(higher, "addr", DirectionOutbound, a)
	r.Insert(c)

	stale := NewConnection(higher, "addr", DirectionOutbound, a)
	assert.False(t, r.Remove(stale))

	assert.True(t, r.Remove(c))
	_, ok := r.Get(higher)
	assert.False(t, ok)
}

func TestDisconnectedPeersExcludesSelfAndConnected(t *testing.T) {
	self, connected := twoNodesOrdered(t)
	disconnectedKP, err := keyid.Generate()
	assert.Nil(t, err)
	disconnected := disconnectedKP.NodeId()

	r := NewRegistry(self)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	r.Insert(NewConnection(connected, "addr", DirectionOutbound, a))

	roster := []keyid.NodeId{self, connected, disconnected}
	got := r.DisconnectedPeers(roster)
	assert.Equal(t, []keyid.NodeId{disconnected}, got)
}
