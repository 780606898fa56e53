package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sjeohp/parity/keyid"
)

func nodes(n int) []keyid.NodeId {
	out := make([]keyid.NodeId, n)
	for i := range out {
		kp, err := keyid.Generate()
		if err != nil {
			panic(err)
		}
		out[i] = kp.NodeId()
	}
	return out
}

func TestNewRejectsTooFewNominees(t *testing.T) {
	ns := nodes(2)
	_, err := New[int](2, ns)
	assert.Equal(t, ErrInvalidThreshold, err)
}

// Establishing transitions to Established once enough nodes have
// accepted the offer, and node selection becomes available from there.
func TestEstablishmentAndSelection(t *testing.T) {
	ns := nodes(4)
	c, err := New[int](2, ns)
	assert.Nil(t, err)
	assert.Equal(t, Establishing, c.State())

	assert.Nil(t, c.AcceptOffer(ns[0]))
	assert.Equal(t, Establishing, c.State())
	assert.Nil(t, c.AcceptOffer(ns[1]))
	assert.Equal(t, Establishing, c.State())
	assert.Nil(t, c.AcceptOffer(ns[2]))
	assert.Equal(t, Established, c.State())

	assert.Nil(t, c.Activate())
	assert.Equal(t, Active, c.State())

	selected, err := c.SelectNodes()
	assert.Nil(t, err)
	assert.Len(t, selected, 3)
	// ascending order, deterministic
	for i := 1; i < len(selected); i++ {
		assert.True(t, selected[i-1].Less(selected[i]))
	}

	// re-selecting fails
	_, err = c.SelectNodes()
	assert.Equal(t, ErrInvalidStateForRequest, err)
}

// Enough rejections during establishment make the threshold
// permanently unreachable, and every subsequent active-only operation
// then fails.
func TestUnreachableByRejection(t *testing.T) {
	ns := nodes(3)
	c, err := New[int](2, ns)
	assert.Nil(t, err)

	err = c.RejectOffer(ns[0])
	assert.Equal(t, ErrConsensusUnreachable, err)
	assert.Equal(t, Unreachable, c.State())

	// every subsequent active-only operation now fails
	err = c.Activate()
	assert.Equal(t, ErrInvalidStateForRequest, err)
	err = c.AcceptOffer(ns[1])
	assert.Equal(t, ErrInvalidStateForRequest, err)
}

// A node that never responds to its job request can be dropped and
// replaced with a fresh selection while the session stays Active.
func TestActiveRestartOnResponseLoss(t *testing.T) {
	ns := nodes(3)
	c, err := New[string](1, ns)
	assert.Nil(t, err)

	for _, n := range ns {
		assert.Nil(t, c.AcceptOffer(n))
	}
	assert.Equal(t, Established, c.State())

	assert.Nil(t, c.Activate())
	selected, err := c.SelectNodes()
	assert.Nil(t, err)
	assert.Len(t, selected, 2)

	assert.Nil(t, c.JobRequestSent(selected[0]))
	assert.Nil(t, c.JobRequestSent(selected[1]))
	assert.Nil(t, c.JobResponseReceived(selected[0], "ok"))

	restart, err := c.NodeTimeouted(selected[1])
	assert.Nil(t, err)
	assert.True(t, restart)

	_, err = c.SelectedNodes()
	assert.Equal(t, ErrInvalidStateForRequest, err)
	assert.Len(t, c.Responses(), 0)
}

func TestRejectOfferRequiresRequestedNode(t *testing.T) {
	ns := nodes(3)
	c, err := New[int](1, ns)
	assert.Nil(t, err)
	assert.Nil(t, c.AcceptOffer(ns[0]))

	err = c.RejectOffer(ns[0])
	assert.Equal(t, ErrInvalidStateForRequest, err)
}

func TestJobRequestSentValidation(t *testing.T) {
	ns := nodes(3)
	c, err := New[int](1, ns)
	assert.Nil(t, err)
	for _, n := range ns {
		assert.Nil(t, c.AcceptOffer(n))
	}
	assert.Nil(t, c.Activate())
	selected, err := c.SelectNodes()
	assert.Nil(t, err)

	notSelected := ns[0]
	for _, n := range ns {
		found := false
		for _, s := range selected {
			if s == n {
				found = true
			}
		}
		if !found {
			notSelected = n
		}
	}

	err = c.JobRequestSent(notSelected)
	assert.Equal(t, ErrInvalidNodeForRequest, err)

	assert.Nil(t, c.JobRequestSent(selected[0]))
	err = c.JobRequestSent(selected[0])
	assert.Equal(t, ErrInvalidNodeForRequest, err)
}

func TestSessionTimeoutRestartsActiveAndClearsInFlight(t *testing.T) {
	ns := nodes(6)
	c, err := New[int](2, ns)
	assert.Nil(t, err)
	for _, n := range ns {
		assert.Nil(t, c.AcceptOffer(n))
	}
	assert.Nil(t, c.Activate())
	selected, err := c.SelectNodes()
	assert.Nil(t, err)
	for _, n := range selected {
		assert.Nil(t, c.JobRequestSent(n))
	}

	assert.Nil(t, c.SessionTimeouted())
	_, err = c.SelectedNodes()
	assert.Equal(t, ErrInvalidStateForRequest, err)
}

func TestSessionTimeoutUnreachableWhenNotViable(t *testing.T) {
	ns := nodes(3)
	c, err := New[int](2, ns)
	assert.Nil(t, err)
	for _, n := range ns {
		assert.Nil(t, c.AcceptOffer(n))
	}
	assert.Nil(t, c.Activate())
	selected, err := c.SelectNodes()
	assert.Nil(t, err)
	for _, n := range selected {
		assert.Nil(t, c.JobRequestSent(n))
	}

	err = c.SessionTimeouted()
	assert.Equal(t, ErrConsensusUnreachable, err)
	assert.Equal(t, Unreachable, c.State())
}

func TestCompletedSwallowsTimeouts(t *testing.T) {
	ns := nodes(3)
	c, err := New[int](1, ns)
	assert.Nil(t, err)
	for _, n := range ns {
		assert.Nil(t, c.AcceptOffer(n))
	}
	assert.Nil(t, c.Activate())
	selected, err := c.SelectNodes()
	assert.Nil(t, err)
	for _, n := range selected {
		assert.Nil(t, c.JobRequestSent(n))
		assert.Nil(t, c.JobResponseReceived(n, 0))
	}

	// every selected node has now responded, so the consensus is
	// Completed; a node timeout in Completed reports no restart and no
	// error.
	restart, err := c.NodeTimeouted(ns[len(ns)-1])
	assert.Nil(t, err)
	assert.False(t, restart)
}
