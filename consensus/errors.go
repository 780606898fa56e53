package consensus

import "errors"

var (
	// ErrInvalidThreshold is returned by New when fewer than
	// threshold+1 nodes are nominated.
	ErrInvalidThreshold = errors.New("consensus: invalid threshold")
	// ErrInvalidStateForRequest is returned when an operation is
	// attempted from a state that does not permit it, or against a
	// node that is not in the set the operation expects.
	ErrInvalidStateForRequest = errors.New("consensus: invalid state for request")
	// ErrInvalidNodeForRequest is returned by JobRequestSent when node
	// is not confirmed+selected, or already has a request in flight.
	ErrInvalidNodeForRequest = errors.New("consensus: invalid node for request")
	// ErrConsensusUnreachable is returned once too many nodes have
	// rejected or timed out for threshold+1 to ever be reached again.
	ErrConsensusUnreachable = errors.New("consensus: unreachable")
)
