package parity

import "errors"

// Configuration-kind errors (see SPEC_FULL.md's error handling design):
// problems with a Configuration value itself, detected once at
// startup rather than at runtime.
var (
	ErrConfigWorkerThreads   = errors.New("parity: worker threads below minimum")
	ErrConfigPrivateKey      = errors.New("parity: missing self keypair")
	ErrConfigListenAddress   = errors.New("parity: invalid listen address")
	ErrConfigRoster          = errors.New("parity: empty roster")
	ErrConfigSelfNotInRoster = errors.New("parity: self keypair not a member of the roster")
	// ErrInvalidNodeAddress is returned by ParsePeerAddress for any
	// address whose host is not already a numeric literal: the roster
	// is fixed at startup and must never depend on DNS resolution.
	ErrInvalidNodeAddress = errors.New("parity: invalid node address")
)
