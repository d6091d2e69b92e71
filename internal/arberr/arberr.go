// Package arberr defines the error taxonomy shared across the engine (spec
// §7): kinds, not type names, so callers dispatch with errors.As rather than
// sentinel comparison.
package arberr

import (
	"errors"
	"fmt"
)

var ErrInvalidDecimals = errors.New("arberr: token decimals out of range [0,36]")

// TransportError wraps RPC/relay connectivity failures: 5xx, timeouts,
// connection resets. Recoverable. The transport layer does not retry them:
// RelayClient and RateLimitedBackend return them to the caller as they are.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError wraps a malformed response, auth failure, or unknown method.
// Non-recoverable for the current bundle.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// AdapterError wraps a pool-missing, decoding, or stale-state failure from a
// single pool adapter call. Localized: the offending quote is dropped and
// path search continues.
type AdapterError struct {
	Venue string
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter[%s]: %s: %v", e.Venue, e.Op, e.Err)
}
func (e *AdapterError) Unwrap() error { return e.Err }

// ValidationError wraps a simulation predicate failure, naming the specific
// failing check (spec §4.7).
type ValidationError struct {
	Check string
	Err   error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation[%s]: %v", e.Check, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigError is detected at startup and prevents engine construction.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config[%s]: %v", e.Field, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// InvariantError signals an internal consistency violation (non-closed
// path, non-monotone optimizer result). Logged and terminates the current
// cycle only, never the engine.
type InvariantError struct {
	What string
}

func (e *InvariantError) Error() string { return "invariant violated: " + e.What }

// NoPool is returned by an adapter when the canonical pool address is the
// zero word.
var ErrNoPool = errors.New("arberr: no pool for requested pair/fee")

// ErrStale is returned by an adapter when the pool's reserve product is zero.
var ErrStale = errors.New("arberr: pool state is stale")

// ErrNoPaths is returned by the optimizer when given an empty path set.
var ErrNoPaths = errors.New("arberr: no paths to optimize")
