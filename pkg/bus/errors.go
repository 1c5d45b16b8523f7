package bus

import "errors"

// Sentinel errors for bus operations.
var (
	// ErrTimeout indicates a correlated wait expired before a matching
	// reply arrived. Distinct from failure: the request may still be in
	// flight.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrClosed indicates the fabric has been disconnected.
	ErrClosed = errors.New("bus is closed")
)
