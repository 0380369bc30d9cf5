package exchange

import "errors"

// Error taxonomy for venue calls. Adapter methods wrap these so callers can
// branch with errors.Is without parsing messages.
var (
	// ErrUpstreamUnavailable marks network failures, timeouts, and 5xx
	// responses. Retried inside the adapter before surfacing.
	ErrUpstreamUnavailable = errors.New("exchange upstream unavailable")

	// ErrUpstreamRejected marks 4xx responses including auth and permission
	// failures. Never retried.
	ErrUpstreamRejected = errors.New("exchange rejected request")

	// ErrInsufficientFunds marks an open rejected for lack of cash.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
