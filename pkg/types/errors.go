package types

import "errors"

// Error kinds returned by the dispatcher and manager. These are sentinel
// values so callers can test with errors.Is across package boundaries; the
// HTTP layer maps them to status codes (see pkg/api).
var (
	// ErrNoWorkerAvailable means the selection policy found no candidate worker.
	ErrNoWorkerAvailable = errors.New("no worker available")
	// ErrOverloaded means the chosen worker's inbound queue is saturated.
	ErrOverloaded = errors.New("worker overloaded")
	// ErrTimeout means a task's deadline elapsed before it completed.
	ErrTimeout = errors.New("task timeout")
	// ErrUpstream wraps an error payload returned by the liteserver itself.
	ErrUpstream = errors.New("upstream error")
	// ErrNotFound signals a missing block/transaction/account.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the caller's input was rejected before dispatch.
	ErrValidation = errors.New("validation error")
	// ErrFatal means the supervisor could not keep a worker alive past quarantine.
	ErrFatal = errors.New("worker slot disabled")
)

// StatusCode maps an error kind to the HTTP status the gateway returns.
// Unrecognized errors default to 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNoWorkerAvailable):
		return 503
	case errors.Is(err, ErrOverloaded):
		return 503
	case errors.Is(err, ErrTimeout):
		return 504
	case errors.Is(err, ErrUpstream):
		return 500
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrValidation):
		return 422
	case errors.Is(err, ErrFatal):
		return 503
	default:
		return 500
	}
}
