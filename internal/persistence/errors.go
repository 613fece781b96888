package persistence

import "errors"

var (
	// ErrContextClosed is returned when work is submitted to a closed context.
	ErrContextClosed = errors.New("persistence: context is closed")

	// ErrStoreUnavailable is returned while the store is destroyed and not yet recreated.
	ErrStoreUnavailable = errors.New("persistence: store is not available")

	// ErrControllerClosed is returned by lifecycle operations after Close.
	ErrControllerClosed = errors.New("persistence: controller is closed")
)

// PanicError wraps a panic raised inside a job so the context's worker
// survives it.
type PanicError struct {
	Context string
	Value   any
}

func (e *PanicError) Error() string {
	return "persistence: job on context " + e.Context + " panicked"
}
