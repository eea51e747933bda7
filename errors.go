package cortex

import "errors"

// Sentinel error kinds. Callers use errors.Is against
// these; the Store wraps underlying causes with %w so context survives.
var (
	// ErrNotFound is returned when a referenced memory id does not exist.
	ErrNotFound = errors.New("cortex: not found")
	// ErrInvalidInput marks malformed input: empty title, unknown category
	// or type, bad project characters, or an out-of-range limit.
	ErrInvalidInput = errors.New("cortex: invalid input")
	// ErrStorageBusy indicates a transient SQLITE_BUSY; the store retries
	// once before escalating to ErrStorageError.
	ErrStorageBusy = errors.New("cortex: storage busy")
	// ErrStorageError is a fatal, non-retryable storage failure.
	ErrStorageError = errors.New("cortex: storage error")
	// ErrEmbedderUnavailable marks an embedding computation failure. No
	// function in this package returns it: Engine.Remember stores the memory
	// without a vector and logs the failure each time one occurs.
	ErrEmbedderUnavailable = errors.New("cortex: embedder unavailable")
)
