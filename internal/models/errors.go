package models

import "errors"

// Error taxonomy for the resolution pipeline. Callers distinguish these with
// errors.Is; everything else is treated as an internal failure.
var (
	// ErrNotFound means the referenced document does not exist. Reported
	// before any cache read or write.
	ErrNotFound = errors.New("document not found")
	// ErrGeneration means index build or language model invocation failed.
	// No cache mutation occurs when this is returned.
	ErrGeneration = errors.New("answer generation failed")
	// ErrStorage means the answer cache or index store is unreachable.
	ErrStorage = errors.New("storage unavailable")
	// ErrInvalid means the request itself is malformed (empty query,
	// path escaping the knowledge base root).
	ErrInvalid = errors.New("invalid request")
)
