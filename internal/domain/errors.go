package domain

import (
	"errors"
	"fmt"
)

// ErrIndexCorrupt marks states the core cannot recover from on its own:
// postings referencing missing chunks, or a vector store whose stored
// dimension no longer matches mid-operation. The only remedy is a full
// rebuild of the affected corpus.
var ErrIndexCorrupt = errors.New("index corrupt: full rebuild required")

// ErrDimensionMismatch is returned when a vector's length disagrees
// with the store's configured dimension. A dimension change invalidates
// the whole store.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// InvalidConfigError reports a configuration value rejected at the
// configuration boundary. Operations abort before any mutation.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// IsInvalidConfig reports whether err is an InvalidConfigError.
func IsInvalidConfig(err error) bool {
	var ice *InvalidConfigError
	return errors.As(err, &ice)
}

// ProviderError wraps a failed embedding-provider call. It is non-fatal
// on the automatic write path and reported as a warning during manual
// rebuilds.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
