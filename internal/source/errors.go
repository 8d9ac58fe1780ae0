package source

import (
	"errors"
	"fmt"
)

// Common detection source errors.
var (
	// ErrMissingCredentials is returned when a remote source has no usable credentials.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrEmptyResponse is returned when a remote source answered without content.
	ErrEmptyResponse = errors.New("empty response from source")

	// ErrInvalidTokens is returned when a token dump cannot be used.
	ErrInvalidTokens = errors.New("invalid token dump")

	// ErrSourceFailed is returned when a remote call fails.
	ErrSourceFailed = errors.New("detection source failed")
)

// SourceError wraps errors with the failing operation and extra context.
type SourceError struct {
	// Op is the operation that failed (e.g. "DetectTokens").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

func (e *SourceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("source: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("source: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is reports whether the underlying error matches target.
func (e *SourceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Wrap wraps err as a SourceError unless it already is one.
func Wrap(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Op: op, Err: err, Details: details}
}
