package fetch

import (
	"errors"
	"fmt"
)

// TransientError marks timeouts, connection resets, and 5xx responses.
// They are retried inside the fetcher and, if they survive all retries,
// re-enter the queue as retryable failures.
type TransientError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient http %d fetching %s", e.Status, e.URL)
	}
	return fmt.Sprintf("transient error fetching %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable satisfies the queue's routing contract.
func (e *TransientError) Retryable() bool { return true }

// PermanentError marks 4xx responses and other failures that will not
// succeed on retry.
type PermanentError struct {
	URL    string
	Status int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("http %d fetching %s", e.Status, e.URL)
}

// ErrTooLarge is returned when a streaming download exceeds its size
// guard mid-stream.
var ErrTooLarge = errors.New("download exceeds size limit")
