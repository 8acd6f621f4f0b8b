package scan

import (
	"errors"
)

// Failure kinds callers can test with errors.Is. The unsupported-* kinds and
// ErrCheckpointRestore fail scan setup synchronously; ErrSnapshotRead
// surfaces at runtime once bounded retries are exhausted.
var (
	ErrUnsupportedChangelogMode   = errors.New("unsupported changelog mode")
	ErrUnsupportedConsistencyMode = errors.New("unsupported consistency mode")
	ErrUnsupportedScanMode        = errors.New("unsupported scan mode")
	ErrSnapshotRead               = errors.New("snapshot read failure")
	ErrCheckpointRestore          = errors.New("checkpoint restore failure")
)

// ScanError wraps errors from polling and split reads and indicates if
// they're retryable.
type ScanError struct {
	Err       error
	Retryable bool
}

func (e *ScanError) Error() string {
	return e.Err.Error()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps an error as retryable
func NewRetryableError(err error) *ScanError {
	return &ScanError{
		Err:       err,
		Retryable: true,
	}
}

// NewTerminalError wraps an error as non-retryable
func NewTerminalError(err error) *ScanError {
	return &ScanError{
		Err:       err,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Retryable
	}

	// Retry if not explicitly marked as non-retryable
	return true
}
