package weather

import (
	"errors"
	"fmt"

	"github.com/i474232898/ambient-history-cache/internal/common"
)

var (
	// ErrRateLimited is returned by providers when the remote API throttles us.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRemote marks any other remote provider failure.
	ErrRemote = errors.New("remote provider error")

	// ErrNoData is returned when the provider answered with no records.
	ErrNoData = errors.New("no data available from device")

	// ErrInvalidArgument is returned for malformed operation arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StorageError wraps an I/O failure of a cache backend.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError describes a reading that cannot be cached.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid reading: " + e.Reason }

// IsRateLimited matches ErrRateLimited as well as third-party errors that
// only say so in their message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return common.ContainsAnyFold(err.Error(), "rate limit", "too many requests")
}

// IsStorageError reports whether err came from a cache backend.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
