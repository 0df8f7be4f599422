package gnomecache

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving the stores, the upstream client and the
// repositories matches exactly one of these with errors.Is.
var (
	// ErrTransport is a network failure or a non-2xx upstream response.
	ErrTransport = errors.New("transport error")

	// ErrParse is a malformed or invalid upstream payload.
	ErrParse = errors.New("parse error")

	// ErrStorage is a local read or write failure.
	ErrStorage = errors.New("storage error")

	// ErrDecode is a cached photo that is missing or cannot be decoded.
	ErrDecode = errors.New("decode error")

	// ErrNotFound is returned by lower layers when a key does not exist.
	ErrNotFound = errors.New("not found")
)

// Errorf formats an error that matches kind. Use %w in format to also wrap
// the underlying cause.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)
}

// Kind returns a short label for the kind of err, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
