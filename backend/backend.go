// Package backend stores cached photo files.
package backend

import (
	"context"
	"errors"
	"io"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = gnomecache.ErrNotFound

// ErrInvalidKey is returned for keys that are empty or escape the backend root.
var ErrInvalidKey = errors.New("invalid key")

// Backend stores opaque files under slash-separated keys.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Writer returns a WriteCloser for the given key.
	// The write is only committed when Close returns nil.
	Writer(ctx context.Context, key string) (io.WriteCloser, error)

	// Read retrieves data at the given key.
	// Returns ErrNotFound if the key does not exist.
	// The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Location returns where the key is stored, recorded alongside the
	// photo source so the file can be found again.
	Location(key string) string
}

// Aborter is implemented by writers that can discard an uncommitted write.
type Aborter interface {
	Abort() error
}

// Abort discards w if it supports it, otherwise closes it.
func Abort(w io.WriteCloser) {
	if a, ok := w.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}
