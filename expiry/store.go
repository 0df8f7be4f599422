// Package expiry persists cache expiry instants in a bbolt database.
//
// Every cached resource has a logical key. The population uses PopulationKey,
// each photo uses PhotoKey(name). A key that has never been written is treated
// as expired rather than as an error.
package expiry

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// PopulationKey is the expiry key for the full gnome population.
const PopulationKey = "entities"

// PhotoKey returns the expiry key for a cached photo.
func PhotoKey(name string) string {
	return "photo_" + name
}

var bucketTimestamps = []byte("cache_timestamps") // key -> 8-byte epoch millis

// Config holds the TTL for each cache class.
type Config struct {
	PopulationTTL time.Duration
	PhotoTTL      time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		PopulationTTL: 15 * time.Minute,
		PhotoTTL:      15 * time.Minute,
	}
}

// Entry is a stored expiry instant.
type Entry struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store implements the cache timestamp store using bbolt.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
	now    func() time.Time
	noSync bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithNoSync disables fsync per transaction.
// Use only for testing.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// New creates a new Store with options. Call Open before use.
func New(opts ...Option) *Store {
	s := &Store{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at the given path, creating it if needed.
func (s *Store) Open(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "creating timestamp directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  s.noSync,
	})
	if err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "opening timestamp database: %w", err)
	}
	s.db = db

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTimestamps)
		return err
	}); err != nil {
		_ = db.Close()
		return gnomecache.Errorf(gnomecache.ErrStorage, "creating bucket %s: %w", bucketTimestamps, err)
	}

	s.logger.Debug("opened timestamp store", "path", path, "noSync", s.noSync)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing timestamp store")
	return s.db.Close()
}

// Valid reports whether key holds an expiry instant that is still in the future.
// A missing key is reported as not valid.
func (s *Store) Valid(ctx context.Context, key string) (bool, error) {
	expiresAt, ok, err := s.Expiry(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return s.now().Before(expiresAt), nil
}

// Expiry returns the stored expiry instant for key.
func (s *Store) Expiry(_ context.Context, key string) (time.Time, bool, error) {
	var (
		expiresAt time.Time
		found     bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketTimestamps).Get([]byte(key))
		if v == nil {
			return nil
		}
		t, err := decodeMillis(v)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		expiresAt, found = t, true
		return nil
	})
	if err != nil {
		return time.Time{}, false, gnomecache.Errorf(gnomecache.ErrStorage, "reading expiry: %w", err)
	}
	return expiresAt, found, nil
}

// Refresh sets the expiry for key to now plus ttl and returns it.
func (s *Store) Refresh(_ context.Context, key string, ttl time.Duration) (time.Time, error) {
	expiresAt := s.now().Add(ttl)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTimestamps).Put([]byte(key), encodeMillis(expiresAt))
	})
	if err != nil {
		return time.Time{}, gnomecache.Errorf(gnomecache.ErrStorage, "writing expiry: %w", err)
	}
	s.logger.Debug("refreshed expiry", "key", key, "expires_at", expiresAt)
	return expiresAt, nil
}

// Invalidate removes key so the next Valid call reports a miss.
func (s *Store) Invalidate(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTimestamps).Delete([]byte(key))
	})
	if err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "deleting expiry: %w", err)
	}
	return nil
}

// List returns every stored entry ordered by key.
func (s *Store) List(_ context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTimestamps).ForEach(func(k, v []byte) error {
			t, err := decodeMillis(v)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			entries = append(entries, Entry{Key: string(k), ExpiresAt: t})
			return nil
		})
	})
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrStorage, "listing expiries: %w", err)
	}
	return entries, nil
}

// encodeMillis stores t as big-endian epoch milliseconds.
func encodeMillis(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli())) //nolint:gosec // round-trips through decodeMillis
	return buf
}

func decodeMillis(b []byte) (time.Time, error) {
	if len(b) != 8 {
		return time.Time{}, fmt.Errorf("invalid timestamp length %d", len(b))
	}
	ms := int64(binary.BigEndian.Uint64(b)) //nolint:gosec // see encodeMillis
	return time.UnixMilli(ms), nil
}
