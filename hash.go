package gnomecache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashSize is the size of a BLAKE3 hash in bytes (256 bits).
const HashSize = 32

// Hash represents a BLAKE3 256-bit digest.
type Hash [HashSize]byte

// String returns the hex-encoded representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ShortString returns a shortened hex representation, used as a photo name prefix.
func (h Hash) ShortString() string {
	return hex.EncodeToString(h[:8])
}

// Dir returns the first two characters of the hex-encoded hash,
// used for sharding cached photos into subdirectories.
func (h Hash) Dir() string {
	return hex.EncodeToString(h[:1])
}

// Uint64 returns the first eight bytes of the hash as a big-endian integer.
func (h Hash) Uint64() uint64 {
	var v uint64
	for _, b := range h[:8] {
		v = v<<8 | uint64(b)
	}
	return v
}

// HashBytes computes the BLAKE3 hash of the given bytes.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// HashString computes the BLAKE3 hash of a string.
func HashString(s string) Hash {
	return HashBytes([]byte(s))
}
