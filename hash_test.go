package gnomecache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashString(t *testing.T) {
	// BLAKE3 hash of empty string
	h := HashBytes([]byte{})
	expected := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	require.Equal(t, expected, h.String())
	require.Equal(t, h, HashString(""))
}

func TestHashShortString(t *testing.T) {
	h := HashBytes([]byte("hello"))
	short := h.ShortString()
	require.Len(t, short, 16)
	require.True(t, strings.HasPrefix(h.String(), short))
}

func TestHashDir(t *testing.T) {
	h := HashBytes([]byte("test"))
	dir := h.Dir()
	require.Len(t, dir, 2)
	require.True(t, strings.HasPrefix(h.String(), dir))
}

func TestHashUint64(t *testing.T) {
	var h Hash
	require.Zero(t, h.Uint64())

	h[7] = 1
	require.Equal(t, uint64(1), h.Uint64())

	h[0] = 0x80
	require.Equal(t, uint64(0x8000000000000001), h.Uint64())
}
