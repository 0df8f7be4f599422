package placeholder

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "Tobus Quickwhistle", want: "TQ"},
		{name: "tobus quickwhistle", want: "TQ"},
		{name: "Fizkin Voidbuster Junior", want: "FJ"},
		{name: "A B", want: "AB"},
		{name: "Tobus", want: "To"},
		{name: "to", want: "to"},
		{name: "T", want: "T"},
		{name: "", want: ""},
		{name: "Ñandú Ósmosis", want: "ÑÓ"},
		{name: "Élan", want: "Él"},
		{name: " padded ", want: "PP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Initials(tt.name))
		})
	}
}

func TestBackground_Deterministic(t *testing.T) {
	for _, name := range []string{"Tobus Quickwhistle", "Fizkin Voidbuster", "x"} {
		c := Background(name)
		assert.Contains(t, Palette, c)
		assert.Equal(t, c, Background(name))
	}
}

func TestGenerate(t *testing.T) {
	img := Generate("Tobus Quickwhistle")
	require.Equal(t, image.Rect(0, 0, Size, Size), img.Bounds())

	bg := Background("Tobus Quickwhistle")
	assert.Equal(t, bg, img.RGBAAt(0, 0))
	assert.Equal(t, bg, img.RGBAAt(Size-1, Size-1))

	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	var textPixels int
	for y := range Size {
		for x := range Size {
			if img.RGBAAt(x, y) == white {
				textPixels++
			}
		}
	}
	assert.Positive(t, textPixels, "initials should be drawn in white")
}

func TestGenerate_EmptyName(t *testing.T) {
	img := Generate("")
	bg := Background("")
	for y := range Size {
		for x := range Size {
			require.Equal(t, bg, img.RGBAAt(x, y))
		}
	}
}

func TestOr(t *testing.T) {
	photo := image.NewRGBA(image.Rect(0, 0, 10, 10))

	got := Or(photo, nil, "Tobus Quickwhistle")
	assert.Same(t, photo, got)

	got = Or(nil, gnomecache.Errorf(gnomecache.ErrTransport, "upstream returned 503"), "Tobus Quickwhistle")
	assert.Equal(t, image.Rect(0, 0, Size, Size), got.Bounds())
	assert.Equal(t, Generate("Tobus Quickwhistle"), got)

	got = Or(photo, errors.New("decode"), "Tobus Quickwhistle")
	assert.NotSame(t, photo, got)
}
