// Package placeholder renders the synthetic portrait shown when a gnome's
// photo cannot be produced.
package placeholder

import (
	"image"
	"image/color"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// Size is the edge length of a placeholder image.
const Size = 100

// textScale enlarges the 7x13 bitmap face to roughly the size of a 30px font.
const textScale = 3

// Palette is the set of background colours a placeholder can have.
var Palette = []color.RGBA{
	{R: 0xff, A: 0xff},                   // red
	{R: 0x44, G: 0x44, B: 0x44, A: 0xff}, // dark gray
	{B: 0xff, A: 0xff},                   // blue
	{R: 0x88, G: 0x88, B: 0x88, A: 0xff}, // gray
}

// Initials returns the letters drawn on a placeholder for name. Names of
// more than two characters containing a space give the upper-cased first
// letters of the first and last words. Shorter names are returned as is,
// and anything else gives its first two characters unchanged.
func Initials(name string) string {
	n := utf8.RuneCountInString(name)
	switch {
	case n > 2 && strings.Contains(name, " "):
		words := strings.Fields(name)
		if len(words) == 0 {
			return ""
		}
		first, _ := utf8.DecodeRuneInString(words[0])
		last, _ := utf8.DecodeRuneInString(words[len(words)-1])
		return strings.ToUpper(string(first) + string(last))
	case n < 2:
		return name
	default:
		_, w1 := utf8.DecodeRuneInString(name)
		_, w2 := utf8.DecodeRuneInString(name[w1:])
		return name[:w1+w2]
	}
}

// Background returns the palette colour for name. The same name always
// gets the same colour.
func Background(name string) color.RGBA {
	return Palette[gnomecache.HashString(name).Uint64()%uint64(len(Palette))]
}

// Generate renders a Size x Size image with the initials of name in white
// on a solid background.
func Generate(name string) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Background(name)), image.Point{}, draw.Src)

	text := Initials(name)
	if text == "" {
		return dst
	}

	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	if width == 0 {
		return dst
	}

	glyphs := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scaled := image.Rect(0, 0, width*textScale, height*textScale)
	offset := image.Pt((Size-scaled.Dx())/2, (Size-scaled.Dy())/2)
	draw.NearestNeighbor.Scale(dst, scaled.Add(offset), glyphs, glyphs.Bounds(), draw.Over, nil)
	return dst
}

// Or returns img when err is nil and a placeholder for name otherwise.
func Or(img image.Image, err error, name string) image.Image {
	if err == nil && img != nil {
		return img
	}
	return Generate(name)
}
