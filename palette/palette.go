// Package palette decodes the game's 6-bit-per-channel color tables into
// 8-bit RGB, the way climg.Load's color preload step reads raw palette
// bytes before CLImages.Get scales them per pixel.
package palette

// Color is one 8-bit RGB palette entry.
type Color struct {
	R, G, B uint8
}

// Palette is an ordered list of colors, indexed by palette index.
type Palette []Color

// FromBytes decodes a 3-byte-per-color, 6-bit-per-channel palette. Color i
// is (bytes[3i]*4, bytes[3i+1]*4, bytes[3i+2]*4); a trailing partial triple
// is discarded.
func FromBytes(b []byte) Palette {
	n := len(b) / 3
	p := make(Palette, n)
	for i := 0; i < n; i++ {
		p[i] = Color{
			R: b[3*i] * 4,
			G: b[3*i+1] * 4,
			B: b[3*i+2] * 4,
		}
	}
	return p
}

// Color returns the color at index i and whether the index is in range.
func (p Palette) Color(i int) (r, g, b uint8, ok bool) {
	if i < 0 || i >= len(p) {
		return 0, 0, 0, false
	}
	c := p[i]
	return c.R, c.G, c.B, true
}

// Len reports the number of colors in the palette.
func (p Palette) Len() int { return len(p) }
