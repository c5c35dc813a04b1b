// Package rle decodes the row-of-runs byte format used by the game's
// row-based image frames (frame.decodeRowBased calls into this package for
// each pixel run's compressed span). The loop mirrors climg.CLImages.Get's
// run-length unpacking of bit-packed spans, but this format's runs are
// whole bytes rather than bit-packed codes.
package rle

import (
	"fmt"

	"dsunres"
)

// Decode reads code bytes from src and writes exactly want output bytes.
// A code byte c is even when the next c/2+1 input bytes should be copied
// verbatim, and odd when one input byte follows and should be repeated
// (c+1)/2 times.
func Decode(src []byte, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	pos := 0
	for len(out) < want {
		if pos >= len(src) {
			return nil, dsunres.Wrap(dsunres.OutOfRange, "rle.Decode",
				fmt.Errorf("ran out of input after producing %d/%d bytes", len(out), want))
		}
		c := src[pos]
		pos++
		if c%2 == 0 {
			n := int(c)/2 + 1
			if pos+n > len(src) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, "rle.Decode",
					fmt.Errorf("literal run of %d bytes exceeds input", n))
			}
			for i := 0; i < n && len(out) < want; i++ {
				out = append(out, src[pos+i])
			}
			pos += n
		} else {
			if pos >= len(src) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, "rle.Decode",
					fmt.Errorf("repeat run missing its byte"))
			}
			b := src[pos]
			pos++
			n := (int(c) + 1) / 2
			for i := 0; i < n && len(out) < want; i++ {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
