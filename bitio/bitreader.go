// Package bitio extracts variable-width fields from a byte buffer. It is
// the primitive shared by the planar image codecs (frame.PLAN/PLNR), which
// both need to pull 1..16-bit dictionary codes out of a packed bit stream
// in big-endian bit order. Little-endian bit order is also supported.
package bitio

import (
	"errors"
	"fmt"

	"dsunres"
)

// Endian selects the bit order within each byte a Reader consumes.
type Endian int

const (
	// BigEndian consumes the most significant unread bit of a byte first;
	// the first bits read land in the high-order positions of the result.
	BigEndian Endian = iota
	// LittleEndian consumes the least significant unread bit of a byte
	// first; the first bits read land in the low-order positions of the
	// result.
	LittleEndian
)

var errShortBuffer = errors.New("not enough bits remaining")

// Reader pulls 1..16 bit fields out of a byte slice. It never copies the
// slice and never mutates it; the zero value is not usable, construct one
// with New.
type Reader struct {
	data    []byte
	byteOff int
	bitOff  int // in [0, 8)
	endian  Endian
}

// New returns a Reader over data starting at the first bit of the first
// byte, consuming bits in the given order.
func New(data []byte, endian Endian) *Reader {
	return &Reader{data: data, endian: endian}
}

// BytePos and BitPos report the reader's current position, mostly useful
// for tests asserting an exact end-of-stream offset.
func (r *Reader) BytePos() int { return r.byteOff }
func (r *Reader) BitPos() int  { return r.bitOff }

// Remaining reports whether at least n bits remain unread.
func (r *Reader) Remaining(n int) bool {
	total := len(r.data)*8 - (r.byteOff*8 + r.bitOff)
	return total >= n
}

// Chomp consumes n (1..16) bits and returns them as an unsigned integer.
// Arguments outside range fail with InvalidArgument before any state is
// touched.
func (r *Reader) Chomp(n int) (uint16, error) {
	if n < 1 || n > 16 {
		return 0, dsunres.Wrap(dsunres.InvalidArgument, "bitio.Chomp",
			fmt.Errorf("chomp width must be in 1..16, got %d", n))
	}
	if r.bitOff < 0 || r.bitOff > 7 {
		return 0, dsunres.Wrap(dsunres.InvalidArgument, "bitio.Chomp",
			fmt.Errorf("bit offset must be in 0..7, got %d", r.bitOff))
	}
	if !r.Remaining(n) {
		return 0, dsunres.Wrap(dsunres.OutOfRange, "bitio.Chomp", errShortBuffer)
	}

	var result uint16
	needed := n
	filled := 0
	for needed > 0 {
		b := r.data[r.byteOff]
		available := 8 - r.bitOff
		take := available
		if take > needed {
			take = needed
		}

		var extracted uint16
		var shift int
		if r.endian == LittleEndian {
			maskShift := r.bitOff
			extracted = uint16(b>>uint(maskShift)) & ((1 << uint(take)) - 1)
			shift = filled
		} else {
			maskShift := 8 - r.bitOff - take
			extracted = uint16(b>>uint(maskShift)) & ((1 << uint(take)) - 1)
			shift = needed - take
		}
		result |= extracted << uint(shift)

		r.bitOff += take
		if r.bitOff == 8 {
			r.bitOff = 0
			r.byteOff++
		}
		needed -= take
		filled += take
	}
	return result, nil
}
