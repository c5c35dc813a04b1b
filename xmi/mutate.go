package xmi

import (
	"encoding/binary"
	"fmt"
	"sort"

	"dsunres"
)

// obliterate rewrites the 3-byte controller change at offset into a no-op
// (0xBF, 0x00, 0x00) without shifting any surrounding bytes.
func obliterate(body []byte, offset int) error {
	const op = "xmi.obliterate"
	if offset < 0 || offset+3 > len(body) {
		return dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("obliteration at %d exceeds body of %d bytes", offset, len(body)))
	}
	body[offset] = 0xBF
	body[offset+1] = 0x00
	body[offset+2] = 0x00
	return nil
}

// RemoveAPIControl obliterates every CALLBACK message, then every
// INDIRECT_CONTROL message, in that order.
func RemoveAPIControl(s *Scan) error {
	for _, off := range s.ControllerOffsets[Callback] {
		if err := obliterate(s.Body, off); err != nil {
			return err
		}
	}
	for _, off := range s.ControllerOffsets[IndirectControl] {
		if err := obliterate(s.Body, off); err != nil {
			return err
		}
	}
	return nil
}

// LoopPair is a matched FOR/NEXT controller pair, identified by their
// absolute-from-EVNT-start offsets.
type LoopPair struct {
	For  int
	Next int
}

// isInfiniteFor reports whether the FOR at offset for_ has a value byte
// (for_+2) of 0 or 127, the game's MIDI dialect's "loop forever" marker.
func isInfiniteFor(body []byte, for_ int) bool {
	if for_+2 >= len(body) {
		return false
	}
	v := body[for_+2]
	return v == 0 || v == 127
}

// IdentifyInfiniteLoops pairs each NEXT with the greatest unused FOR offset
// strictly less than it (the usual balanced-bracket matching), then keeps
// only pairs whose FOR is infinite. FORs matched to non-infinite loops are
// discarded.
func IdentifyInfiniteLoops(s *Scan) map[int]int {
	fors := append([]int(nil), s.ControllerOffsets[For]...)
	nexts := append([]int(nil), s.ControllerOffsets[Next]...)
	sort.Ints(fors)
	sort.Ints(nexts)

	used := make([]bool, len(fors))
	result := make(map[int]int)

	for _, n := range nexts {
		best := -1
		for i, f := range fors {
			if used[i] || f >= n {
				continue
			}
			if best == -1 || f > fors[best] {
				best = i
			}
		}
		if best == -1 {
			continue
		}
		used[best] = true
		forOff := fors[best]
		if isInfiniteFor(s.Body, forOff) {
			result[forOff] = n
		}
	}
	return result
}

// UnifyLoops takes a set of (FOR, NEXT) pairs — typically IdentifyInfiniteLoops's
// result — and collapses them into a single outer loop: every FOR but the
// first (by FOR offset) and every NEXT but the last are obliterated, and
// their offsets are removed from s.ControllerOffsets.
// Returns the surviving (first FOR, last NEXT) pair.
func UnifyLoops(s *Scan, pairs map[int]int) (LoopPair, error) {
	if len(pairs) == 0 {
		return LoopPair{}, nil
	}
	ordered := make([]LoopPair, 0, len(pairs))
	for f, n := range pairs {
		ordered = append(ordered, LoopPair{For: f, Next: n})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].For < ordered[j].For })

	first := ordered[0]
	last := ordered[len(ordered)-1]

	obliterated := make(map[int]bool)
	for _, p := range ordered[1:] {
		if err := obliterate(s.Body, p.For); err != nil {
			return LoopPair{}, err
		}
		obliterated[p.For] = true
	}
	for _, p := range ordered[:len(ordered)-1] {
		if err := obliterate(s.Body, p.Next); err != nil {
			return LoopPair{}, err
		}
		obliterated[p.Next] = true
	}
	for _, kind := range []ControllerKind{For, Next} {
		var kept []int
		for _, off := range s.ControllerOffsets[kind] {
			if !obliterated[off] {
				kept = append(kept, off)
			}
		}
		s.ControllerOffsets[kind] = kept
	}
	return LoopPair{For: first.For, Next: last.Next}, nil
}

// SetAllLoops writes newCount into the value byte of every FOR in pairs.
func SetAllLoops(s *Scan, pairs map[int]int, newCount byte) error {
	for forOff := range pairs {
		if forOff+2 >= len(s.Body) {
			return dsunres.Wrap(dsunres.OutOfRange, "xmi.SetAllLoops",
				fmt.Errorf("FOR at %d has no value byte", forOff))
		}
		s.Body[forOff+2] = newCount
	}
	return nil
}

// ZeroRBRNCount overwrites the RBRN chunk's sequence-branch count with 0,
// if one was present. data must be the whole buffer ScanBuffer parsed, since
// RBRNCountOffset is an absolute offset into it rather than into the EVNT body.
func ZeroRBRNCount(data []byte, s *Scan) error {
	if !s.HasRBRN {
		return nil
	}
	off := s.RBRNCountOffset
	if off < 0 || off+2 > len(data) {
		return dsunres.Wrap(dsunres.OutOfRange, "xmi.ZeroRBRNCount",
			fmt.Errorf("RBRN count offset %d exceeds buffer", off))
	}
	binary.LittleEndian.PutUint16(data[off:off+2], 0)
	return nil
}
