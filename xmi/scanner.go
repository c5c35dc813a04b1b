package xmi

import (
	"fmt"

	"dsunres"
)

// ControllerKind identifies one of the five controller-change messages the
// mutations in this package care about. RecognizeController is a pure
// function with no side effects (§9 "enum-of-behaviors controllers");
// any indent/pretty-printing concern the original dump attaches to these
// codes is out of scope.
type ControllerKind int

const (
	IndirectControl ControllerKind = iota
	For
	Next
	Callback
	SequenceBranchIndex
)

func (k ControllerKind) String() string {
	switch k {
	case IndirectControl:
		return "IndirectControl"
	case For:
		return "For"
	case Next:
		return "Next"
	case Callback:
		return "Callback"
	case SequenceBranchIndex:
		return "SequenceBranchIndex"
	default:
		return "ControllerKind(?)"
	}
}

// RecognizeController maps a controller-change number (the byte at
// status+1) to its kind, if it's one this package acts on.
func RecognizeController(code byte) (ControllerKind, bool) {
	switch code {
	case 0x73:
		return IndirectControl, true
	case 0x74:
		return For, true
	case 0x75:
		return Next, true
	case 0x77:
		return Callback, true
	case 0x78:
		return SequenceBranchIndex, true
	default:
		return 0, false
	}
}

// Scan holds the result of scanning an EVNT body: the controller offsets
// recognized, recorded in ascending order (the order the scan visits them
// in, since the walk proceeds strictly forward through the buffer).
type Scan struct {
	Chunks
	ControllerOffsets map[ControllerKind][]int
}

// ScanBuffer locates the EVNT/RBRN chunks and walks the EVNT event stream,
// recording every recognized controller message's absolute offset.
func ScanBuffer(data []byte) (*Scan, error) {
	chunks, err := locateChunks(data)
	if err != nil {
		return nil, err
	}
	offsets, err := scanEvents(chunks.Body)
	if err != nil {
		return nil, err
	}
	return &Scan{Chunks: *chunks, ControllerOffsets: offsets}, nil
}

// scanEvents walks body from i=0, classifying each byte as a delay or the
// start of an event per §4.7, and records every recognized controller
// message's offset (relative to body's start, which is the EVNT chunk's
// start — "absolute-from-EVNT-start").
func scanEvents(body []byte) (map[ControllerKind][]int, error) {
	const op = "xmi.Scan"
	offsets := make(map[ControllerKind][]int)
	i := 0
	for i < len(body) {
		b := body[i]
		if b&0x80 == 0 {
			i++
			continue
		}
		status := b
		switch {
		case status >= 0x90 && status <= 0x9F:
			k := 1
			for {
				at := i + 2 + k
				if at >= len(body) {
					return nil, dsunres.Wrap(dsunres.OutOfRange, op,
						fmt.Errorf("note-on duration runs past end of stream at %d", i))
				}
				if body[at] <= 0x80 {
					break
				}
				k++
			}
			i = i + 2 + k + 1
		case status >= 0xB0 && status <= 0xBF:
			if i+2 >= len(body) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("controller change truncated at %d", i))
			}
			if kind, ok := RecognizeController(body[i+1]); ok {
				offsets[kind] = append(offsets[kind], i)
			}
			i += 3
		case status >= 0xC0 && status <= 0xCF, status >= 0xD0 && status <= 0xDF:
			if i+1 >= len(body) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("program/pressure change truncated at %d", i))
			}
			i += 2
		case status == 0xFF:
			if i+2 >= len(body) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("meta event truncated at %d", i))
			}
			length := int(body[i+2])
			end := i + 3 + length
			if end > len(body) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("meta event of %d bytes at %d exceeds buffer", length, i))
			}
			i = end
		case status >= 0xF0 && status <= 0xFE:
			return nil, dsunres.Wrap(dsunres.UnhandledStatus, op,
				fmt.Errorf("unhandled system message 0x%02X at %d", status, i))
		default:
			if i+2 >= len(body) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("event truncated at %d", i))
			}
			i += 3
		}
	}
	return offsets, nil
}
