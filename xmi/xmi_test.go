package xmi

import (
	"encoding/binary"
	"testing"
)

// buildFile wraps an EVNT body (and optionally an RBRN body) in the
// FORM/CAT /FORM/.../EVNT/RBRN envelope §4.7 describes.
func buildFile(t *testing.T, evntBody []byte, rbrnCount *uint16) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, []byte(tagFORM)...)
	buf = append(buf, 0, 0, 0, 0) // outer length, unused
	buf = append(buf, []byte(tagCAT)...)
	buf = append(buf, []byte("XMID")...)
	buf = append(buf, []byte(tagFORM)...)
	buf = append(buf, []byte("XMID")...)

	buf = append(buf, []byte(tagEVNT)...)
	lenField := make([]byte, 4)
	binary.BigEndian.PutUint32(lenField, uint32(len(evntBody)))
	buf = append(buf, lenField...)
	buf = append(buf, evntBody...)

	if rbrnCount != nil {
		body := make([]byte, 2)
		binary.LittleEndian.PutUint16(body, *rbrnCount)
		buf = append(buf, []byte(tagRBRN)...)
		rLen := make([]byte, 4)
		binary.BigEndian.PutUint32(rLen, uint32(len(body)))
		buf = append(buf, rLen...)
		buf = append(buf, body...)
	}
	return buf
}

// ctrl builds a 3-byte controller change message: 0xB0, controller, value.
func ctrl(controller, value byte) []byte {
	return []byte{0xB0, controller, value}
}

func TestScanBufferLocatesEvntAndRbrn(t *testing.T) {
	body := append(ctrl(0x74, 0), ctrl(0x75, 10)...)
	count := uint16(3)
	data := buildFile(t, body, &count)

	s, err := ScanBuffer(data)
	if err != nil {
		t.Fatalf("ScanBuffer: %v", err)
	}
	if s.EvntLen != len(body) {
		t.Fatalf("got EvntLen %d, want %d", s.EvntLen, len(body))
	}
	if !s.HasRBRN {
		t.Fatalf("expected RBRN chunk to be found")
	}
	if s.RBRNCount != 3 {
		t.Fatalf("got RBRNCount %d, want 3", s.RBRNCount)
	}
	if len(s.ControllerOffsets[For]) != 1 || len(s.ControllerOffsets[Next]) != 1 {
		t.Fatalf("controller offsets not recognized: %+v", s.ControllerOffsets)
	}
}

func TestScanEventsUnhandledSystemMessage(t *testing.T) {
	body := []byte{0xF1, 0x00}
	data := buildFile(t, body, nil)
	if _, err := ScanBuffer(data); err == nil {
		t.Fatalf("expected error for unhandled system message")
	}
}

func TestScanEventsDelayThenNoteOn(t *testing.T) {
	// delay byte, then a note-on: status, note, velocity, duration bytes
	// terminated by a byte <= 0x80.
	body := []byte{0x10, 0x90, 60, 127, 0x81, 0x81, 0x00}
	data := buildFile(t, body, nil)
	s, err := ScanBuffer(data)
	if err != nil {
		t.Fatalf("ScanBuffer: %v", err)
	}
	if len(s.Body) != len(body) {
		t.Fatalf("unexpected body length %d", len(s.Body))
	}
}

func TestIdentifyInfiniteLoopsAndUnify(t *testing.T) {
	body := []byte{}
	body = append(body, ctrl(0x74, 0)...)   // f1 = 0, infinite (value 0)
	body = append(body, ctrl(0x75, 0)...)   // n1 = 3
	body = append(body, ctrl(0x74, 127)...) // f2 = 6, infinite (value 127)
	body = append(body, ctrl(0x75, 0)...)   // n2 = 9
	body = append(body, ctrl(0x74, 0)...)   // f3 = 12, infinite
	body = append(body, ctrl(0x75, 0)...)   // n3 = 15

	data := buildFile(t, body, nil)
	s, err := ScanBuffer(data)
	if err != nil {
		t.Fatalf("ScanBuffer: %v", err)
	}

	pairs := IdentifyInfiniteLoops(s)
	want := map[int]int{0: 3, 6: 9, 12: 15}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d: %+v", len(pairs), len(want), pairs)
	}
	for f, n := range want {
		if pairs[f] != n {
			t.Fatalf("pair for FOR %d: got NEXT %d, want %d", f, pairs[f], n)
		}
	}

	surviving, err := UnifyLoops(s, pairs)
	if err != nil {
		t.Fatalf("UnifyLoops: %v", err)
	}
	if surviving.For != 0 || surviving.Next != 15 {
		t.Fatalf("got surviving pair %+v, want {0 15}", surviving)
	}

	obliterated := [][]int{{6}, {12}, {3}, {9}}
	for _, group := range obliterated {
		off := group[0]
		if s.Body[off] != 0xBF || s.Body[off+1] != 0 || s.Body[off+2] != 0 {
			t.Fatalf("offset %d not obliterated: %v", off, s.Body[off:off+3])
		}
	}
	if s.Body[0] != 0xB0 || s.Body[1] != 0x74 {
		t.Fatalf("f1 at offset 0 was modified: %v", s.Body[0:3])
	}
	if s.Body[15] != 0xB0 || s.Body[16] != 0x75 {
		t.Fatalf("n3 at offset 15 was modified: %v", s.Body[15:18])
	}

	after := IdentifyInfiniteLoops(s)
	if len(after) != 1 || after[0] != 15 {
		t.Fatalf("identify_infinite_loops after unify: got %+v, want {0: 15}", after)
	}
}

func TestRemoveAPIControl(t *testing.T) {
	body := []byte{}
	body = append(body, ctrl(0x77, 0)...) // callback at 0
	body = append(body, ctrl(0x73, 0)...) // indirect control at 3
	body = append(body, ctrl(0x74, 0)...) // for, left alone

	data := buildFile(t, body, nil)
	s, err := ScanBuffer(data)
	if err != nil {
		t.Fatalf("ScanBuffer: %v", err)
	}
	if err := RemoveAPIControl(s); err != nil {
		t.Fatalf("RemoveAPIControl: %v", err)
	}
	for _, off := range []int{0, 3} {
		if s.Body[off] != 0xBF || s.Body[off+1] != 0 || s.Body[off+2] != 0 {
			t.Fatalf("offset %d not obliterated: %v", off, s.Body[off:off+3])
		}
	}
	if s.Body[6] != 0xB0 || s.Body[7] != 0x74 {
		t.Fatalf("FOR message was unexpectedly modified: %v", s.Body[6:9])
	}
}

func TestSetAllLoops(t *testing.T) {
	body := append(ctrl(0x74, 0), ctrl(0x75, 0)...)
	data := buildFile(t, body, nil)
	s, err := ScanBuffer(data)
	if err != nil {
		t.Fatalf("ScanBuffer: %v", err)
	}
	pairs := IdentifyInfiniteLoops(s)
	if err := SetAllLoops(s, pairs, 42); err != nil {
		t.Fatalf("SetAllLoops: %v", err)
	}
	if s.Body[2] != 42 {
		t.Fatalf("got FOR value byte %d, want 42", s.Body[2])
	}
}

func TestZeroRBRNCount(t *testing.T) {
	body := ctrl(0x74, 0)
	count := uint16(7)
	data := buildFile(t, body, &count)
	s, err := ScanBuffer(data)
	if err != nil {
		t.Fatalf("ScanBuffer: %v", err)
	}
	if err := ZeroRBRNCount(data, s); err != nil {
		t.Fatalf("ZeroRBRNCount: %v", err)
	}
	got := binary.LittleEndian.Uint16(data[s.RBRNCountOffset : s.RBRNCountOffset+2])
	if got != 0 {
		t.Fatalf("got RBRN count %d, want 0", got)
	}
}

func TestObliterationPreservesLength(t *testing.T) {
	body := ctrl(0x77, 5)
	before := len(body)
	if err := obliterate(body, 0); err != nil {
		t.Fatalf("obliterate: %v", err)
	}
	if len(body) != before {
		t.Fatalf("obliteration changed length: got %d, want %d", len(body), before)
	}
}
