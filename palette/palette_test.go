package palette

import "testing"

func TestFromBytes(t *testing.T) {
	p := FromBytes([]byte{0x10, 0x20, 0x30, 0x3F, 0x00, 0x00})
	if len(p) != 2 {
		t.Fatalf("got %d colors, want 2", len(p))
	}
	want := []Color{{64, 128, 192}, {252, 0, 0}}
	for i, w := range want {
		if p[i] != w {
			t.Fatalf("color %d: got %+v, want %+v", i, p[i], w)
		}
	}
}

func TestFromBytesDiscardsPartialTriple(t *testing.T) {
	p := FromBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	if len(p) != 1 {
		t.Fatalf("got %d colors, want 1", len(p))
	}
}

func TestColorOutOfRange(t *testing.T) {
	p := FromBytes([]byte{0x01, 0x02, 0x03})
	if _, _, _, ok := p.Color(1); ok {
		t.Fatalf("expected out-of-range lookup to fail")
	}
	if _, _, _, ok := p.Color(-1); ok {
		t.Fatalf("expected negative lookup to fail")
	}
}
