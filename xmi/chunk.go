// Package xmi scans and rewrites the event stream embedded in an XMI
// music file's IFF-like chunk wrapper. Only the bytes the supported
// mutations need are ever interpreted — this is deliberately not a
// general IFF or MIDI parser (spec §1 Non-goals). The chunk-at-a-time
// dispatch loop follows the same shape as meta.NewBlock's block-header/
// body dispatch in the pack's FLAC metadata reader, adapted to this
// format's nested FORM/CAT wrapper and big-endian lengths.
package xmi

import (
	"encoding/binary"
	"fmt"

	"dsunres"
)

// Chunks holds the byte ranges this package cares about out of an XMI
// file's chunk wrapper: the EVNT chunk's event stream, and (if present)
// the RBRN chunk's sequence-branch count field.
type Chunks struct {
	// EvntStart and EvntLen are the EVNT chunk body's absolute byte range
	// within the original buffer.
	EvntStart int
	EvntLen   int
	// Body is a slice of the original buffer covering the EVNT chunk —
	// not a copy, so writes through it (via the mutations in mutate.go) edit the
	// buffer in place.
	Body []byte

	// HasRBRN reports whether an RBRN chunk was present.
	HasRBRN bool
	// RBRNCountOffset is the absolute offset of RBRN's little-endian
	// 16-bit sequence-branch count field, valid only if HasRBRN.
	RBRNCountOffset int
	// RBRNCount is the count value observed at parse time.
	RBRNCount uint16
}

const (
	tagFORM = "FORM"
	tagCAT  = "CAT "
	tagEVNT = "EVNT"
	tagRBRN = "RBRN"
)

// locateChunks walks data's IFF-like wrapper (FORM > CAT > FORM > chunks)
// and records the EVNT and RBRN chunks it finds.
func locateChunks(data []byte) (*Chunks, error) {
	const op = "xmi.Scan"
	p := 0

	readTag := func(want string) error {
		if p+4 > len(data) {
			return dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("expected tag %q, buffer truncated at %d", want, p))
		}
		got := string(data[p : p+4])
		if want != "" && got != want {
			return dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("expected tag %q, got %q at %d", want, got, p))
		}
		p += 4
		return nil
	}
	readBE32 := func() (uint32, error) {
		if p+4 > len(data) {
			return 0, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("truncated 32-bit field at %d", p))
		}
		v := binary.BigEndian.Uint32(data[p : p+4])
		p += 4
		return v, nil
	}

	if err := readTag(tagFORM); err != nil {
		return nil, err
	}
	if _, err := readBE32(); err != nil { // outer FORM length, not tracked further
		return nil, err
	}
	if err := readTag(tagCAT); err != nil {
		return nil, err
	}
	if err := readTag(""); err != nil { // CAT's subtag, e.g. "XMID"
		return nil, err
	}
	if err := readTag(tagFORM); err != nil {
		return nil, err
	}
	if err := readTag(""); err != nil { // inner FORM's subtag
		return nil, err
	}

	var out Chunks
	out.RBRNCountOffset = -1

	for p+8 <= len(data) {
		tag := string(data[p : p+4])
		p += 4
		length, err := readBE32()
		if err != nil {
			return nil, err
		}
		bodyStart := p
		bodyEnd := bodyStart + int(length)
		if bodyEnd > len(data) {
			return nil, dsunres.Wrap(dsunres.OutOfRange, op,
				fmt.Errorf("chunk %q body of %d bytes at %d exceeds buffer", tag, length, bodyStart))
		}

		switch tag {
		case tagEVNT:
			out.EvntStart = bodyStart
			out.EvntLen = int(length)
			out.Body = data[bodyStart:bodyEnd]
		case tagRBRN:
			if bodyStart+2 > bodyEnd {
				return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
					fmt.Errorf("RBRN body too short for sequence-branch count"))
			}
			out.HasRBRN = true
			out.RBRNCountOffset = bodyStart
			out.RBRNCount = binary.LittleEndian.Uint16(data[bodyStart : bodyStart+2])
		}

		p = bodyEnd
	}

	if out.Body == nil {
		return nil, dsunres.Wrap(dsunres.MalformedHeader, op, fmt.Errorf("no EVNT chunk found"))
	}
	return &out, nil
}
