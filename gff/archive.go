// Package gff parses and rewrites a tagged resource archive: a byte buffer
// plus a per-tag table of (resource number, offset, size) entries. The
// scanning style — iterate fixed-size entry records by indexing into the
// buffer, one binary.LittleEndian field at a time — mirrors climg.Load's
// walk over CL_Images' own entry table, generalized to the two table
// shapes (primary/secondary) this container format supports.
package gff

import (
	"encoding/binary"
	"fmt"
	"sort"

	"dsunres"
)

// Tag is a 4-byte ASCII resource-family identifier, e.g. "DATA" or the
// reserved "GFFI".
type Tag [4]byte

func (t Tag) String() string { return string(t[:]) }

func tagFromBytes(b []byte) Tag {
	var t Tag
	copy(t[:], b)
	return t
}

// TagFromString builds a Tag from a string, truncating or space-padding to
// 4 bytes as the format requires (e.g. "CAT " has a trailing space).
func TagFromString(s string) Tag {
	var t Tag
	for i := range t {
		t[i] = ' '
	}
	copy(t[:], s)
	return t
}

const gffiTag = "GFFI"

type tableKind int

const (
	kindPrimary tableKind = iota
	kindSecondary
)

// entry is one resolved (resource number, offset, size) record, plus the
// absolute byte positions of its offset/size fields so ReplaceResource can
// rewrite the on-disk index with the same kind of field access used to
// parse it.
type entry struct {
	number        uint32
	offset        uint32
	size          uint32
	offsetFieldAt int
	sizeFieldAt   int
}

type table struct {
	tag     Tag
	kind    tableKind
	entries []entry
}

// Archive is a parsed GFF container: a buffer plus a tag -> table index.
type Archive struct {
	data   []byte
	tables map[Tag]*table
}

// Resource describes one archive entry as returned by DescribeResources.
type Resource struct {
	Tag    Tag
	Number uint32
	Offset uint32
	Size   uint32
}

// pendingSecondary carries a secondary table's deferred resolution state
// between the first index pass and the GFFI-driven second pass.
type pendingSecondary struct {
	tag                 Tag
	secondaryTableIndex uint32
	numberingOffset     int
}

// Parse reads a GFF archive header and index out of data. data is not
// copied; Archive methods read from (and ReplaceResource clones) this
// slice.
func Parse(data []byte) (*Archive, error) {
	const op = "gff.Parse"
	if len(data) < 16 {
		return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
			fmt.Errorf("buffer too short for header: %d bytes", len(data)))
	}
	indexStart := int(binary.LittleEndian.Uint32(data[12:16]))
	if indexStart < 0 || indexStart+10 > len(data) {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("index start %d out of range", indexStart))
	}

	p := indexStart
	p += 8 // two skipped 32-bit fields
	if p+2 > len(data) {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op, fmt.Errorf("truncated tag count"))
	}
	tagCount := int(binary.LittleEndian.Uint16(data[p : p+2]))
	p += 2

	tables := make(map[Tag]*table, tagCount)
	var pending []pendingSecondary

	for i := 0; i < tagCount; i++ {
		if p+4 > len(data) {
			return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("truncated tag record %d", i))
		}
		tag := tagFromBytes(data[p : p+4])
		p += 4

		if p+4 > len(data) {
			return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("truncated dispatch field for tag %q", tag))
		}
		nIfPrimary := binary.LittleEndian.Uint32(data[p : p+4])
		p += 4

		if _, dup := tables[tag]; dup {
			return nil, dsunres.Wrap(dsunres.OutOfRange, op,
				fmt.Errorf("duplicate tag %q in archive index", tag))
		}

		if nIfPrimary > 0 {
			tableStart := p - 4
			entries, err := readPrimaryEntries(data, tableStart, int(nIfPrimary), len(data))
			if err != nil {
				return nil, err
			}
			tables[tag] = &table{tag: tag, kind: kindPrimary, entries: entries}
			p = tableStart + 4 + int(nIfPrimary)*12
			continue
		}

		// Secondary table: defer resolution until GFFI is located.
		if p+4 > len(data) {
			return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("truncated secondary header for tag %q", tag))
		}
		p += 4 // ignored word
		if p+4 > len(data) {
			return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("truncated secondary table index for tag %q", tag))
		}
		secondaryTableIndex := binary.LittleEndian.Uint32(data[p : p+4])
		p += 4

		numberingOffset := p
		if p+4 > len(data) {
			return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("truncated segment count for tag %q", tag))
		}
		segmentCount := int(binary.LittleEndian.Uint32(data[p : p+4]))
		p += 4
		p += segmentCount * 8
		if p > len(data) {
			return nil, dsunres.Wrap(dsunres.OutOfRange, op,
				fmt.Errorf("segment list for tag %q exceeds buffer", tag))
		}

		tables[tag] = &table{tag: tag, kind: kindSecondary}
		pending = append(pending, pendingSecondary{
			tag:                 tag,
			secondaryTableIndex: secondaryTableIndex,
			numberingOffset:     numberingOffset,
		})
	}

	if len(pending) > 0 {
		gffi, ok := tables[TagFromString(gffiTag)]
		if !ok {
			return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
				fmt.Errorf("archive has secondary tables but no GFFI table"))
		}
		for _, sec := range pending {
			if int(sec.secondaryTableIndex) >= len(gffi.entries) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("secondary table index %d for tag %q out of range",
						sec.secondaryTableIndex, sec.tag))
			}
			loc := gffi.entries[sec.secondaryTableIndex]
			entries, err := readSecondaryEntries(data, int(loc.offset), int(loc.size), sec.numberingOffset, len(data))
			if err != nil {
				return nil, err
			}
			tables[sec.tag].entries = entries
		}
	}

	for tag, tbl := range tables {
		for _, e := range tbl.entries {
			if e.offset > uint32(len(data)) || uint64(e.offset)+uint64(e.size) > uint64(len(data)) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("tag %q resource %d: offset=%d size=%d exceeds buffer of %d bytes",
						tag, e.number, e.offset, e.size, len(data)))
			}
		}
	}

	return &Archive{data: data, tables: tables}, nil
}

func readPrimaryEntries(data []byte, tableStart, count, bufLen int) ([]entry, error) {
	const op = "gff.Parse"
	entries := make([]entry, count)
	base := tableStart + 4
	if base+count*12 > bufLen {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("primary table at %d with %d entries exceeds buffer", tableStart, count))
	}
	for i := 0; i < count; i++ {
		off := base + i*12
		entries[i] = entry{
			number:        binary.LittleEndian.Uint32(data[off : off+4]),
			offset:        binary.LittleEndian.Uint32(data[off+4 : off+8]),
			size:          binary.LittleEndian.Uint32(data[off+8 : off+12]),
			offsetFieldAt: off + 4,
			sizeFieldAt:   off + 8,
		}
	}
	return entries, nil
}

func readSecondaryEntries(data []byte, tableOffset, tableSize, numberingOffset, bufLen int) ([]entry, error) {
	const op = "gff.Parse"
	if tableSize%8 != 0 {
		return nil, dsunres.Wrap(dsunres.MalformedHeader, op,
			fmt.Errorf("secondary table size %d is not a multiple of 8", tableSize))
	}
	count := tableSize / 8
	if tableOffset+tableSize > bufLen {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("secondary table at %d size %d exceeds buffer", tableOffset, tableSize))
	}

	segments, err := readNumberingSegments(data, numberingOffset, bufLen)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, count)
	for i := 0; i < count; i++ {
		off := tableOffset + i*8
		num, err := resourceNumberForIndex(segments, i)
		if err != nil {
			return nil, err
		}
		entries[i] = entry{
			number:        num,
			offset:        binary.LittleEndian.Uint32(data[off : off+4]),
			size:          binary.LittleEndian.Uint32(data[off+4 : off+8]),
			offsetFieldAt: off,
			sizeFieldAt:   off + 4,
		}
	}
	return entries, nil
}

type numberingSegment struct {
	start          uint32 // starting resource number
	length         uint32 // number of indices covered
	cumulativeFrom uint32 // first entry index this segment covers
}

func readNumberingSegments(data []byte, numberingOffset, bufLen int) ([]numberingSegment, error) {
	const op = "gff.Parse"
	p := numberingOffset
	if p+4 > bufLen {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op, fmt.Errorf("truncated segment count"))
	}
	segmentCount := int(binary.LittleEndian.Uint32(data[p : p+4]))
	p += 4
	if p+segmentCount*8 > bufLen {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op, fmt.Errorf("segment list exceeds buffer"))
	}
	segments := make([]numberingSegment, segmentCount)
	var cumulative uint32
	for i := 0; i < segmentCount; i++ {
		off := p + i*8
		start := binary.LittleEndian.Uint32(data[off : off+4])
		length := binary.LittleEndian.Uint32(data[off+4 : off+8])
		segments[i] = numberingSegment{start: start, length: length, cumulativeFrom: cumulative}
		cumulative += length
	}
	return segments, nil
}

// resourceNumberForIndex finds the greatest segment whose cumulative start
// index is <= idx and returns that segment's resource number for idx.
func resourceNumberForIndex(segments []numberingSegment, idx int) (uint32, error) {
	best := -1
	for i, s := range segments {
		if int(s.cumulativeFrom) <= idx {
			if best == -1 || s.cumulativeFrom > segments[best].cumulativeFrom {
				best = i
			}
		}
	}
	if best == -1 {
		return 0, dsunres.Wrap(dsunres.OutOfRange, "gff.Parse",
			fmt.Errorf("entry index %d not covered by any numbering segment", idx))
	}
	s := segments[best]
	return s.start + uint32(idx) - s.cumulativeFrom, nil
}

// DescribeResources returns every resource in the archive sorted by offset
// ascending.
func (a *Archive) DescribeResources() []Resource {
	var out []Resource
	for tag, tbl := range a.tables {
		for _, e := range tbl.entries {
			out = append(out, Resource{Tag: tag, Number: e.number, Offset: e.offset, Size: e.size})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// HasResource reports whether (tag, number) names an entry in the archive.
func (a *Archive) HasResource(tag Tag, number uint32) bool {
	tbl, _ := a.find(tag, number)
	return tbl != nil
}

func (a *Archive) find(tag Tag, number uint32) (*table, int) {
	tbl, ok := a.tables[tag]
	if !ok {
		return nil, -1
	}
	for i, e := range tbl.entries {
		if e.number == number {
			return tbl, i
		}
	}
	return nil, -1
}

// GetResource returns a copy of the bytes for (tag, number).
func (a *Archive) GetResource(tag Tag, number uint32) ([]byte, error) {
	tbl, idx := a.find(tag, number)
	if tbl == nil {
		return nil, dsunres.Wrap(dsunres.NoSuchResource, "gff.GetResource",
			dsunres.NoSuchResourceErrorDetail{Tag: tag.String(), Number: number})
	}
	e := tbl.entries[idx]
	out := make([]byte, e.size)
	copy(out, a.data[e.offset:e.offset+e.size])
	return out, nil
}

// ReplaceResource returns a new buffer with (tag, number)'s bytes replaced
// by newBytes. If newBytes fits in the existing slot the buffer stays the
// same length and is overwritten in place; otherwise the resource is
// appended to the end of a grown buffer and the entry's offset/size fields
// are rewritten to point at the new location. Every other entry's
// (offset, size) is preserved bit-for-bit.
func (a *Archive) ReplaceResource(tag Tag, number uint32, newBytes []byte) ([]byte, error) {
	tbl, idx := a.find(tag, number)
	if tbl == nil {
		return nil, dsunres.Wrap(dsunres.NoSuchResource, "gff.ReplaceResource",
			dsunres.NoSuchResourceErrorDetail{Tag: tag.String(), Number: number})
	}
	e := tbl.entries[idx]

	if len(newBytes) <= int(e.size) {
		out := append([]byte(nil), a.data...)
		copy(out[e.offset:], newBytes)
		putUint32(out, e.sizeFieldAt, uint32(len(newBytes)))
		tbl.entries[idx].size = uint32(len(newBytes))
		a.data = out
		return out, nil
	}

	oldLen := len(a.data)
	out := make([]byte, oldLen+len(newBytes))
	copy(out, a.data)
	copy(out[oldLen:], newBytes)
	putUint32(out, e.offsetFieldAt, uint32(oldLen))
	putUint32(out, e.sizeFieldAt, uint32(len(newBytes)))
	tbl.entries[idx].offset = uint32(oldLen)
	tbl.entries[idx].size = uint32(len(newBytes))
	a.data = out
	return out, nil
}

func putUint32(buf []byte, at int, v uint32) {
	binary.LittleEndian.PutUint32(buf[at:at+4], v)
}
