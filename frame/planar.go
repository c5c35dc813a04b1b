package frame

import (
	"fmt"

	"dsunres"
	"dsunres/bitio"
)

// decodePlanar handles both PLAN and PLNR frames: a small pixel-value
// dictionary indexed by a bps-wide symbol, with the symbol source itself
// differing between the two variants (planSource vs plnrSource below).
func decodePlanar(data []byte, offset int, variant string) (*Frame, error) {
	const op = "frame.Decode"
	width, height := readHeaderDims(data, offset)

	if offset+10 > len(data) {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("planar frame header truncated at %d", offset))
	}
	bps := int(data[offset+9])
	if bps == 0 {
		return &Frame{width: width, height: height}, nil
	}

	dictSize := 1 << uint(bps)
	dictStart := offset + 10
	if dictStart+dictSize > len(data) {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("planar dictionary of %d bytes at %d exceeds buffer", dictSize, dictStart))
	}
	dict := data[dictStart : dictStart+dictSize]

	bitStreamStart := dictStart + dictSize
	if bitStreamStart > len(data) {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("planar bit stream start %d exceeds buffer", bitStreamStart))
	}
	br := bitio.New(data[bitStreamStart:], bitio.BigEndian)

	var source symbolSource
	if variant == "PLNR" {
		source = &plnrSource{br: br, bps: bps}
	} else {
		source = &planSource{br: br, bps: bps}
	}

	var rows []pixelRun
	for row := 0; row < height; row++ {
		var run []byte
		runCol := -1
		flush := func() {
			if run != nil {
				rows = append(rows, pixelRun{row: row, col: runCol, pixels: run})
				run = nil
				runCol = -1
			}
		}
		for col := 0; col < width; col++ {
			symbol, err := source.next()
			if err != nil {
				return nil, err
			}
			if int(symbol) >= len(dict) {
				return nil, dsunres.Wrap(dsunres.OutOfRange, op,
					fmt.Errorf("symbol %d exceeds dictionary size %d", symbol, len(dict)))
			}
			d := dict[symbol]
			if d == 0 {
				flush()
				continue
			}
			if run == nil {
				runCol = col
			}
			run = append(run, d)
		}
		flush()
	}

	return &Frame{width: width, height: height, rows: rows}, nil
}

// symbolSource produces one dictionary index per pixel column.
type symbolSource interface {
	next() (uint16, error)
}

// planSource implements PLAN: each pixel takes the next bps bits as-is.
type planSource struct {
	br  *bitio.Reader
	bps int
}

func (s *planSource) next() (uint16, error) {
	return s.br.Chomp(s.bps)
}

// plnrSource implements PLNR's run-length symbol stream: a value persists
// across a run of pixels instead of being re-read for each one.
type plnrSource struct {
	br        *bitio.Reader
	bps       int
	lastValue uint16
	remaining int
}

func (s *plnrSource) next() (uint16, error) {
	if s.remaining == 0 {
		a, err := s.br.Chomp(s.bps)
		if err != nil {
			return 0, err
		}
		if a != 0 {
			s.lastValue = a
			s.remaining = 1
		} else {
			b, err := s.br.Chomp(s.bps)
			if err != nil {
				return 0, err
			}
			if b == 0 {
				s.lastValue = 0
				s.remaining = 1
			} else {
				s.remaining = int(b) + 2
			}
		}
	}
	s.remaining--
	return s.lastValue, nil
}
