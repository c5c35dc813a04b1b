package frame

import (
	"encoding/binary"
	"fmt"
	"sync"

	"dsunres"
)

// ExtractFrames reads a multi-frame image resource: a skipped 32-bit file
// size, a 16-bit frame count, then that many 32-bit absolute offsets, each
// decoded independently. Frames are decoded concurrently, one goroutine per
// offset writing into its own index of frames/errs — each Decode call only
// reads its own disjoint slice of the immutable data buffer and writes to
// its own result slot, so this parallelizes a sequence of independent
// decodes rather than introducing any shared mutable state (see §5).
func ExtractFrames(data []byte) ([]*Frame, error) {
	const op = "frame.ExtractFrames"
	if len(data) < 6 {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("buffer too short for image file header: %d bytes", len(data)))
	}
	// data[0:4] is the file size, skipped.
	frameCount := int(binary.LittleEndian.Uint16(data[4:6]))
	offsetsStart := 6
	offsetsEnd := offsetsStart + frameCount*4
	if offsetsEnd > len(data) {
		return nil, dsunres.Wrap(dsunres.OutOfRange, op,
			fmt.Errorf("offset table for %d frames exceeds buffer", frameCount))
	}

	offsets := make([]uint32, frameCount)
	for i := 0; i < frameCount; i++ {
		at := offsetsStart + i*4
		offsets[i] = binary.LittleEndian.Uint32(data[at : at+4])
	}

	frames := make([]*Frame, frameCount)
	errs := make([]error, frameCount)
	var wg sync.WaitGroup
	for i, off := range offsets {
		wg.Add(1)
		go func(i int, off uint32) {
			defer wg.Done()
			f, err := Decode(data, int(off))
			if err != nil {
				errs[i] = err
				return
			}
			frames[i] = f
		}(i, off)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return frames, nil
}
