// Command dsuninspect is a thin demonstration of the dsunres packages: it
// opens a GFF archive and decodes one resource either as an image frame,
// written out as a diagnostic PNG, or as an XMI event stream, whose
// controller summary it prints. XMI mutations (-unify-loops, -zero-rbrn)
// edit an in-memory copy of the resource and are not written back to the
// archive. It is not a tool in its
// own right — it exists to exercise the wiring between packages the way a
// real caller would.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"

	"golang.org/x/image/draw"

	"dsunres"
	"dsunres/frame"
	"dsunres/gff"
	"dsunres/palette"
	"dsunres/xmi"
)

func main() {
	archivePath := flag.String("archive", "", "path to a GFF archive")
	tag := flag.String("tag", "", "resource tag to inspect, e.g. IMAG")
	number := flag.Uint("number", 0, "resource number to inspect")
	paletteTag := flag.String("palette-tag", "", "resource tag holding the palette (optional)")
	paletteNumber := flag.Uint("palette-number", 0, "resource number holding the palette")
	frameIndex := flag.Int("frame", 0, "frame index to render from a multi-frame image resource")
	scale := flag.Int("scale", 1, "output upscaling factor")
	out := flag.String("out", "out.png", "output PNG path")
	xmiMode := flag.Bool("xmi", false, "treat the resource as an XMI event stream instead of an image")
	unify := flag.Bool("unify-loops", false, "collapse infinite loops into one outer loop")
	zeroRBRN := flag.Bool("zero-rbrn", false, "zero the RBRN sequence-branch count")

	flag.Parse()

	if *archivePath == "" || *tag == "" {
		log.Fatalf("usage: dsuninspect -archive PATH -tag TAG -number N [-xmi | -palette-tag ... -frame N] [-out FILE]")
	}

	data, err := os.ReadFile(*archivePath)
	if err != nil {
		log.Fatalf("read archive: %v", err)
	}
	archive, err := gff.Parse(data)
	if err != nil {
		log.Fatalf("parse archive: %v", err)
	}

	resourceTag := gff.TagFromString(*tag)
	resource, err := archive.GetResource(resourceTag, uint32(*number))
	if err != nil {
		log.Fatalf("get resource: %v", err)
	}

	if *xmiMode {
		runXMI(resource, *unify, *zeroRBRN)
		return
	}

	if err := runImage(resource, archive, resourceTag.String(), paletteTag, paletteNumber, *frameIndex, *scale, *out); err != nil {
		log.Fatalf("render image: %v", err)
	}
}

func runXMI(data []byte, unify, zeroRBRN bool) {
	scan, err := xmi.ScanBuffer(data)
	if err != nil {
		log.Fatalf("scan xmi: %v", err)
	}
	fmt.Printf("EVNT body: %d bytes at offset %d\n", scan.EvntLen, scan.EvntStart)
	for kind, offsets := range scan.ControllerOffsets {
		fmt.Printf("  %s: %d occurrences\n", kind, len(offsets))
	}

	pairs := xmi.IdentifyInfiniteLoops(scan)
	fmt.Printf("infinite loop pairs: %d\n", len(pairs))

	if unify {
		surviving, err := xmi.UnifyLoops(scan, pairs)
		if err != nil {
			log.Fatalf("unify loops: %v", err)
		}
		fmt.Printf("unified to FOR=%d NEXT=%d\n", surviving.For, surviving.Next)
	}
	if zeroRBRN {
		if err := xmi.ZeroRBRNCount(data, scan); err != nil {
			log.Fatalf("zero rbrn: %v", err)
		}
	}
}

func runImage(data []byte, archive *gff.Archive, tagLabel string, paletteTag *string, paletteNumber *uint, frameIndex, scale int, out string) error {
	frames, err := frame.ExtractFrames(data)
	if err != nil {
		return fmt.Errorf("extract frames from %s: %w", tagLabel, err)
	}
	if frameIndex < 0 || frameIndex >= len(frames) {
		return fmt.Errorf("frame index %d out of range (%d frames)", frameIndex, len(frames))
	}
	f := frames[frameIndex]

	var pal palette.Palette
	if paletteTag != nil && *paletteTag != "" {
		pt := gff.TagFromString(*paletteTag)
		palBytes, err := archive.GetResource(pt, uint32(*paletteNumber))
		if err != nil {
			var dsunErr *dsunres.Error
			if errors.As(err, &dsunErr) && dsunErr.Kind == dsunres.NoSuchResource {
				log.Printf("warning: palette resource missing, rendering without a palette: %v", err)
			} else {
				return fmt.Errorf("get palette resource: %w", err)
			}
		} else {
			pal = palette.FromBytes(palBytes)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width(), f.Height()))
	pixels := f.Pixels()
	alpha := f.AlphaMask()
	for y := 0; y < f.Height(); y++ {
		for x := 0; x < f.Width(); x++ {
			idx := y*f.Width() + x
			if !alpha[idx] {
				continue
			}
			r, g, b, ok := pal.Color(int(pixels[idx]))
			if !ok {
				continue
			}
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 0xFF})
		}
	}

	final := image.Image(img)
	if scale > 1 {
		dst := image.NewRGBA(image.Rect(0, 0, f.Width()*scale, f.Height()*scale))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
		final = dst
	}

	w, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer w.Close()
	if err := png.Encode(w, final); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	fmt.Printf("wrote %s (%dx%d)\n", out, final.Bounds().Dx(), final.Bounds().Dy())
	return nil
}
