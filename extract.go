package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

var (
	// ErrInvalidRegion means the selection resolved to zero or negative
	// pixel dimensions.
	ErrInvalidRegion = errors.New("crop region is empty")
	// ErrImageLoad means the source pixels were unavailable at extraction
	// time.
	ErrImageLoad = errors.New("source image unavailable")
	// ErrEncoding means the raster encoding step produced no output.
	ErrEncoding = errors.New("raster encoding failed")
)

// Extractor bakes a screen-space selection out of the source image into an
// encoded raster. It works exclusively from a Snapshot, so state mutated by
// a gesture mid-extraction is never observed.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract maps the snapshot's selection back into source pixel space, renders
// the rotated/flipped image onto an offscreen surface at scale 1, cuts the
// selected block out and encodes it with the source image's content type.
// The encoded raster is written to w; the returned values are the block's
// pixel dimensions.
func (e *Extractor) Extract(ctx context.Context, snap Snapshot, w io.Writer) (int, int, error) {
	rec := snap.Image
	if rec == nil {
		return 0, 0, fmt.Errorf("no active image: %w", ErrImageLoad)
	}
	s := snap.Transform.Scale()
	if s <= 0 {
		return 0, 0, fmt.Errorf("non-positive scale %v: %w", s, ErrInvalidRegion)
	}

	n := snap.Area.Normalized()
	ix := round(n.X / s)
	iy := round(n.Y / s)
	iw := round(n.Width / s)
	ih := round(n.Height / s)
	if iw <= 0 || ih <= 0 {
		return 0, 0, fmt.Errorf("selection resolves to %dx%d pixels: %w", iw, ih, ErrInvalidRegion)
	}

	src, err := rec.Decoded()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode %q: %w", rec.Name, ErrImageLoad)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	// Offscreen surface sized to the unscaled viewport, grown if the
	// selection sticks out past it. Pixel (ix,iy) of this surface lines up
	// with the selection origin on screen.
	block := image.Rect(ix, iy, ix+iw, iy+ih)
	surface := image.Rect(0, 0,
		int(math.Ceil(snap.CanvasW/s)), int(math.Ceil(snap.CanvasH/s))).Union(block)
	off := image.NewNRGBA(surface)

	m := imageMatrix(1, snap.Transform.E/s, snap.Transform.F/s,
		snap.Rotation, snap.Flip, float64(rec.Width), float64(rec.Height))
	drawAffine(off, src, m, snap.Rotation != 0)

	out := imaging.Crop(off, block)
	cw := &countingWriter{w: w}
	if err := encodeRaster(cw, out, rec.Type); err != nil {
		return 0, 0, fmt.Errorf("%v: %w", err, ErrEncoding)
	}
	if cw.n == 0 {
		return 0, 0, fmt.Errorf("encoder wrote no bytes for %s: %w", rec.Type, ErrEncoding)
	}
	return iw, ih, nil
}

var imagingFormats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/bmp":  imaging.BMP,
	"image/tiff": imaging.TIFF,
}

// encodeRaster encodes img using the encoder matching the MIME type the
// source image carried. Unknown types fall back to PNG; webp goes through
// its own encoder since imaging cannot write it.
func encodeRaster(w io.Writer, img image.Image, contentType string) error {
	if contentType == "image/webp" {
		return webp.Encode(w, img, &webp.Options{Quality: 90})
	}
	format, ok := imagingFormats[contentType]
	if !ok {
		format = imaging.PNG
	}
	if format == imaging.JPEG {
		return imaging.Encode(w, img, format, imaging.JPEGQuality(90))
	}
	return imaging.Encode(w, img, format)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
