package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/disintegration/imaging"
)

func extractToImage(t *testing.T, snap Snapshot) (image.Image, int, int) {
	t.Helper()
	var buf bytes.Buffer
	w, h, err := NewExtractor().Extract(context.Background(), snap, &buf)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	out, err := imaging.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode extracted raster: %v", err)
	}
	return out, w, h
}

func identitySnapshot(rec *ImageRecord, area Area) Snapshot {
	return Snapshot{
		Transform: identityTransform(),
		Area:      area,
		Flip:      identityFlip(),
		CanvasW:   float64(rec.Width),
		CanvasH:   float64(rec.Height),
		Image:     rec,
	}
}

// At identity scale the extracted block must be a pixel-exact copy of the
// source region the selection covers.
func TestExtractRoundTrip(t *testing.T) {
	rec := newTestRecord(t, 200, 100)
	area := Area{X: 30, Y: 20, Width: 40, Height: 25}

	out, w, h := extractToImage(t, identitySnapshot(rec, area))
	if w != 40 || h != 25 {
		t.Fatalf("block = %dx%d, want 40x25", w, h)
	}
	if b := out.Bounds(); b.Dx() != 40 || b.Dy() != 25 {
		t.Fatalf("decoded raster = %dx%d, want 40x25", b.Dx(), b.Dy())
	}

	src, err := rec.Decoded()
	if err != nil {
		t.Fatalf("decode source: %v", err)
	}
	for y := 0; y < 25; y++ {
		for x := 0; x < 40; x++ {
			want := src.At(30+x, 20+y)
			got := out.At(out.Bounds().Min.X+x, out.Bounds().Min.Y+y)
			wr, wg, wb, wa := want.RGBA()
			gr, gg, gb, ga := got.RGBA()
			if wr != gr || wg != gg || wb != gb || wa != ga {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestExtractNegativeAreaEqualsNormalized(t *testing.T) {
	rec := newTestRecord(t, 200, 100)

	var forward, backward bytes.Buffer
	if _, _, err := NewExtractor().Extract(context.Background(),
		identitySnapshot(rec, Area{X: 30, Y: 20, Width: 40, Height: 25}), &forward); err != nil {
		t.Fatalf("forward extract: %v", err)
	}
	if _, _, err := NewExtractor().Extract(context.Background(),
		identitySnapshot(rec, Area{X: 70, Y: 45, Width: -40, Height: -25}), &backward); err != nil {
		t.Fatalf("backward extract: %v", err)
	}
	if !bytes.Equal(forward.Bytes(), backward.Bytes()) {
		t.Error("negative-extent selection produced different bytes than its normalized twin")
	}
}

// A selection drawn over a zoomed-out canvas covers proportionally more
// source pixels.
func TestExtractScaledSelection(t *testing.T) {
	rec := newTestRecord(t, 200, 100)
	snap := identitySnapshot(rec, Area{X: 15, Y: 10, Width: 20, Height: 15})
	snap.Transform = Transform{A: 0.5, D: 0.5}
	snap.CanvasW, snap.CanvasH = 100, 50

	out, w, h := extractToImage(t, snap)
	if w != 40 || h != 30 {
		t.Fatalf("block = %dx%d, want 40x30", w, h)
	}

	src, err := rec.Decoded()
	if err != nil {
		t.Fatalf("decode source: %v", err)
	}
	// Screen (15,10) at scale 0.5 is source (30,20).
	want := src.At(30, 20)
	got := out.At(out.Bounds().Min.X, out.Bounds().Min.Y)
	wr, wg, wb, _ := want.RGBA()
	gr, gg, gb, _ := got.RGBA()
	if wr != gr || wg != gg || wb != gb {
		t.Errorf("origin pixel = %v, want %v", got, want)
	}
}

// Extraction bakes the rotation in: under a half turn the selection origin
// reads the source from the opposite corner.
func TestExtractRotated(t *testing.T) {
	rec := newTestRecord(t, 200, 100)
	snap := identitySnapshot(rec, Area{X: 0, Y: 0, Width: 40, Height: 25})
	snap.Rotation = math.Pi

	out, w, h := extractToImage(t, snap)
	if w != 40 || h != 25 {
		t.Fatalf("block = %dx%d, want 40x25", w, h)
	}

	src, err := rec.Decoded()
	if err != nil {
		t.Fatalf("decode source: %v", err)
	}
	// Rotation resamples, so allow a little interpolation slack.
	checks := []struct{ dx, dy, sx, sy int }{
		{0, 0, 199, 99},
		{39, 24, 160, 75},
		{10, 10, 189, 89},
	}
	for _, c := range checks {
		want := src.At(c.sx, c.sy)
		got := out.At(out.Bounds().Min.X+c.dx, out.Bounds().Min.Y+c.dy)
		wr, wg, wb, _ := want.RGBA()
		gr, gg, gb, _ := got.RGBA()
		const slack = 3 << 8
		if absDiff(wr, gr) > slack || absDiff(wg, gg) > slack || absDiff(wb, gb) > slack {
			t.Errorf("pixel (%d,%d) = %v, want near source (%d,%d) = %v",
				c.dx, c.dy, got, c.sx, c.sy, want)
		}
	}
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestExtractEmptyArea(t *testing.T) {
	rec := newTestRecord(t, 200, 100)

	var buf bytes.Buffer
	_, _, err := NewExtractor().Extract(context.Background(), identitySnapshot(rec, Area{}), &buf)
	if !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("err = %v, want ErrInvalidRegion", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for an empty region", buf.Len())
	}
}

func TestExtractSubpixelArea(t *testing.T) {
	rec := newTestRecord(t, 200, 100)

	var buf bytes.Buffer
	_, _, err := NewExtractor().Extract(context.Background(),
		identitySnapshot(rec, Area{X: 10, Y: 10, Width: 0.3, Height: 0.3}), &buf)
	if !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("err = %v, want ErrInvalidRegion", err)
	}
}

func TestExtractWithoutImage(t *testing.T) {
	var buf bytes.Buffer
	_, _, err := NewExtractor().Extract(context.Background(), Snapshot{
		Transform: identityTransform(),
		Area:      Area{X: 0, Y: 0, Width: 10, Height: 10},
		Flip:      identityFlip(),
	}, &buf)
	if !errors.Is(err, ErrImageLoad) {
		t.Errorf("err = %v, want ErrImageLoad", err)
	}
}

func TestExtractCanceledContext(t *testing.T) {
	rec := newTestRecord(t, 200, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, _, err := NewExtractor().Extract(ctx,
		identitySnapshot(rec, Area{X: 0, Y: 0, Width: 10, Height: 10}), &buf)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExtractSelectionPastCanvas(t *testing.T) {
	rec := newTestRecord(t, 200, 100)
	// The selection pokes out past the right canvas edge; the overhang is
	// transparent, not an error.
	snap := identitySnapshot(rec, Area{X: 180, Y: 10, Width: 40, Height: 20})

	out, w, h := extractToImage(t, snap)
	if w != 40 || h != 20 {
		t.Fatalf("block = %dx%d, want 40x20", w, h)
	}
	// Pixel columns beyond the image are fully transparent.
	_, _, _, a := out.At(out.Bounds().Min.X+30, out.Bounds().Min.Y+5).RGBA()
	if a != 0 {
		t.Errorf("overhang alpha = %d, want 0", a)
	}
	// Columns still over the image keep their pixels.
	_, _, _, a = out.At(out.Bounds().Min.X+5, out.Bounds().Min.Y+5).RGBA()
	if a == 0 {
		t.Error("in-image pixel came out transparent")
	}
}

func TestEncodeRasterByContentType(t *testing.T) {
	img := testPattern(16, 16)

	tests := []struct {
		contentType string
		magic       []byte
	}{
		{"image/png", []byte("\x89PNG")},
		{"image/jpeg", []byte("\xff\xd8")},
		{"image/gif", []byte("GIF8")},
		{"image/bmp", []byte("BM")},
		{"image/webp", []byte("RIFF")},
		{"image/unknown", []byte("\x89PNG")},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			var buf bytes.Buffer
			if err := encodeRaster(&buf, img, tt.contentType); err != nil {
				t.Fatalf("encode: %v", err)
			}
			if buf.Len() == 0 {
				t.Fatal("encoder wrote no bytes")
			}
			if !bytes.HasPrefix(buf.Bytes(), tt.magic) {
				t.Errorf("output starts with % x, want magic % x", buf.Bytes()[:4], tt.magic)
			}
		})
	}
}

func TestExtractKeepsSourceContentType(t *testing.T) {
	// A webp source must come back out as webp.
	var pngBuf bytes.Buffer
	if err := imaging.Encode(&pngBuf, testPattern(64, 32), imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	rec, err := newImageRecord("photo.png", pngBuf.Bytes())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.Type = "image/webp"

	var out bytes.Buffer
	snap := identitySnapshot(rec, Area{X: 0, Y: 0, Width: 32, Height: 16})
	if _, _, err := NewExtractor().Extract(context.Background(), snap, &out); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("RIFF")) {
		t.Errorf("output starts with % x, want RIFF container", out.Bytes()[:4])
	}
}
