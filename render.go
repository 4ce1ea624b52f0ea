package main

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// matrix is a 2D affine transform in row-major (XX XY X0 / YX YY Y0) form,
// mapping source coordinates to destination coordinates.
type matrix struct {
	XX, XY, X0 float64
	YX, YY, Y0 float64
}

func translation(x, y float64) matrix {
	return matrix{1, 0, x, 0, 1, y}
}

func scaling(sx, sy float64) matrix {
	return matrix{sx, 0, 0, 0, sy, 0}
}

func rotationMatrix(theta float64) matrix {
	sin, cos := math.Sincos(theta)
	return matrix{cos, -sin, 0, sin, cos, 0}
}

// Mul composes the transforms so that n is applied first, then m.
func (m matrix) Mul(n matrix) matrix {
	return matrix{
		XX: m.XX*n.XX + m.XY*n.YX,
		XY: m.XX*n.XY + m.XY*n.YY,
		X0: m.XX*n.X0 + m.XY*n.Y0 + m.X0,
		YX: m.YX*n.XX + m.YY*n.YX,
		YY: m.YX*n.XY + m.YY*n.YY,
		Y0: m.YX*n.X0 + m.YY*n.Y0 + m.Y0,
	}
}

func (m matrix) aff3() f64.Aff3 {
	return f64.Aff3{m.XX, m.XY, m.X0, m.YX, m.YY, m.Y0}
}

// imageMatrix builds the source-to-canvas transform for an imageW×imageH
// image: flip about the image center, rotate about the same center, scale
// uniformly, then translate. Rotating about the image's own center keeps the
// footprint anchored however the canvas is panned.
func imageMatrix(scale, tx, ty, rotation float64, fl Flip, imageW, imageH float64) matrix {
	cx, cy := imageW/2, imageH/2
	m := translation(tx, ty)
	m = m.Mul(scaling(scale, scale))
	m = m.Mul(translation(cx, cy))
	m = m.Mul(rotationMatrix(rotation))
	m = m.Mul(scaling(fl.H, fl.V))
	m = m.Mul(translation(-cx, -cy))
	return m
}

// drawAffine composites src onto dst under m. smooth selects bilinear
// resampling; nearest-neighbor keeps pure integer translations pixel-exact.
func drawAffine(dst draw.Image, src image.Image, m matrix, smooth bool) {
	var interp xdraw.Transformer = xdraw.NearestNeighbor
	if smooth {
		interp = xdraw.ApproxBiLinear
	}
	interp.Transform(dst, m.aff3(), src, src.Bounds(), xdraw.Over, nil)
}

func round(v float64) int {
	return int(math.Round(v))
}

// Canvas is the drawing surface the engine renders into. Its pixel buffer is
// what the frontend displays, fetched one frame at a time.
type Canvas struct {
	dst         *image.RGBA
	backdrop    color.RGBA
	borderColor color.RGBA
	maskOpacity uint8
}

// NewCanvas allocates a w×h canvas.
func NewCanvas(w, h int, cfg EngineConfig) *Canvas {
	return &Canvas{
		dst:         image.NewRGBA(image.Rect(0, 0, w, h)),
		backdrop:    color.RGBA{R: 34, G: 34, B: 34, A: 255},
		borderColor: color.RGBA{R: 255, G: 255, B: 255, A: 255},
		maskOpacity: cfg.MaskOpacity,
	}
}

// Image returns the canvas pixel buffer.
func (c *Canvas) Image() *image.RGBA {
	return c.dst
}

// Draw renders the full frame: backdrop, the active image under its
// transform/rotation/flip, and the selection overlay. With an empty
// selection the mask is painted anyway when keepMask is set.
func (c *Canvas) Draw(s *Session, keepMask bool) {
	b := c.dst.Bounds()
	draw.Draw(c.dst, b, image.NewUniform(c.backdrop), image.Point{}, draw.Src)

	if rec := s.Image(); rec != nil {
		if src, err := rec.Decoded(); err == nil {
			t := s.Transform()
			m := imageMatrix(t.A, t.E, t.F, s.Rotation(), s.Flip(),
				float64(rec.Width), float64(rec.Height))
			drawAffine(c.dst, src, m, true)
		}
	}

	area := s.Area()
	if !area.Empty() {
		c.drawSelection(area)
	} else if keepMask {
		c.paintMask()
	}
}

// drawSelection dims everything except the selected region and strokes a
// 1px border around it. The region's pixels are captured before masking and
// restored on top, so the selection shows the image at full brightness.
func (c *Canvas) drawSelection(area Area) {
	n := area.Normalized()
	rect := image.Rect(round(n.X), round(n.Y), round(n.X+n.Width), round(n.Y+n.Height))
	sel := rect.Intersect(c.dst.Bounds())

	var region *image.RGBA
	if !sel.Empty() {
		region = image.NewRGBA(sel)
		draw.Draw(region, sel, c.dst, sel.Min, draw.Src)
	}
	c.paintMask()
	if region != nil {
		draw.Draw(c.dst, sel, region, sel.Min, draw.Src)
	}
	c.strokeRect(rect)
}

func (c *Canvas) paintMask() {
	mask := image.NewUniform(color.NRGBA{A: c.maskOpacity})
	draw.Draw(c.dst, c.dst.Bounds(), mask, image.Point{}, draw.Over)
}

// strokeRect draws a 1px border just inside rect, clipped to the canvas.
func (c *Canvas) strokeRect(rect image.Rectangle) {
	b := c.dst.Bounds()
	for x := max(rect.Min.X, b.Min.X); x < min(rect.Max.X, b.Max.X); x++ {
		if rect.Min.Y >= b.Min.Y && rect.Min.Y < b.Max.Y {
			c.dst.SetRGBA(x, rect.Min.Y, c.borderColor)
		}
		if rect.Max.Y-1 >= b.Min.Y && rect.Max.Y-1 < b.Max.Y {
			c.dst.SetRGBA(x, rect.Max.Y-1, c.borderColor)
		}
	}
	for y := max(rect.Min.Y, b.Min.Y); y < min(rect.Max.Y, b.Max.Y); y++ {
		if rect.Min.X >= b.Min.X && rect.Min.X < b.Max.X {
			c.dst.SetRGBA(rect.Min.X, y, c.borderColor)
		}
		if rect.Max.X-1 >= b.Min.X && rect.Max.X-1 < b.Max.X {
			c.dst.SetRGBA(rect.Max.X-1, y, c.borderColor)
		}
	}
}
