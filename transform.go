package main

import "math"

// Transform is the 2D affine matrix applied to the canvas for pan and zoom,
// in the usual (a,b,c,d,e,f) form: a and d carry the scale, e and f the
// translation. The editor never shears or rotates the coordinate system
// itself (b=c=0, a=d); image rotation is applied at draw time only.
type Transform struct {
	A, B, C, D, E, F float64
}

func identityTransform() Transform {
	return Transform{A: 1, D: 1}
}

// Scale returns the uniform scale factor of the matrix.
func (t Transform) Scale() float64 {
	return t.A
}

// ScreenToImage maps a canvas point to the corresponding point in image
// space by inverting the matrix.
func (t Transform) ScreenToImage(x, y float64) (float64, float64) {
	return (x - t.E) / t.A, (y - t.F) / t.D
}

// Translate pans the canvas by the given screen-space delta.
func (t *Transform) Translate(dx, dy float64) {
	t.E += dx
	t.F += dy
}

// ApplyScaleMultiplier multiplies the current scale by factor while keeping
// the image point under (pivotX, pivotY) fixed on screen.
func (t *Transform) ApplyScaleMultiplier(factor, pivotX, pivotY float64) {
	t.A *= factor
	t.D *= factor
	t.E = pivotX - (pivotX-t.E)*factor
	t.F = pivotY - (pivotY-t.F)*factor
}

// ScaleToFit resets the matrix so an imageW×imageH image fits the canvas,
// centered. Images smaller than the canvas are scaled up to fill it; there
// is no upscaling ceiling.
func (t *Transform) ScaleToFit(imageW, imageH, canvasW, canvasH float64) {
	s := math.Min(canvasW/imageW, canvasH/imageH)
	*t = Transform{
		A: s,
		D: s,
		E: (canvasW - imageW*s) / 2,
		F: (canvasH - imageH*s) / 2,
	}
}

// ScreenBounds is the axis-aligned footprint of the image on the canvas
// under the current transform.
type ScreenBounds struct {
	Left, Top, Right, Bottom float64
}

// ImageScreenBounds returns the on-screen footprint of an imageW×imageH
// image.
func (t Transform) ImageScreenBounds(imageW, imageH float64) ScreenBounds {
	return ScreenBounds{
		Left:   t.E,
		Top:    t.F,
		Right:  t.E + imageW*t.A,
		Bottom: t.F + imageH*t.D,
	}
}
