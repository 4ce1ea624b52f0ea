package main

import (
	"fmt"
)

// Flip holds the horizontal and vertical mirror factors, each 1 or -1.
type Flip struct {
	H, V float64
}

func identityFlip() Flip {
	return Flip{H: 1, V: 1}
}

// Identity reports whether no mirroring is active.
func (f Flip) Identity() bool {
	return f.H == 1 && f.V == 1
}

// Session owns all mutable editing state for the active image: the pan/zoom
// transform, the rotation angle, the flip factors and the crop area. The
// whole of it resets whenever a different image becomes active.
//
// A Session is not safe for concurrent use; the Controller serializes access
// on behalf of its callers.
type Session struct {
	cfg              EngineConfig
	canvasW, canvasH float64

	transform Transform
	rotation  float64
	flip      Flip
	area      Area
	img       *ImageRecord

	cutPending bool
}

// NewSession creates an empty session for a canvas of the given pixel size.
func NewSession(cfg EngineConfig, canvasW, canvasH int) *Session {
	return &Session{
		cfg:       cfg,
		canvasW:   float64(canvasW),
		canvasH:   float64(canvasH),
		transform: identityTransform(),
		flip:      identityFlip(),
	}
}

// SetImage makes rec the active image and resets every piece of editing
// state: the transform is re-fit to the canvas, rotation and flip go back to
// identity and the selection is cleared.
func (s *Session) SetImage(rec *ImageRecord) error {
	if rec != nil {
		if _, err := rec.Decoded(); err != nil {
			return fmt.Errorf("failed to load image %q: %w", rec.Name, err)
		}
	}
	s.img = rec
	s.rotation = 0
	s.flip = identityFlip()
	s.area = Area{}
	s.cutPending = false
	if rec == nil {
		s.transform = identityTransform()
		return nil
	}
	s.transform.ScaleToFit(float64(rec.Width), float64(rec.Height), s.canvasW, s.canvasH)
	return nil
}

// Image returns the active image record, or nil.
func (s *Session) Image() *ImageRecord {
	return s.img
}

// Transform returns a copy of the current pan/zoom matrix.
func (s *Session) Transform() Transform {
	return s.transform
}

// Area returns a copy of the current selection rectangle.
func (s *Session) Area() Area {
	return s.area
}

// Rotation returns the current angle in radians.
func (s *Session) Rotation() float64 {
	return s.rotation
}

// SetRotation sets the render-time rotation angle in radians.
func (s *Session) SetRotation(rad float64) {
	s.rotation = rad
}

// ResetRotation clears the rotation angle.
func (s *Session) ResetRotation() {
	s.rotation = 0
}

// Flip returns the current mirror factors.
func (s *Session) Flip() Flip {
	return s.flip
}

// ToggleFlipH mirrors the image horizontally (or back).
func (s *Session) ToggleFlipH() {
	s.flip.H = -s.flip.H
}

// ToggleFlipV mirrors the image vertically (or back).
func (s *Session) ToggleFlipV() {
	s.flip.V = -s.flip.V
}

// imageScreenBounds returns the active image's footprint on the canvas under
// the current transform.
func (s *Session) imageScreenBounds() (ScreenBounds, bool) {
	if s.img == nil {
		return ScreenBounds{}, false
	}
	return s.transform.ImageScreenBounds(float64(s.img.Width), float64(s.img.Height)), true
}

// EnableCutMode seeds the selection to the image's full on-screen footprint
// and forces the next pointer-down straight into a resize gesture.
func (s *Session) EnableCutMode() bool {
	b, ok := s.imageScreenBounds()
	if !ok {
		return false
	}
	s.area = Area{X: b.Left, Y: b.Top, Width: b.Right - b.Left, Height: b.Bottom - b.Top}
	s.cutPending = true
	return true
}

// DisableCutMode clears the selection seeded by EnableCutMode.
func (s *Session) DisableCutMode() {
	s.area = Area{}
	s.cutPending = false
}

// CutModeActive reports whether a cut-mode pointer-down is still pending.
func (s *Session) CutModeActive() bool {
	return s.cutPending
}

// takeCutModePending consumes the one-shot "next pointer-down resizes" flag.
func (s *Session) takeCutModePending() bool {
	p := s.cutPending
	s.cutPending = false
	return p
}

// Snapshot captures everything Extract reads, so a gesture arriving while an
// encode is in flight cannot tear the values.
type Snapshot struct {
	Transform Transform
	Area      Area
	Rotation  float64
	Flip      Flip
	CanvasW   float64
	CanvasH   float64
	Image     *ImageRecord
}

// Snapshot returns a defensive copy of the session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Transform: s.transform,
		Area:      s.area,
		Rotation:  s.rotation,
		Flip:      s.flip,
		CanvasW:   s.canvasW,
		CanvasH:   s.canvasH,
		Image:     s.img,
	}
}
