package main

import (
	"io"
	"sync"

	"github.com/disintegration/imaging"
)

// PointerEvent is a raw pointer sample forwarded by the frontend. Anything
// malformed on that side simply fails to match a gesture here; pointer input
// is untrusted and never an error.
type PointerEvent struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Shift bool    `json:"shift"`
	Ctrl  bool    `json:"ctrl"`
	Touch bool    `json:"touch"`
}

type gestureState int

const (
	stateIdle gestureState = iota
	stateSelecting
	stateResizing
	stateMoving
	stateDragging
)

// PanelHooks are the callbacks into the crop-panel collaborator. Either
// field may be nil.
type PanelHooks struct {
	// IsPanelVisible is queried before starting any gesture; while it
	// reports true, pointer-downs are ignored entirely.
	IsPanelVisible func() bool
	// ResetCropPanelInputs is notified whenever the selection becomes
	// empty or a different image becomes active.
	ResetCropPanelInputs func()
}

func (h PanelHooks) visible() bool {
	return h.IsPanelVisible != nil && h.IsPanelVisible()
}

func (h PanelHooks) reset() {
	if h.ResetCropPanelInputs != nil {
		h.ResetCropPanelInputs()
	}
}

// FrameScheduler coalesces redraw requests to at most one draw per flush.
// Request only flips a pending flag; the actual draw happens when the frame
// loop calls Flush. A request landing while one is already pending is
// absorbed, never queued.
type FrameScheduler struct {
	mu      sync.Mutex
	pending bool
	draw    func()
}

// NewFrameScheduler creates a scheduler invoking draw on each flushed frame.
func NewFrameScheduler(draw func()) *FrameScheduler {
	return &FrameScheduler{draw: draw}
}

// Request marks the current frame as needing a redraw.
func (f *FrameScheduler) Request() {
	f.mu.Lock()
	f.pending = true
	f.mu.Unlock()
}

// Flush draws once if a redraw was requested since the last flush and
// reports whether it did. The pending flag is cleared before drawing so the
// draw itself can safely request the next frame.
func (f *FrameScheduler) Flush() bool {
	f.mu.Lock()
	p := f.pending
	f.pending = false
	f.mu.Unlock()
	if !p {
		return false
	}
	f.draw()
	return true
}

// Controller is the pointer/keyboard state machine. It classifies gestures,
// routes them to the session's transform and area, and schedules redraws.
// All exported methods are safe for concurrent use; the controller is the
// single serialization point in front of the session and canvas.
type Controller struct {
	mu      sync.Mutex
	session *Session
	canvas  *Canvas
	sched   *FrameScheduler
	hooks   PanelHooks

	state            gestureState
	originX, originY float64 // pointer-down point while selecting
	grabX, grabY     float64 // offset into the rectangle while moving
	lastX, lastY     float64 // previous pointer position while dragging

	cropEnabled      bool
	keepMask         bool
	cutMode          bool
	selectionEnabled bool
	snapEnabled      bool
}

// NewController wires a controller to a session and canvas.
func NewController(session *Session, canvas *Canvas, hooks PanelHooks) *Controller {
	c := &Controller{
		session:          session,
		canvas:           canvas,
		hooks:            hooks,
		selectionEnabled: true,
		snapEnabled:      true,
	}
	c.sched = NewFrameScheduler(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.canvas.Draw(c.session, c.keepMask)
	})
	return c
}

// Scheduler exposes the frame scheduler so the serving layer can drive it.
func (c *Controller) Scheduler() *FrameScheduler {
	return c.sched
}

// SetImage switches the active image, resetting the session and every
// gesture flag, and notifies the crop panel.
func (c *Controller) SetImage(rec *ImageRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.session.SetImage(rec); err != nil {
		return err
	}
	c.state = stateIdle
	c.cropEnabled = false
	c.keepMask = false
	c.cutMode = false
	c.hooks.reset()
	c.sched.Request()
	return nil
}

// PointerDown classifies the gesture that a press starts. While the modal
// panel is visible, or no image is loaded, presses are ignored.
func (c *Controller) PointerDown(ev PointerEvent) {
	if c.hooks.visible() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.Image() == nil {
		return
	}
	switch {
	case s.takeCutModePending():
		s.area.DetectDirection(ev.X, ev.Y, s.cfg.HandleTolerance)
		c.state = stateResizing
	case ev.Shift || !c.selectionEnabled:
		c.state = stateDragging
		c.lastX, c.lastY = ev.X, ev.Y
	case (ev.Ctrl || ev.Touch) && !s.area.Empty() && s.area.Contains(ev.X, ev.Y):
		c.state = stateMoving
		c.grabX = ev.X - s.area.X
		c.grabY = ev.Y - s.area.Y
	case !s.area.Empty() && s.area.DetectDirection(ev.X, ev.Y, s.cfg.HandleTolerance) != "":
		c.state = stateResizing
	default:
		c.state = stateSelecting
		c.originX, c.originY = ev.X, ev.Y
		s.area = Area{X: ev.X, Y: ev.Y}
	}
	c.sched.Request()
}

// PointerMove feeds the active gesture. In the idle state it only refreshes
// the hover direction for cursor feedback and triggers no redraw.
func (c *Controller) PointerMove(ev PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	switch c.state {
	case stateIdle:
		if c.cropEnabled {
			s.area.DetectDirection(ev.X, ev.Y, s.cfg.HandleTolerance)
		}
		return
	case stateSelecting:
		s.area.Select(ev.X, ev.Y, c.originX, c.originY)
	case stateResizing:
		s.area.Resize(ev.X, ev.Y)
	case stateMoving:
		if b, ok := s.imageScreenBounds(); ok && c.snapEnabled {
			s.area.MoveSnap(ev.X, ev.Y, c.grabX, c.grabY, b, s.cfg.SnapTolerance)
		} else {
			s.area.Move(ev.X, ev.Y, c.grabX, c.grabY)
		}
	case stateDragging:
		s.transform.Translate(ev.X-c.lastX, ev.Y-c.lastY)
		c.lastX, c.lastY = ev.X, ev.Y
	}
	c.sched.Request()
}

// PointerUp ends the gesture. A surviving selection arms the crop
// affordance; an empty one clears the mask and resets the crop panel.
func (c *Controller) PointerUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateIdle
	if c.session.area.Empty() {
		c.session.area = Area{}
		c.cropEnabled = false
		c.keepMask = false
		c.hooks.reset()
	} else {
		c.cropEnabled = true
	}
	c.sched.Request()
}

// DoubleClick extends the selection to the image boundary on the side named
// by the last resize direction. A selection that was never resized has no
// direction, and the gesture is a no-op.
func (c *Controller) DoubleClick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.area.Empty() || s.area.Direction == "" {
		return
	}
	b, ok := s.imageScreenBounds()
	if !ok {
		return
	}
	s.area.SnapEdgeToBounds(b)
	c.sched.Request()
}

// ZoomAt applies a scale multiplier about the given canvas point.
func (c *Controller) ZoomAt(x, y, factor float64) {
	if factor <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.transform.ApplyScaleMultiplier(factor, x, y)
	c.sched.Request()
}

// Pan nudges the canvas by a screen-space delta (arrow keys, wheel pan).
func (c *Controller) Pan(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.transform.Translate(dx, dy)
	c.sched.Request()
}

// SetRotation sets the render-time rotation angle in radians.
func (c *Controller) SetRotation(rad float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.SetRotation(rad)
	c.sched.Request()
}

// FlipHorizontal mirrors the rendered image horizontally.
func (c *Controller) FlipHorizontal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ToggleFlipH()
	c.sched.Request()
}

// FlipVertical mirrors the rendered image vertically.
func (c *Controller) FlipVertical() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ToggleFlipV()
	c.sched.Request()
}

// SetCutMode toggles cut mode. Enabling seeds the selection to the full
// image footprint and keeps the mask up; disabling clears the selection.
func (c *Controller) SetCutMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled {
		if !c.session.EnableCutMode() {
			return
		}
		c.cutMode = true
		c.cropEnabled = true
		c.keepMask = true
	} else {
		c.session.DisableCutMode()
		c.cutMode = false
		c.cropEnabled = false
		c.keepMask = false
		c.hooks.reset()
	}
	c.sched.Request()
}

// CutMode reports whether cut mode is on.
func (c *Controller) CutMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cutMode
}

// SetSelectionEnabled controls whether presses start selections; when off,
// every press pans instead.
func (c *Controller) SetSelectionEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectionEnabled = enabled
}

// SetSnapEnabled controls the magnetic image-bounds snap while moving.
func (c *Controller) SetSnapEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapEnabled = enabled
}

// Snapshot returns a consistent copy of the session state for extraction.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// FramePNG writes the current canvas contents as PNG.
func (c *Controller) FramePNG(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return imaging.Encode(w, c.canvas.Image(), imaging.PNG)
}

// ControllerState is the view of the engine the frontend polls.
type ControllerState struct {
	Area        Area    `json:"area"`
	Direction   string  `json:"direction"`
	Cursor      string  `json:"cursor"`
	CropEnabled bool    `json:"crop_enabled"`
	CutMode     bool    `json:"cut_mode"`
	Scale       float64 `json:"scale"`
	Rotation    float64 `json:"rotation"`
	FlipH       bool    `json:"flip_h"`
	FlipV       bool    `json:"flip_v"`
	ActiveImage string  `json:"active_image,omitempty"`
}

// State reports the current engine state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	st := ControllerState{
		Area:        s.area,
		Direction:   s.area.Direction,
		Cursor:      cursorFor(s.area.Direction),
		CropEnabled: c.cropEnabled,
		CutMode:     c.cutMode,
		Scale:       s.transform.Scale(),
		Rotation:    s.rotation,
		FlipH:       s.flip.H < 0,
		FlipV:       s.flip.V < 0,
	}
	if s.img != nil {
		st.ActiveImage = s.img.ID
	}
	return st
}

func cursorFor(direction string) string {
	switch direction {
	case "n", "s":
		return "ns-resize"
	case "e", "w":
		return "ew-resize"
	case "ne", "sw":
		return "nesw-resize"
	case "nw", "se":
		return "nwse-resize"
	default:
		return "crosshair"
	}
}
