package main

import "math"

// Area is the crop rectangle in canvas pixel space. Width and Height may be
// negative while a drag is in progress: the rectangle keeps the corner the
// drag started from as its origin and simply extends backwards. Nothing in
// here normalizes; consumers that need positive extents call Normalized.
//
// Direction remembers which resize handle the pointer last matched, as a
// combination of "n", "s", "e", "w" (e.g. "ne"), or "" for none.
type Area struct {
	X, Y, Width, Height float64
	Direction           string
}

// Empty reports whether there is no selection at all. A rectangle that is
// degenerate on one axis only is still considered live while the user drags.
func (a Area) Empty() bool {
	return a.Width == 0 && a.Height == 0
}

// Normalized returns a copy with positive width and height covering the same
// pixels.
func (a Area) Normalized() Area {
	n := a
	if n.Width < 0 {
		n.X += n.Width
		n.Width = -n.Width
	}
	if n.Height < 0 {
		n.Y += n.Height
		n.Height = -n.Height
	}
	return n
}

// Contains reports whether the canvas point lies inside the rectangle.
func (a Area) Contains(x, y float64) bool {
	n := a.Normalized()
	return x >= n.X && x <= n.X+n.Width && y >= n.Y && y <= n.Y+n.Height
}

func near(v, target, tol float64) bool {
	return math.Abs(v-target) <= tol
}

// DetectDirection matches the pointer against the eight resize handles of
// the rectangle within tol pixels and records the result. Edges are matched
// against the raw (possibly negative-extent) rectangle, so "n" always names
// the edge at Y and "s" the edge at Y+Height regardless of sign; the resize
// math below uses the same convention. A pointer near two adjacent edges
// yields the corner string ("ne" rather than "n" or "e").
func (a *Area) DetectDirection(x, y, tol float64) string {
	if a.Empty() {
		a.Direction = ""
		return ""
	}
	x2 := a.X + a.Width
	y2 := a.Y + a.Height
	if x < math.Min(a.X, x2)-tol || x > math.Max(a.X, x2)+tol ||
		y < math.Min(a.Y, y2)-tol || y > math.Max(a.Y, y2)+tol {
		a.Direction = ""
		return ""
	}
	dir := ""
	switch {
	case near(y, a.Y, tol):
		dir += "n"
	case near(y, y2, tol):
		dir += "s"
	}
	switch {
	case near(x, a.X, tol):
		dir += "w"
	case near(x, x2, tol):
		dir += "e"
	}
	a.Direction = dir
	return dir
}

// Select redefines the rectangle from the pointer-down origin toward the
// current pointer position.
func (a *Area) Select(x, y, originX, originY float64) {
	a.X = originX
	a.Y = originY
	a.Width = x - originX
	a.Height = y - originY
}

// Resize drags the edges named by the current direction to the pointer
// position, leaving the opposite edges in place.
func (a *Area) Resize(x, y float64) {
	for _, d := range a.Direction {
		switch d {
		case 'n':
			a.Height = a.Y - y + a.Height
			a.Y = y
		case 's':
			a.Height = y - a.Y
		case 'w':
			a.Width = a.X - x + a.Width
			a.X = x
		case 'e':
			a.Width = x - a.X
		}
	}
}

// Move translates the rectangle so the grab point stays under the pointer.
// grabX/grabY are the offsets from the rectangle origin captured at
// pointer-down.
func (a *Area) Move(x, y, grabX, grabY float64) {
	a.X = x - grabX
	a.Y = y - grabY
}

// snapAxis returns pos adjusted so that whichever of the two rectangle edges
// lands within tol of the matching image boundary sits exactly on it. extent
// may be negative, which mirrors which boundary each edge is checked against.
func snapAxis(pos, extent, lo, hi, tol float64) float64 {
	nearBound, farBound := lo, hi
	if extent < 0 {
		nearBound, farBound = hi, lo
	}
	if near(pos, nearBound, tol) {
		return nearBound
	}
	if near(pos+extent, farBound, tol) {
		return farBound - extent
	}
	return pos
}

// MoveSnap is Move with magnetic alignment: each axis independently snaps
// the moving edge flush to the image boundary when it comes within tol
// pixels of it.
func (a *Area) MoveSnap(x, y, grabX, grabY float64, b ScreenBounds, tol float64) {
	a.X = snapAxis(x-grabX, a.Width, b.Left, b.Right, tol)
	a.Y = snapAxis(y-grabY, a.Height, b.Top, b.Bottom, tol)
}

// SnapEdgeToBounds extends the edges named by the current direction until
// they touch the image boundary exactly. Negative extents pick the mirrored
// boundary so the gesture behaves the same however the rectangle was
// dragged out.
func (a *Area) SnapEdgeToBounds(b ScreenBounds) {
	for _, d := range a.Direction {
		switch d {
		case 'n':
			target := b.Top
			if a.Height < 0 {
				target = b.Bottom
			}
			a.Height += a.Y - target
			a.Y = target
		case 's':
			target := b.Bottom
			if a.Height < 0 {
				target = b.Top
			}
			a.Height = target - a.Y
		case 'w':
			target := b.Left
			if a.Width < 0 {
				target = b.Right
			}
			a.Width += a.X - target
			a.X = target
		case 'e':
			target := b.Right
			if a.Width < 0 {
				target = b.Left
			}
			a.Width = target - a.X
		}
	}
}
