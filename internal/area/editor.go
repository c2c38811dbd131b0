package area

import "fmt"

// State of an Editor.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateResizing
)

func (s State) String() string {
	switch s {
	case StateDragging:
		return "dragging"
	case StateResizing:
		return "resizing"
	default:
		return "idle"
	}
}

// Handle identifies one of the eight resize grips, or none for the body.
type Handle string

const (
	HandleNone        Handle = ""
	HandleTopLeft     Handle = "top-left"
	HandleTopRight    Handle = "top-right"
	HandleBottomLeft  Handle = "bottom-left"
	HandleBottomRight Handle = "bottom-right"
	HandleTop         Handle = "top"
	HandleBottom      Handle = "bottom"
	HandleLeft        Handle = "left"
	HandleRight       Handle = "right"
)

// Handles lists every resize grip.
var Handles = []Handle{
	HandleTopLeft, HandleTopRight, HandleBottomLeft, HandleBottomRight,
	HandleTop, HandleBottom, HandleLeft, HandleRight,
}

// ParseHandle validates a handle name.
func ParseHandle(s string) (Handle, error) {
	for _, h := range Handles {
		if string(h) == s {
			return h, nil
		}
	}
	return HandleNone, fmt.Errorf("unknown resize handle %q", s)
}

func (h Handle) left() bool {
	return h == HandleLeft || h == HandleTopLeft || h == HandleBottomLeft
}

func (h Handle) right() bool {
	return h == HandleRight || h == HandleTopRight || h == HandleBottomRight
}

func (h Handle) top() bool {
	return h == HandleTop || h == HandleTopLeft || h == HandleTopRight
}

func (h Handle) bottom() bool {
	return h == HandleBottom || h == HandleBottomLeft || h == HandleBottomRight
}

// PointerEvent is a pointer down/move/up in screen coordinates.
// Target is the handle under the pointer, HandleNone for the rectangle body.
type PointerEvent struct {
	ClientX float64
	ClientY float64
	Target  Handle

	stopped bool
}

// StopPropagation marks the event as consumed so enclosing handlers skip it.
func (e *PointerEvent) StopPropagation() { e.stopped = true }

// Stopped reports whether a handler consumed the event.
func (e *PointerEvent) Stopped() bool { return e.stopped }

// Editor drags and resizes one rectangle over a scaled image.
//
// Once a drag or resize has begun, Move and End must be fed from a
// document-level source: the pointer may leave the image and the operation
// still has to finish. The editor never checks where the pointer is.
//
// An Editor is owned by a single editing session and is not safe for
// concurrent use.
type Editor struct {
	rect Rect
	box  BoundingBox
	dims ImageDimensions

	state  State
	handle Handle
	grab   Point
	last   Point

	// OnChange, when set, receives the rectangle after every move.
	OnChange func(Rect)
}

// NewEditor creates an idle editor over an image laid out at box.
func NewEditor(initial Rect, box BoundingBox, dims ImageDimensions) *Editor {
	e := &Editor{rect: initial, box: box, dims: dims}
	if dims.Mounted() {
		e.rect = Clamp(initial, dims)
	}
	return e
}

// Rect returns the current rectangle.
func (e *Editor) Rect() Rect { return e.rect }

// State returns the current interaction state.
func (e *Editor) State() State { return e.state }

// SetLayout updates the image placement after a reflow. The rectangle is
// stored in natural pixels, so a reflow leaves it alone; it is only clamped
// once the image has a size to clamp against.
func (e *Editor) SetLayout(box BoundingBox, dims ImageDimensions) {
	e.box = box
	e.dims = dims
	if dims.Mounted() {
		e.rect = Clamp(e.rect, dims)
	}
}

// SetRect replaces the rectangle, clamped to the image. Before the image is
// mounted r is kept as given.
func (e *Editor) SetRect(r Rect) {
	e.rect = Clamp(r, e.dims)
	e.emit()
}

// laidOut reports whether pointer positions can be mapped to the image.
func (e *Editor) laidOut() bool {
	return e.dims.Mounted() && e.box.Width > 0 && e.box.Height > 0
}

func (e *Editor) toImage(ev *PointerEvent) Point {
	return ScreenToImage(Point{X: ev.ClientX, Y: ev.ClientY}, e.box, e.dims)
}

// BeginDrag starts moving the rectangle. Events that target a resize handle,
// or that a resize handler already consumed, are ignored and false is returned.
func (e *Editor) BeginDrag(ev *PointerEvent) bool {
	if ev.Target != HandleNone || ev.Stopped() || !e.laidOut() {
		return false
	}
	p := e.toImage(ev)
	e.grab = Point{X: p.X - float64(e.rect.X), Y: p.Y - float64(e.rect.Y)}
	e.state = StateDragging
	e.handle = HandleNone
	return true
}

// BeginResize starts resizing from handle h and consumes the event.
func (e *Editor) BeginResize(ev *PointerEvent, h Handle) {
	if h == HandleNone {
		return
	}
	ev.StopPropagation()
	if !e.laidOut() {
		return
	}
	e.handle = h
	e.last = e.toImage(ev)
	e.state = StateResizing
}

// Move applies a pointer move to the active drag or resize and returns the
// resulting rectangle. While idle, or while the image is unmounted, it
// returns the rectangle unchanged.
func (e *Editor) Move(ev PointerEvent) Rect {
	if !e.laidOut() {
		return e.rect
	}
	switch e.state {
	case StateDragging:
		p := e.toImage(&ev)
		nw, nh := naturalSize(e.dims)
		e.rect.X = clampInt(round(p.X-e.grab.X), 0, nw-e.rect.Width)
		e.rect.Y = clampInt(round(p.Y-e.grab.Y), 0, nh-e.rect.Height)
	case StateResizing:
		p := e.toImage(&ev)
		// Rounded endpoints make the per-move deltas telescope, so a long
		// resize does not drift from accumulated fractions.
		dx := round(p.X) - round(e.last.X)
		dy := round(p.Y) - round(e.last.Y)
		e.rect = resize(e.rect, e.handle, dx, dy, e.dims)
		e.last = p
	default:
		return e.rect
	}
	e.emit()
	return e.rect
}

// End finishes the current operation. The rectangle keeps its last value.
func (e *Editor) End() {
	e.state = StateIdle
	e.handle = HandleNone
}

func (e *Editor) emit() {
	if e.OnChange != nil {
		e.OnChange(e.rect)
	}
}

// resize applies an incremental delta to the edges implied by h. Left and top
// grips move the origin while the opposite edge stays put.
func resize(r Rect, h Handle, dx, dy int, dims ImageDimensions) Rect {
	if h.left() {
		right := r.X + r.Width
		r.X = clampInt(r.X+dx, 0, right-MinSize)
		r.Width = right - r.X
	}
	if h.right() {
		r.Width += dx
	}
	if h.top() {
		bottom := r.Y + r.Height
		r.Y = clampInt(r.Y+dy, 0, bottom-MinSize)
		r.Height = bottom - r.Y
	}
	if h.bottom() {
		r.Height += dy
	}
	return Clamp(r, dims)
}
