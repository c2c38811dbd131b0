package area

import (
	"math/rand/v2"
	"testing"
)

func unscaledEditor(r Rect) *Editor {
	return NewEditor(r, BoundingBox{Width: 1080, Height: 1920}, phoneDims(1))
}

func at(x, y float64) PointerEvent {
	return PointerEvent{ClientX: x, ClientY: y}
}

func TestResizeBottomRight(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})

	down := at(300, 300)
	e.BeginResize(&down, HandleBottomRight)
	got := e.Move(at(800, 800))

	want := Rect{100, 100, 700, 700}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	got = e.Move(at(1500, 2500))
	want = Rect{100, 100, 980, 1720}
	if got != want {
		t.Errorf("expected clamp to remaining space %+v, got %+v", want, got)
	}
}

func TestResizeLeftKeepsRightEdge(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})

	down := at(100, 200)
	e.BeginResize(&down, HandleLeft)
	got := e.Move(at(40, 200))
	if got != (Rect{40, 100, 260, 200}) {
		t.Fatalf("unexpected rect after growing left: %+v", got)
	}

	got = e.Move(at(400, 200))
	if got != (Rect{290, 100, 10, 200}) {
		t.Errorf("expected floor at MinSize with right edge at 300, got %+v", got)
	}
}

func TestResizeTopClampsAtZero(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})

	down := at(150, 100)
	e.BeginResize(&down, HandleTop)
	got := e.Move(at(150, -50))

	if got != (Rect{100, 0, 200, 300}) {
		t.Errorf("expected origin clamped to 0 with bottom fixed, got %+v", got)
	}
}

func TestResizeIsIncremental(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})

	down := at(300, 300)
	e.BeginResize(&down, HandleRight)
	e.Move(at(310, 300))
	e.Move(at(320, 300))
	got := e.Move(at(330, 300))

	if got.Width != 230 {
		t.Errorf("expected width 230 after three 10px moves, got %d", got.Width)
	}
}

func TestResizeHandleInvariants(t *testing.T) {
	dims := phoneDims(1)
	rng := rand.New(rand.NewPCG(1, 2))

	for _, h := range Handles {
		for i := 0; i < 200; i++ {
			start := Rect{
				X:      rng.IntN(900),
				Y:      rng.IntN(1700),
				Width:  MinSize + rng.IntN(150),
				Height: MinSize + rng.IntN(150),
			}
			e := unscaledEditor(start)
			down := at(float64(start.X), float64(start.Y))
			e.BeginResize(&down, h)

			r := e.Move(at(rng.Float64()*4000-2000, rng.Float64()*6000-3000))
			if r.Width < MinSize || r.Height < MinSize {
				t.Fatalf("%s: below minimum size: %+v", h, r)
			}
			if r.X < 0 || r.Y < 0 {
				t.Fatalf("%s: negative origin: %+v", h, r)
			}
			if float64(r.X+r.Width) > dims.NaturalWidth || float64(r.Y+r.Height) > dims.NaturalHeight {
				t.Fatalf("%s: out of bounds: %+v", h, r)
			}
		}
	}
}

func TestDragClampsAndKeepsSize(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})

	down := at(150, 150)
	if !e.BeginDrag(&down) {
		t.Fatal("expected drag to start on the body")
	}
	got := e.Move(at(5000, -300))

	want := Rect{880, 0, 200, 200}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestDragPreservesGrabPoint(t *testing.T) {
	e := NewEditor(Rect{100, 100, 200, 200}, BoundingBox{Width: 540, Height: 960}, phoneDims(2))

	down := at(75, 75) // image (150,150): 50px into the rectangle
	e.BeginDrag(&down)
	got := e.Move(at(125, 75))

	if got.X != 200 || got.Y != 100 {
		t.Errorf("expected origin (200,100), got (%d,%d)", got.X, got.Y)
	}
}

func TestBeginDragIgnoresHandles(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})

	ev := PointerEvent{ClientX: 300, ClientY: 300, Target: HandleBottomRight}
	if e.BeginDrag(&ev) {
		t.Error("drag must not start on a handle")
	}

	e.BeginResize(&ev, HandleBottomRight)
	if !ev.Stopped() {
		t.Error("resize must stop propagation")
	}
	body := at(200, 200)
	body.StopPropagation()
	if e.BeginDrag(&body) {
		t.Error("drag must not start on a consumed event")
	}
	if e.State() != StateResizing {
		t.Errorf("expected resizing, got %s", e.State())
	}
}

func TestEndKeepsRect(t *testing.T) {
	e := unscaledEditor(Rect{100, 100, 200, 200})
	var changes int
	e.OnChange = func(Rect) { changes++ }

	down := at(150, 150)
	e.BeginDrag(&down)
	e.Move(at(160, 170))
	e.End()

	if e.State() != StateIdle {
		t.Errorf("expected idle, got %s", e.State())
	}
	if got := e.Move(at(900, 900)); got != (Rect{110, 120, 200, 200}) {
		t.Errorf("idle move must not change rect, got %+v", got)
	}
	if changes != 1 {
		t.Errorf("expected one change notification, got %d", changes)
	}
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("bottom-left")
	if err != nil || h != HandleBottomLeft {
		t.Errorf("expected bottom-left, got %q (%v)", h, err)
	}
	if _, err := ParseHandle("middle"); err == nil {
		t.Error("expected error for unknown handle")
	}
}

func TestUnmountedImageKeepsRect(t *testing.T) {
	initial := Rect{100, 100, 200, 200}
	e := NewEditor(initial, BoundingBox{}, ImageDimensions{})
	var emitted []Rect
	e.OnChange = func(r Rect) { emitted = append(emitted, r) }

	down := at(300, 300)
	e.BeginResize(&down, HandleBottomRight)
	if !down.Stopped() {
		t.Error("resize grip must still consume the event")
	}
	if got := e.Move(at(800, 800)); got != initial {
		t.Errorf("resize before mount = %+v, want %+v", got, initial)
	}
	e.End()

	grab := at(150, 150)
	if e.BeginDrag(&grab) {
		t.Error("drag started before mount")
	}
	if got := e.Move(at(10, 10)); got != initial {
		t.Errorf("drag before mount = %+v, want %+v", got, initial)
	}
	if len(emitted) != 0 {
		t.Errorf("emitted %v before mount", emitted)
	}

	e.SetRect(Rect{50, 60, 300, 400})
	if got := e.Rect(); got != (Rect{50, 60, 300, 400}) {
		t.Errorf("SetRect before mount = %+v", got)
	}

	e.SetLayout(BoundingBox{Width: 1080, Height: 1920}, phoneDims(1))
	down = at(350, 460)
	e.BeginResize(&down, HandleBottomRight)
	if got, want := e.Move(at(400, 500)), (Rect{50, 60, 350, 440}); got != want {
		t.Errorf("resize after mount = %+v, want %+v", got, want)
	}
}
