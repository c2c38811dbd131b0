package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sarassure/sarassure/internal/area"
)

// NaturalLayout lays an image out at its natural size at the origin, so
// screen and image coordinates coincide.
func NaturalLayout(dims area.ImageDimensions) (area.BoundingBox, area.ImageDimensions) {
	dims.Width, dims.Height = dims.NaturalWidth, dims.NaturalHeight
	return area.BoundingBox{Width: dims.Width, Height: dims.Height}, dims
}

// FetchImageDimensions downloads a screenshot and reads its natural size.
func FetchImageDimensions(ctx context.Context, client *http.Client, url string) (area.ImageDimensions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return area.ImageDimensions{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return area.ImageDimensions{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return area.ImageDimensions{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	dims, _, err := area.Probe(io.LimitReader(resp.Body, 32<<20))
	return dims, err
}

// Drag moves the session's rectangle by (dx, dy) screen pixels, grabbing it
// at its centre.
func Drag(s *area.Session, dx, dy float64) area.Rect {
	ed := s.Editor()
	r := ed.Rect()
	start := area.PointerEvent{
		ClientX: float64(r.X) + float64(r.Width)/2,
		ClientY: float64(r.Y) + float64(r.Height)/2,
	}
	ed.BeginDrag(&start)
	out := ed.Move(area.PointerEvent{ClientX: start.ClientX + dx, ClientY: start.ClientY + dy})
	ed.End()
	return out
}

// Resize drags handle h by (dx, dy) screen pixels.
func Resize(s *area.Session, h area.Handle, dx, dy float64) area.Rect {
	ed := s.Editor()
	x, y := handlePosition(ed.Rect(), h)
	start := area.PointerEvent{ClientX: x, ClientY: y, Target: h}
	ed.BeginResize(&start, h)
	// The same press must not also start a body drag.
	ed.BeginDrag(&start)
	out := ed.Move(area.PointerEvent{ClientX: x + dx, ClientY: y + dy, Target: h})
	ed.End()
	return out
}

func handlePosition(r area.Rect, h area.Handle) (float64, float64) {
	x := float64(r.X) + float64(r.Width)/2
	y := float64(r.Y) + float64(r.Height)/2
	switch h {
	case area.HandleTopLeft, area.HandleLeft, area.HandleBottomLeft:
		x = float64(r.X)
	case area.HandleTopRight, area.HandleRight, area.HandleBottomRight:
		x = float64(r.X + r.Width)
	}
	switch h {
	case area.HandleTopLeft, area.HandleTop, area.HandleTopRight:
		y = float64(r.Y)
	case area.HandleBottomLeft, area.HandleBottom, area.HandleBottomRight:
		y = float64(r.Y + r.Height)
	}
	return x, y
}
