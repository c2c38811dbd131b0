// Package area implements the annotation-area editor used by trainers to mark
// the tap target on a recreated phone screenshot.
//
// All rectangles live in natural image pixel space: the intrinsic size of the
// screenshot, independent of how large it is rendered. Pointer positions arrive
// in screen space and are converted with ScreenToImage before any mutation, so
// a rectangle drawn on a phone-sized preview and one drawn full screen land on
// the same pixels.
package area

import (
	"fmt"
	"math"
)

// MinSize is the smallest width or height a rectangle can be resized to.
const MinSize = 10

// Shape of a rendered annotation.
type Shape string

const (
	ShapeRectangle Shape = "rectangle"
	ShapeEllipse   Shape = "ellipse"
)

// ParseShape maps a stored shape name to a Shape.
func ParseShape(s string) (Shape, error) {
	switch sh := Shape(s); sh {
	case ShapeRectangle, ShapeEllipse:
		return sh, nil
	}
	return "", fmt.Errorf("unknown shape %q", s)
}

// Rect is an axis-aligned rectangle in natural image pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area is a Rect plus its presentation attributes as stored in a step's
// configuration.
type Area struct {
	Rect
	Color   string `json:"color,omitempty"`
	Shape   Shape  `json:"shape,omitempty"`
	Visible bool   `json:"isVisible"`
}

// ImageDimensions holds the displayed and intrinsic size of a rendered image.
type ImageDimensions struct {
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	NaturalWidth  float64 `json:"naturalWidth"`
	NaturalHeight float64 `json:"naturalHeight"`
}

// Mounted reports whether the image has a usable layout.
func (d ImageDimensions) Mounted() bool {
	return d.Width > 0 && d.Height > 0 && d.NaturalWidth > 0 && d.NaturalHeight > 0
}

// Point is a position in either screen or image space.
type Point struct {
	X float64
	Y float64
}

// BoundingBox is the on-screen placement of the rendered image.
type BoundingBox struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// ScreenToImage converts a screen-space pointer position to natural image
// pixels. Before the image is mounted it returns the zero Point; callers see
// this during the first render frame and must tolerate it.
func ScreenToImage(p Point, box BoundingBox, dims ImageDimensions) Point {
	if !dims.Mounted() || box.Width <= 0 || box.Height <= 0 {
		return Point{}
	}
	scaleX := dims.NaturalWidth / dims.Width
	scaleY := dims.NaturalHeight / dims.Height
	return Point{
		X: (p.X - box.Left) * scaleX,
		Y: (p.Y - box.Top) * scaleY,
	}
}

// Clamp returns r moved and shrunk so that it lies inside an image of the
// given natural size, with each side at least MinSize where the image allows.
// Position is clamped first, then size reduced to fit. Without a natural
// size (the image has not loaded) r is returned unchanged.
func Clamp(r Rect, dims ImageDimensions) Rect {
	nw, nh := naturalSize(dims)
	if nw <= 0 || nh <= 0 {
		return r
	}
	r.Width = max(r.Width, MinSize)
	r.Height = max(r.Height, MinSize)
	r.X = clampInt(r.X, 0, nw-MinSize)
	r.Y = clampInt(r.Y, 0, nh-MinSize)
	r.Width = max(0, min(r.Width, nw-r.X))
	r.Height = max(0, min(r.Height, nh-r.Y))
	return r
}

// Contains reports whether p (image space) falls inside r. The learner side
// uses it to decide whether a tap hit the target.
func (r Rect) Contains(p Point) bool {
	return p.X >= float64(r.X) && p.X < float64(r.X+r.Width) &&
		p.Y >= float64(r.Y) && p.Y < float64(r.Y+r.Height)
}

func naturalSize(dims ImageDimensions) (int, int) {
	return int(math.Round(dims.NaturalWidth)), int(math.Round(dims.NaturalHeight))
}

// clampInt bounds v to [lo, hi]; when hi < lo the lower bound wins.
func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func round(f float64) int {
	return int(math.Round(f))
}
