package cli

import (
	"fmt"

	"github.com/sarassure/sarassure/internal/area"
)

// FormatRect formats a rectangle as "x,y wxh".
func FormatRect(r area.Rect) string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// FormatArea adds the presentation attributes to FormatRect.
func FormatArea(a area.Area) string {
	visibility := "visible"
	if !a.Visible {
		visibility = "hidden"
	}
	shape := a.Shape
	if shape == "" {
		shape = area.ShapeRectangle
	}
	return fmt.Sprintf("%s %s %s %s", FormatRect(a.Rect), shape, visibility, a.Color)
}

// FormatDims formats image dimensions as "WxH".
func FormatDims(d area.ImageDimensions) string {
	return fmt.Sprintf("%.0fx%.0f", d.NaturalWidth, d.NaturalHeight)
}
