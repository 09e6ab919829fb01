package zones

import (
	"strconv"
	"time"
)

// Color is an RGB triple in the 0-255 range, used by annotation
// parameters below. The zone engine never renders pixels itself
// (spec.md Non-goals exclude the video pipeline) — these types are
// the parameters an external renderer applies.
type Color struct {
	R, G, B uint8
}

// LineAnnotation is the drawing configuration for one line zone. All
// fields are read-only parameters; applying them never mutates zone
// state (spec.md §4.C5.h).
type LineAnnotation struct {
	Color             Color
	Thickness         int
	DrawArrow         bool
	DrawEndpointCircles bool
	CircleRadius      int
	InText, OutText   string
	DisplayTextBox    bool
}

// DefaultLineAnnotation mirrors the original's constructor defaults.
func DefaultLineAnnotation() LineAnnotation {
	return LineAnnotation{
		Color: Color{0, 255, 0}, Thickness: 2, DrawArrow: true,
		DrawEndpointCircles: true, CircleRadius: 5,
		InText: "in", OutText: "out", DisplayTextBox: true,
	}
}

// PolygonAnnotation is the drawing configuration for one polygon zone.
type PolygonAnnotation struct {
	Color        Color
	Thickness    int
	Opacity      float64 // [0,1], fill translucency
	DisplayCount bool
	ShowTrackIDs bool
}

// DefaultPolygonAnnotation mirrors the original's constructor defaults,
// with a fixed opacity of 0.2.
func DefaultPolygonAnnotation() PolygonAnnotation {
	return PolygonAnnotation{
		Color: Color{0, 255, 0}, Thickness: 2, Opacity: 0.2, DisplayCount: true,
	}
}

// ClampOpacity restricts o to [0,1], matching the original's
// std::max(0.0f, std::min(1.0f, opacity)).
func ClampOpacity(o float64) float64 {
	if o < 0 {
		return 0
	}
	if o > 1 {
		return 1
	}
	return o
}

// FormatDwell renders a duration as MM:SS, for the per-track dwell
// label drawn beside a tracked object (spec.md §4.C5.h).
func FormatDwell(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	minutes, seconds := total/60, total%60
	digits := func(n int) string {
		if n < 10 {
			return "0" + strconv.Itoa(n)
		}
		return strconv.Itoa(n)
	}
	return digits(minutes) + ":" + digits(seconds)
}
