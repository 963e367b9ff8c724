// Package stroke captures pointer input as ink strokes and renders them into
// a signature image.
//
// The package is split into:
//   - Pad: the controller that buffers pointer events into strokes and owns
//     the committed stroke list (undo, clear, resize, restore)
//   - Surface: the drawing port a Pad renders through
//   - Raster: a software Surface backed by an in-memory RGBA buffer
//   - Recorder: a Surface that only records calls, for tests
//
// Point coordinates are always in the visual (CSS-like) coordinate space.
// Surfaces scale them by the device pixel ratio at render time.
package stroke

import (
	"image/color"
)

// Point is one sampled pointer position.
type Point struct {
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	Pressure float32 `json:"pressure,omitempty"`
}

// Mid returns the midpoint between p and q.
func (p Point) Mid(q Point) Point {
	return Point{
		X:        (p.X + q.X) / 2,
		Y:        (p.Y + q.Y) / 2,
		Pressure: (p.Pressure + q.Pressure) / 2,
	}
}

// Style holds the rendering attributes fixed when a stroke starts.
type Style struct {
	Color color.NRGBA `json:"color"`
	Width float32     `json:"width"`
}

// DefaultStyle is a dark ink pen, 2.5 visual units wide.
var DefaultStyle = Style{
	Color: color.NRGBA{R: 0x1A, G: 0x1A, B: 0x2E, A: 0xFF},
	Width: 2.5,
}

// Stroke is one continuous pointer drag. Points are kept in capture order.
type Stroke struct {
	Points []Point `json:"points"`
	Style  Style   `json:"style"`
}

// minStrokePoints is the smallest number of points that counts as a mark.
// Anything shorter is a tap.
const minStrokePoints = 2

// Valid reports whether the stroke has enough points to be committed.
func (s Stroke) Valid() bool {
	return len(s.Points) >= minStrokePoints
}

// Clone returns a deep copy of the stroke.
func (s Stroke) Clone() Stroke {
	pts := make([]Point, len(s.Points))
	copy(pts, s.Points)
	return Stroke{Points: pts, Style: s.Style}
}

// Segment is one quadratic curve piece of a rendered stroke. A straight line
// is a Segment whose control point lies on the From-To line.
type Segment struct {
	From Point
	Ctrl Point
	To   Point
}

// Line returns a straight segment from a to b.
func Line(a, b Point) Segment {
	return Segment{From: a, Ctrl: a.Mid(b), To: b}
}

// At evaluates the curve at t in [0, 1].
func (s Segment) At(t float32) Point {
	u := 1 - t
	return Point{
		X:        u*u*s.From.X + 2*u*t*s.Ctrl.X + t*t*s.To.X,
		Y:        u*u*s.From.Y + 2*u*t*s.Ctrl.Y + t*t*s.To.Y,
		Pressure: u*s.From.Pressure + t*s.To.Pressure,
	}
}

// settled returns the i-th curve of a smoothed point sequence. Curve i only
// depends on points[0..i], so it can be drawn as soon as point i arrives.
//
// Curve 0 is the lead-in from the first point to the first midpoint; every
// later curve bends through a sampled point and ends on the midpoint between
// it and the next sample.
func settled(points []Point, i int) Segment {
	if i == 1 {
		return Line(points[0], points[0].Mid(points[1]))
	}
	return Segment{
		From: points[i-2].Mid(points[i-1]),
		Ctrl: points[i-1],
		To:   points[i-1].Mid(points[i]),
	}
}

// tail returns the closing piece from the last midpoint to the final point.
func tail(points []Point) Segment {
	n := len(points)
	return Line(points[n-2].Mid(points[n-1]), points[n-1])
}

// Smooth converts a sampled point sequence into quadratic segments that pass
// through the midpoints between consecutive samples, using the samples
// themselves as control points. Fewer than two points yield no segments.
func Smooth(points []Point) []Segment {
	if len(points) < minStrokePoints {
		return nil
	}
	segs := make([]Segment, 0, len(points))
	for i := 1; i < len(points); i++ {
		segs = append(segs, settled(points, i))
	}
	return append(segs, tail(points))
}
