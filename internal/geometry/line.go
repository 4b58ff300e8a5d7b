// Package geometry holds the line and rectangle tests used by the fusion engine.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

// Line is a directed segment from A to B. Side and distance tests treat it as
// the infinite line through both points.
type Line struct {
	A r2.Point
	B r2.Point
}

func NewLine(x1, y1, x2, y2 float64) Line {
	return Line{A: r2.Point{X: x1, Y: y1}, B: r2.Point{X: x2, Y: y2}}
}

func (l Line) Degenerate() bool {
	return l.A == l.B
}

// Side returns the cross product (B-A) x (p-A). Its sign tells which side of
// the line p lies on; zero means p is on the line.
func (l Line) Side(p r2.Point) float64 {
	return l.B.Sub(l.A).Cross(p.Sub(l.A))
}

// Distance is the perpendicular distance from p to the infinite line.
func (l Line) Distance(p r2.Point) float64 {
	norm := l.B.Sub(l.A).Norm()
	if norm == 0 {
		return p.Sub(l.A).Norm()
	}
	return math.Abs(l.Side(p)) / norm
}

// Bounds is the axis-aligned rectangle spanned by the two endpoints.
func (l Line) Bounds() r2.Rect {
	return r2.RectFromPoints(l.A, l.B)
}

// Crossed reports whether moving from prev to cur changes side. A point lying
// exactly on the line counts as the non-positive side.
func (l Line) Crossed(prev, cur r2.Point) bool {
	return (l.Side(prev) > 0) != (l.Side(cur) > 0)
}

// Touches reports whether a box is near enough to the line: any corner within
// tolerance of the infinite line, or the box overlapping the line's bounds.
func (l Line) Touches(box r2.Rect, tolerance float64) bool {
	for _, v := range box.Vertices() {
		if l.Distance(v) <= tolerance {
			return true
		}
	}
	return box.Intersects(l.Bounds())
}

// Overlaps reports whether two rectangles share at least one point.
// Touching edges count as overlap.
func Overlaps(a, b r2.Rect) bool {
	return a.Intersects(b)
}
