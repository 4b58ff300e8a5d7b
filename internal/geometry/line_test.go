package geometry

import (
	"testing"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
)

func rect(x1, y1, x2, y2 float64) r2.Rect {
	return r2.Rect{X: r1.Interval{Lo: x1, Hi: x2}, Y: r1.Interval{Lo: y1, Hi: y2}}
}

func TestLineCrossed(t *testing.T) {
	line := NewLine(200, 260, 350, 210)

	prev := r2.Point{X: 180, Y: 270}
	cur := r2.Point{X: 220, Y: 240}

	assert.Greater(t, line.Side(prev), 0.0)
	assert.Less(t, line.Side(cur), 0.0)
	assert.True(t, line.Crossed(prev, cur))
	assert.True(t, line.Crossed(cur, prev))
	assert.False(t, line.Crossed(prev, r2.Point{X: 170, Y: 290}))
}

func TestLineCrossedOnLine(t *testing.T) {
	line := NewLine(0, 0, 100, 0)
	// a point on the line is grouped with the non-positive side
	assert.False(t, line.Crossed(r2.Point{X: 10, Y: 0}, r2.Point{X: 20, Y: -5}))
	assert.True(t, line.Crossed(r2.Point{X: 10, Y: 0}, r2.Point{X: 20, Y: 5}))
}

func TestLineDistance(t *testing.T) {
	line := NewLine(0, 0, 100, 0)
	assert.InDelta(t, 15.0, line.Distance(r2.Point{X: 500, Y: -15}), 1e-9)

	diag := NewLine(0, 0, 10, 10)
	assert.InDelta(t, 0.0, diag.Distance(r2.Point{X: 5, Y: 5}), 1e-9)
}

func TestLineTouches(t *testing.T) {
	line := NewLine(200, 260, 350, 210)

	tests := []struct {
		name string
		box  r2.Rect
		want bool
	}{
		{"far away", rect(0, 0, 50, 50), false},
		{"corner within tolerance", rect(100, 280, 150, 286), true},
		{"overlaps bounding rect", rect(200, 210, 205, 213), true},
		{"straddles the line", rect(250, 200, 260, 280), true},
		{"beyond tolerance", rect(0, 400, 50, 450), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, line.Touches(tt.box, 15))
		})
	}
}

func TestOverlapsClosedIntervals(t *testing.T) {
	zone := rect(0, 0, 160, 480)
	assert.True(t, Overlaps(rect(160, 100, 200, 200), zone), "shared edge overlaps")
	assert.False(t, Overlaps(rect(161, 100, 200, 200), zone))
	assert.True(t, Overlaps(rect(-50, -50, 10, 10), zone))
}

func TestDegenerate(t *testing.T) {
	assert.True(t, NewLine(5, 5, 5, 5).Degenerate())
	assert.False(t, NewLine(5, 5, 6, 5).Degenerate())
}
