package models

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// Box is an axis-aligned bounding box in frame pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the box has finite coordinates and non-negative extent.
func (b Box) Valid() bool {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 >= b.X1 && b.Y2 >= b.Y1
}

func (b Box) Rect() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: b.X1, Hi: b.X2},
		Y: r1.Interval{Lo: b.Y1, Hi: b.Y2},
	}
}

func (b Box) Center() r2.Point {
	return r2.Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Detection is one object reported by the detector for a single frame.
type Detection struct {
	Box        Box     `json:"box"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Valid reports whether the detection can be used by the fusion engine.
func (d Detection) Valid() bool {
	return d.Box.Valid() && d.ClassID >= 0 && !math.IsNaN(d.Confidence)
}

// TireConfig is the tire arrangement observed by the frontal camera.
type TireConfig string

const (
	TireUnset  TireConfig = ""
	TireSingle TireConfig = "single_tire"
	TireDouble TireConfig = "double_tire"
)

func (t TireConfig) String() string {
	if t == TireUnset {
		return "unset"
	}
	return string(t)
}

func (t TireConfig) IsValid() bool {
	switch t {
	case TireUnset, TireSingle, TireDouble:
		return true
	default:
		return false
	}
}
