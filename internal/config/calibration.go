package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LinePoints is the diagonal detection line on the overhead frame, in pixels.
type LinePoints struct {
	X1 float64 `yaml:"x1" json:"x1" validate:"gte=0"`
	Y1 float64 `yaml:"y1" json:"y1" validate:"gte=0"`
	X2 float64 `yaml:"x2" json:"x2" validate:"gte=0"`
	Y2 float64 `yaml:"y2" json:"y2" validate:"gte=0"`
}

// ZoneRect is the transaction zone on the frontal frame, in pixels.
type ZoneRect struct {
	X1 float64 `yaml:"x1" json:"x1" validate:"gte=0"`
	Y1 float64 `yaml:"y1" json:"y1" validate:"gte=0"`
	X2 float64 `yaml:"x2" json:"x2" validate:"gtfield=X1"`
	Y2 float64 `yaml:"y2" json:"y2" validate:"gtfield=Y1"`
}

type Calibration struct {
	Line LinePoints `yaml:"line" json:"line"`
	Zone ZoneRect   `yaml:"zone" json:"zone"`
}

func DefaultCalibration() Calibration {
	return Calibration{
		Line: LinePoints{X1: 200, Y1: 260, X2: 350, Y2: 210},
		Zone: ZoneRect{X1: 0, Y1: 0, X2: 160, Y2: 480},
	}
}

// LoadCalibration reads a YAML file of the form
//
//	line: {x1: 200, y1: 260, x2: 350, y2: 210}
//	zone: {x1: 0, y1: 0, x2: 160, y2: 480}
//
// Sections missing from the file keep their defaults.
func LoadCalibration(path string) (Calibration, error) {
	cal := DefaultCalibration()

	data, err := os.ReadFile(path)
	if err != nil {
		return cal, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if err := cal.Check(); err != nil {
		return cal, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return cal, nil
}

// Check validates the calibration on its own, as used for set_line requests.
func (c Calibration) Check() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Line.Check()
}

func (l LinePoints) Check() error {
	if err := validate.Struct(l); err != nil {
		return err
	}
	if l.X1 == l.X2 && l.Y1 == l.Y2 {
		return errors.New("detection line endpoints must differ")
	}
	return nil
}
