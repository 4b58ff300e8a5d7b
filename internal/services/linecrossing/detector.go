// Package linecrossing follows axles across the diagonal overhead line and
// decides when a vehicle's overhead pass starts and ends.
package linecrossing

import (
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/rs/zerolog"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/geometry"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// Registry is the part of the vehicle registry the detector drives.
type Registry interface {
	CreateVehicle(now time.Time) string
	FinalizeFromOverhead(id string)
	UpdateAxleCount(id string, count int, now time.Time)
}

type Config struct {
	Line             geometry.Line
	TouchTolerance   float64
	BodyTimeout      time.Duration
	AxleTimeout      time.Duration
	MaxMatchDistance float64
	History          int
	StaleAfter       time.Duration
	AxleClassID      int
	BodyClassIDs     []int
}

func DefaultConfig() Config {
	return Config{
		Line:             geometry.NewLine(200, 260, 350, 210),
		TouchTolerance:   15,
		BodyTimeout:      500 * time.Millisecond,
		AxleTimeout:      time.Second,
		MaxMatchDistance: 80,
		History:          5,
		StaleAfter:       5 * time.Second,
		AxleClassID:      0,
		BodyClassIDs:     []int{1, 2, 3},
	}
}

func ConfigFrom(cfg *config.Config) Config {
	l := cfg.Calibration.Line
	return Config{
		Line:             geometry.NewLine(l.X1, l.Y1, l.X2, l.Y2),
		TouchTolerance:   cfg.TouchTolerance,
		BodyTimeout:      cfg.BodyTimeout,
		AxleTimeout:      cfg.AxleTimeout,
		MaxMatchDistance: cfg.MaxMatchDistance,
		History:          cfg.TrackHistory,
		StaleAfter:       cfg.TrackStaleAfter,
		AxleClassID:      cfg.AxleClassID,
		BodyClassIDs:     cfg.BodyClassIDs,
	}
}

// TrackView is a read-only copy of one axle track.
type TrackView struct {
	ID        int        `json:"id"`
	VehicleID string     `json:"vehicle_id"`
	Positions []r2.Point `json:"positions"`
	Crossed   bool       `json:"crossed"`
	LastSeen  time.Time  `json:"last_seen"`
}

// State is a read-only copy of the detector used for overlays and panels.
type State struct {
	Line          geometry.Line `json:"line"`
	Touching      bool          `json:"touching"`
	ActiveVehicle string        `json:"active_vehicle"`
	DetectedAxles int           `json:"detected_axles"`
	Tracks        []TrackView   `json:"tracks"`
}

type Detector struct {
	cfg      Config
	registry Registry
	logger   zerolog.Logger
	bodies   map[int]bool

	mu               sync.Mutex
	line             geometry.Line
	table            trackTable
	active           string
	crossed          map[string]int
	touching         bool
	lastTouch        time.Time
	lastAxleActivity time.Time
	detectedAxles    int
}

func NewDetector(cfg Config, registry Registry, logger zerolog.Logger) *Detector {
	bodies := make(map[int]bool, len(cfg.BodyClassIDs))
	for _, id := range cfg.BodyClassIDs {
		bodies[id] = true
	}
	return &Detector{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With().Str("component", "linecrossing").Logger(),
		bodies:   bodies,
		line:     cfg.Line,
		table:    newTrackTable(),
		crossed:  make(map[string]int),
	}
}

// Update processes one overhead frame worth of detections.
func (d *Detector) Update(detections []models.Detection, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var bodies []r2.Rect
	var axles []r2.Point
	for _, det := range detections {
		if !det.Valid() {
			d.logger.Debug().Interface("detection", det).Msg("malformed detection skipped")
			continue
		}
		switch {
		case det.ClassID == d.cfg.AxleClassID:
			axles = append(axles, det.Box.Center())
		case d.bodies[det.ClassID]:
			bodies = append(bodies, det.Box.Rect())
		}
	}
	d.detectedAxles = len(axles)

	if d.updateTouchLocked(bodies, now) && d.active != "" {
		d.logger.Info().Str("vehicle_id", d.active).Msg("body left the line, finalizing")
		d.finalizeLocked()
		return
	}
	if !d.touching {
		return
	}

	if len(axles) > 0 {
		d.lastAxleActivity = now
	}
	if d.active != "" && now.Sub(d.lastAxleActivity) > d.cfg.AxleTimeout {
		d.logger.Info().Str("vehicle_id", d.active).Msg("axle timeout, finalizing")
		d.finalizeLocked()
		return
	}

	matched := make(map[int]bool, len(axles))
	for _, c := range axles {
		if t, ok := d.table.nearest(c, d.cfg.MaxMatchDistance, matched); ok {
			matched[t.id] = true
			t.observe(c, now, d.cfg.History)
			d.checkCrossingLocked(t, now)
			continue
		}

		if d.active == "" {
			d.active = d.registry.CreateVehicle(now)
			d.crossed[d.active] = 0
			d.lastAxleActivity = now
			d.logger.Info().Str("vehicle_id", d.active).Msg("overhead tracking started")
		}
		t := d.table.add(d.active, c, now)
		matched[t.id] = true
		d.checkCrossingLocked(t, now)
	}

	d.table.purge(now, d.cfg.StaleAfter)
}

// updateTouchLocked debounces whether any body touches the line. It reports
// true once, when the touch has been absent for longer than the body timeout.
func (d *Detector) updateTouchLocked(bodies []r2.Rect, now time.Time) bool {
	for _, b := range bodies {
		if d.line.Touches(b, d.cfg.TouchTolerance) {
			if !d.touching {
				d.logger.Debug().Msg("body touching line")
			}
			d.touching = true
			d.lastTouch = now
			return false
		}
	}
	if d.touching && now.Sub(d.lastTouch) > d.cfg.BodyTimeout {
		d.touching = false
		return true
	}
	return false
}

// checkCrossingLocked compares the last two centroids of t. The crossed flag
// is sticky so each track counts at most once.
func (d *Detector) checkCrossingLocked(t *track, now time.Time) {
	if t.crossed || len(t.positions) < 2 {
		return
	}
	prev, cur := t.positions[len(t.positions)-2], t.positions[len(t.positions)-1]
	if !d.line.Crossed(prev, cur) {
		return
	}
	t.crossed = true
	if t.vehicleID == "" {
		return
	}
	d.crossed[t.vehicleID]++
	count := d.crossed[t.vehicleID]

	d.logger.Info().
		Int("track_id", t.id).
		Str("vehicle_id", t.vehicleID).
		Int("axle_count", count).
		Msg("axle_crossed")
	d.registry.UpdateAxleCount(t.vehicleID, count, now)
}

func (d *Detector) finalizeLocked() {
	id := d.active
	d.registry.FinalizeFromOverhead(id)
	delete(d.crossed, id)
	d.resetTrackingLocked(false)
}

func (d *Detector) resetTrackingLocked(hard bool) {
	d.table.clear(hard)
	d.active = ""
	d.touching = false
	d.lastTouch = time.Time{}
}

// Release drops any overhead-side ownership of a vehicle that has completed.
func (d *Detector) Release(vehicleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.table.dropVehicle(vehicleID)
	delete(d.crossed, vehicleID)
	if d.active == vehicleID {
		d.logger.Debug().Str("vehicle_id", vehicleID).Msg("released active vehicle")
		d.resetTrackingLocked(false)
	}
}

// Reset clears all tracks and the active vehicle. A hard reset also
// restarts track ids.
func (d *Detector) Reset(hard bool) {
	d.ResetWith(hard, nil)
}

// ResetWith runs fn with the detector lock held and then clears the
// detector, so no overhead frame can create a vehicle in between. fn must not
// call back into the detector.
func (d *Detector) ResetWith(hard bool, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fn != nil {
		fn()
	}
	d.resetTrackingLocked(hard)
	d.crossed = make(map[string]int)
	d.detectedAxles = 0
	d.logger.Info().Bool("hard", hard).Msg("line crossing reset")
}

// SetLine moves the detection line. Existing tracks are kept.
func (d *Detector) SetLine(line geometry.Line) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.line = line
	d.logger.Info().
		Float64("x1", line.A.X).Float64("y1", line.A.Y).
		Float64("x2", line.B.X).Float64("y2", line.B.Y).
		Msg("detection line moved")
}

func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := State{
		Line:          d.line,
		Touching:      d.touching,
		ActiveVehicle: d.active,
		DetectedAxles: d.detectedAxles,
	}
	for _, t := range d.table.ordered() {
		st.Tracks = append(st.Tracks, TrackView{
			ID:        t.id,
			VehicleID: t.vehicleID,
			Positions: append([]r2.Point(nil), t.positions...),
			Crossed:   t.crossed,
			LastSeen:  t.lastSeen,
		})
	}
	return st
}
