// Package zone watches the transaction zone on the frontal camera and moves
// vehicles through the processing slot of the registry.
package zone

import (
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/rs/zerolog"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/geometry"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// Registry is the part of the vehicle registry the zone manager drives.
// Every call is made with the manager's own lock held.
type Registry interface {
	Current() (models.Vehicle, bool)
	PromoteNext(now time.Time) (models.Vehicle, bool)
	ExtendCurrentTimeout() bool
	CompleteCurrent(reason models.CompletionReason, now time.Time) bool
	UpdateTireConfig(id string, tire models.TireConfig, now time.Time)
	ResetSoft(now time.Time)
	ResetHard(now time.Time)
}

type Config struct {
	Zone              r2.Rect
	ClearDelay        time.Duration
	BodyClassIDs      []int
	SingleTireClassID int
	DoubleTireClassID int
}

func DefaultConfig() Config {
	return Config{
		Zone:              r2.RectFromPoints(r2.Point{X: 0, Y: 0}, r2.Point{X: 160, Y: 480}),
		ClearDelay:        500 * time.Millisecond,
		SingleTireClassID: 3,
		DoubleTireClassID: 2,
	}
}

func ConfigFrom(cfg *config.Config) Config {
	z := cfg.Calibration.Zone
	return Config{
		Zone:              r2.RectFromPoints(r2.Point{X: z.X1, Y: z.Y1}, r2.Point{X: z.X2, Y: z.Y2}),
		ClearDelay:        cfg.ClearDelay,
		BodyClassIDs:      cfg.FrontalBodyClassIDs,
		SingleTireClassID: cfg.SingleTireClassID,
		DoubleTireClassID: cfg.DoubleTireClassID,
	}
}

// State is a read-only copy of the zone used for overlays and panels.
type State struct {
	Zone          r2.Rect           `json:"zone"`
	Occupied      bool              `json:"occupied"`
	ClearPending  bool              `json:"clear_pending"`
	LastTire      models.TireConfig `json:"last_tire"`
	ProcessingID  string            `json:"processing_id"`
	OccupiedSince *time.Time        `json:"occupied_since,omitempty"`
}

type Manager struct {
	cfg      Config
	registry Registry
	logger   zerolog.Logger
	bodies   map[int]bool

	mu            sync.Mutex
	occupied      bool
	occupiedSince time.Time
	clearSince    time.Time
	lastTire      models.TireConfig
	processingID  string
}

func NewManager(cfg Config, registry Registry, logger zerolog.Logger) *Manager {
	var bodies map[int]bool
	if len(cfg.BodyClassIDs) > 0 {
		bodies = make(map[int]bool, len(cfg.BodyClassIDs))
		for _, id := range cfg.BodyClassIDs {
			bodies[id] = true
		}
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With().Str("component", "zone").Logger(),
		bodies:   bodies,
	}
}

// Update processes one frontal frame worth of detections.
func (m *Manager) Update(detections []models.Detection, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inZone := false
	tire := models.TireUnset
	for _, det := range detections {
		if !det.Valid() {
			continue
		}
		if tire == models.TireUnset {
			tire = m.tireFor(det.ClassID)
		}
		if !inZone && m.isBody(det.ClassID) && geometry.Overlaps(det.Box.Rect(), m.cfg.Zone) {
			inZone = true
		}
	}
	m.lastTire = tire
	m.debounceLocked(inZone, now)

	cur, ok := m.registry.Current()
	if !ok && m.occupied {
		cur, ok = m.registry.PromoteNext(now)
		if ok {
			m.logger.Info().Str("vehicle_id", cur.ID).Msg("vehicle entered transaction zone")
		}
	}
	if !ok {
		m.processingID = ""
		return
	}
	m.processingID = cur.ID

	if m.settleLocked(cur, now) {
		m.processingID = ""
		return
	}
	if tire != models.TireUnset {
		m.registry.UpdateTireConfig(cur.ID, tire, now)
	}
}

// debounceLocked flips to occupied at once but only back to clear after the
// zone has read empty for the whole clear delay.
func (m *Manager) debounceLocked(inZone bool, now time.Time) {
	if inZone {
		if !m.occupied {
			m.occupied = true
			m.occupiedSince = now
			m.logger.Debug().Msg("zone_occupied")
		}
		m.clearSince = time.Time{}
		return
	}
	if !m.occupied {
		return
	}
	if m.clearSince.IsZero() {
		m.clearSince = now
		return
	}
	if now.Sub(m.clearSince) > m.cfg.ClearDelay {
		m.occupied = false
		m.occupiedSince = time.Time{}
		m.clearSince = time.Time{}
		m.logger.Debug().Msg("zone_clear")
	}
}

// settleLocked applies exit and timeout rules to the processing vehicle. It
// reports whether the vehicle was completed.
func (m *Manager) settleLocked(cur models.Vehicle, now time.Time) bool {
	if !m.occupied && cur.EnteredZone {
		return m.registry.CompleteCurrent(models.CompletionNormal, now)
	}
	if cur.TransactionStart == nil {
		return false
	}
	elapsed := now.Sub(*cur.TransactionStart)
	if elapsed <= cur.MaxTransactionTime {
		return false
	}

	// Promotion marks the vehicle as inside the zone, so a clear zone always
	// takes the normal exit above, even past the deadline. Only an occupied
	// zone can time out.
	if !cur.TimeoutExtended {
		m.logger.Warn().Str("vehicle_id", cur.ID).Dur("elapsed", elapsed).Msg("transaction timed out with zone occupied, extending")
		m.registry.ExtendCurrentTimeout()
		return false
	}
	m.logger.Warn().Str("vehicle_id", cur.ID).Dur("elapsed", elapsed).Msg("extended transaction timed out, forcing completion")
	return m.registry.CompleteCurrent(models.CompletionTimeout, now)
}

func (m *Manager) isBody(classID int) bool {
	return m.bodies == nil || m.bodies[classID]
}

func (m *Manager) tireFor(classID int) models.TireConfig {
	switch classID {
	case m.cfg.SingleTireClassID:
		return models.TireSingle
	case m.cfg.DoubleTireClassID:
		return models.TireDouble
	}
	return models.TireUnset
}

// Reset clears occupancy and resets the registry while holding the zone
// lock, so no frontal frame can promote a vehicle halfway through.
func (m *Manager) Reset(hard bool, now time.Time) {
	m.ResetWith(hard, func() {
		if hard {
			m.registry.ResetHard(now)
		} else {
			m.registry.ResetSoft(now)
		}
	})
}

// ResetWith clears occupancy after running reset with the zone lock held.
// reset is expected to reset the registry and may take the detector and
// registry locks, never the zone lock.
func (m *Manager) ResetWith(hard bool, reset func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reset()
	m.occupied = false
	m.occupiedSince = time.Time{}
	m.clearSince = time.Time{}
	m.lastTire = models.TireUnset
	m.processingID = ""
	m.logger.Info().Bool("hard", hard).Msg("zone reset")
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Zone:         m.cfg.Zone,
		Occupied:     m.occupied,
		ClearPending: !m.clearSince.IsZero(),
		LastTire:     m.lastTire,
		ProcessingID: m.processingID,
	}
	if m.occupied {
		since := m.occupiedSince
		st.OccupiedSince = &since
	}
	return st
}
