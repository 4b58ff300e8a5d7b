// Package engine fuses the overhead and frontal cameras. It owns the line
// crossing detector, the vehicle registry and the zone manager, and fixes the
// order their locks are taken in: zone, then detector, then registry.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/geometry"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/linecrossing"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/vehicles"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/zone"
)

type Config struct {
	Vehicles           vehicles.Config
	Line               linecrossing.Config
	Zone               zone.Config
	CleanupEveryFrames int
}

func DefaultConfig() Config {
	return Config{
		Vehicles:           vehicles.DefaultConfig(),
		Line:               linecrossing.DefaultConfig(),
		Zone:               zone.DefaultConfig(),
		CleanupEveryFrames: 30,
	}
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Vehicles:           vehicles.ConfigFrom(cfg),
		Line:               linecrossing.ConfigFrom(cfg),
		Zone:               zone.ConfigFrom(cfg),
		CleanupEveryFrames: cfg.CleanupEveryFrames,
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(models.Event) {}

type nopSaver struct{}

func (nopSaver) Save(models.Transaction) {}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option { return func(e *Engine) { e.clock = clock } }

// WithNotifier sets where registry events and panel updates go. Notify must
// not block; it can be called with component locks held.
func WithNotifier(n vehicles.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithSaver sets where completed transactions go. Like Notify, Save runs with
// component locks held and must not block.
func WithSaver(s vehicles.Saver) Option { return func(e *Engine) { e.saver = s } }

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

type Engine struct {
	cfg      Config
	clock    func() time.Time
	notifier vehicles.Notifier
	saver    vehicles.Saver
	logger   zerolog.Logger

	registry *vehicles.Registry
	detector *linecrossing.Detector
	zone     *zone.Manager

	overheadFrames atomic.Int64

	panelMu      sync.Mutex
	lastOverhead *models.OverheadUpdate
	lastFrontal  *models.FrontalUpdate
}

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		clock:    time.Now,
		notifier: nopNotifier{},
		saver:    nopSaver{},
		logger:   log.With().Str("service", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.CleanupEveryFrames <= 0 {
		e.cfg.CleanupEveryFrames = 30
	}

	e.registry = vehicles.NewRegistry(cfg.Vehicles,
		vehicles.WithNotifier(e.notifier),
		vehicles.WithSaver(e.saver),
		vehicles.WithLogger(e.logger.With().Str("component", "vehicles").Logger()),
	)
	e.detector = linecrossing.NewDetector(cfg.Line, e.registry, e.logger)
	e.zone = zone.NewManager(cfg.Zone, e.registry, e.logger)
	e.registry.SetReleaser(e.detector.Release)
	return e
}

func (e *Engine) Registry() *vehicles.Registry { return e.registry }

func (e *Engine) Vehicles() []models.Vehicle { return e.registry.List() }

func (e *Engine) Current() (models.Vehicle, bool) { return e.registry.Current() }

func (e *Engine) LineState() linecrossing.State { return e.detector.Snapshot() }

func (e *Engine) ZoneState() zone.State { return e.zone.Snapshot() }

// ProcessOverhead runs one overhead frame through the detector and returns
// the overhead panel. Expired vehicles are swept every CleanupEveryFrames
// frames.
func (e *Engine) ProcessOverhead(detections []models.Detection) models.OverheadUpdate {
	now := e.clock()
	e.detector.Update(detections, now)

	if n := e.overheadFrames.Add(1); n%int64(e.cfg.CleanupEveryFrames) == 0 {
		if removed := e.registry.CleanupExpired(now); removed > 0 {
			e.logger.Debug().Int("removed", removed).Msg("expired vehicles cleaned up")
		}
	}

	panel := e.OverheadPanel()
	e.emitOverhead(panel, now)
	return panel
}

// ProcessFrontal runs one frontal frame through the zone manager and returns
// the frontal panel.
func (e *Engine) ProcessFrontal(detections []models.Detection) models.FrontalUpdate {
	now := e.clock()
	e.zone.Update(detections, now)

	panel := e.FrontalPanel()
	e.emitFrontal(panel, now)
	return panel
}

// OverheadPanel shows the processing vehicle, else the vehicle the overhead
// camera is following, else an idle record.
func (e *Engine) OverheadPanel() models.OverheadUpdate {
	st := e.detector.Snapshot()
	panel := models.OverheadUpdate{
		VehicleID:      models.IdleVehicleID,
		Classification: models.IdleClassification,
		Status:         "idle",
		DetectedAxles:  st.DetectedAxles,
		SystemStatus:   models.SystemStandby,
	}
	if st.Touching {
		panel.SystemStatus = models.SystemActive
	}

	v, ok := e.registry.Current()
	if !ok && st.ActiveVehicle != "" {
		v, ok = e.registry.Get(st.ActiveVehicle)
	}
	if ok {
		panel.VehicleID = v.ID
		panel.AxleCount = v.AxleCount
		panel.Classification = panelClass(v.Classification)
		panel.Status = v.Status.String()
	}
	return panel
}

func (e *Engine) FrontalPanel() models.FrontalUpdate {
	st := e.zone.Snapshot()
	panel := models.FrontalUpdate{
		VehicleID:      models.IdleVehicleID,
		Classification: models.IdleClassification,
		Status:         "idle",
		TireConfig:     string(st.LastTire),
	}
	if v, ok := e.registry.Current(); ok {
		panel.VehicleID = v.ID
		panel.Classification = panelClass(v.Classification)
		panel.Status = v.Status.String()
	}
	return panel
}

func panelClass(c models.Classification) string {
	if !c.IsSet() {
		return models.IdleClassification
	}
	return string(c)
}

func (e *Engine) emitOverhead(panel models.OverheadUpdate, now time.Time) {
	e.panelMu.Lock()
	changed := e.lastOverhead == nil || *e.lastOverhead != panel
	if changed {
		e.lastOverhead = &panel
	}
	e.panelMu.Unlock()

	if changed {
		e.notifier.Notify(models.Event{Type: models.EventOverheadUpdate, Timestamp: now, Data: panel})
	}
}

func (e *Engine) emitFrontal(panel models.FrontalUpdate, now time.Time) {
	e.panelMu.Lock()
	changed := e.lastFrontal == nil || *e.lastFrontal != panel
	if changed {
		e.lastFrontal = &panel
	}
	e.panelMu.Unlock()

	if changed {
		e.notifier.Notify(models.Event{Type: models.EventFrontalUpdate, Timestamp: now, Data: panel})
	}
}

// ResetSoft completes the processing vehicle and forgets all vehicles and
// tracks. Vehicle ids keep counting.
func (e *Engine) ResetSoft() {
	e.reset(false)
}

// ResetHard also restarts vehicle ids at V0001 and track ids at 1.
func (e *Engine) ResetHard() {
	e.reset(true)
}

func (e *Engine) reset(hard bool) {
	now := e.clock()
	// zone, detector, registry: all three stay locked until every part is
	// reset, so neither loop sees a half-reset engine
	e.zone.ResetWith(hard, func() {
		e.detector.ResetWith(hard, func() {
			if hard {
				e.registry.ResetHard(now)
			} else {
				e.registry.ResetSoft(now)
			}
		})
	})

	e.panelMu.Lock()
	e.lastOverhead = nil
	e.lastFrontal = nil
	e.panelMu.Unlock()

	e.logger.Warn().Bool("hard", hard).Msg("system reset")
}

// SetLine moves the overhead detection line.
func (e *Engine) SetLine(p config.LinePoints) error {
	if err := p.Check(); err != nil {
		return fmt.Errorf("invalid detection line: %w", err)
	}
	e.detector.SetLine(geometry.NewLine(p.X1, p.Y1, p.X2, p.Y2))
	return nil
}
