// Package vehicles owns every vehicle record, the id counter, the FIFO of
// vehicles waiting for the frontal camera and the single processing slot.
package vehicles

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// Notifier receives registry events. It is called without the registry
// lock but may be called while the zone manager or line crossing detector
// holds its lock, so Notify must never block: drop or queue instead.
type Notifier interface {
	Notify(event models.Event)
}

// Saver receives completed transactions under the same rules as Notifier:
// no registry lock, possibly a component lock, and Save must never block.
// Queue the write and report failures through logs.
type Saver interface {
	Save(tx models.Transaction)
}

// Savers hands each transaction to every Saver in order.
type Savers []Saver

func (s Savers) Save(tx models.Transaction) {
	for _, saver := range s {
		saver.Save(tx)
	}
}

type Config struct {
	LearningWindow          time.Duration
	MaxTransactionTime      time.Duration
	ExtendedTransactionTime time.Duration
	CompletedRetention      time.Duration
	GhostRetention          time.Duration
	Location                *time.Location
}

func DefaultConfig() Config {
	return Config{
		LearningWindow:          4 * time.Second,
		MaxTransactionTime:      15 * time.Second,
		ExtendedTransactionTime: 60 * time.Second,
		CompletedRetention:      60 * time.Second,
		GhostRetention:          20 * time.Second,
		Location:                time.UTC,
	}
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		LearningWindow:          cfg.LearningWindow,
		MaxTransactionTime:      cfg.MaxTransactionTime,
		ExtendedTransactionTime: cfg.ExtendedTransactionTime,
		CompletedRetention:      cfg.CompletedRetention,
		GhostRetention:          cfg.GhostRetention,
		Location:                cfg.Location(),
	}
}

type record struct {
	id  string
	num int

	axleCount    int
	tire         models.TireConfig
	configLocked bool
	class        models.Classification
	notified     map[models.Classification]bool
	status       models.VehicleStatus

	createdAt        time.Time
	processingStart  time.Time
	transactionStart time.Time
	completedAt      time.Time

	maxTransaction  time.Duration
	timeoutExtended bool
	enteredZone     bool
}

func (r *record) snapshot() models.Vehicle {
	v := models.Vehicle{
		ID:                 r.id,
		AxleCount:          r.axleCount,
		TireConfig:         r.tire,
		ConfigLocked:       r.configLocked,
		Classification:     r.class,
		Status:             r.status,
		CreatedAt:          r.createdAt,
		MaxTransactionTime: r.maxTransaction,
		TimeoutExtended:    r.timeoutExtended,
		EnteredZone:        r.enteredZone,
	}
	if !r.transactionStart.IsZero() {
		t := r.transactionStart
		v.TransactionStart = &t
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		v.CompletedAt = &t
	}
	return v
}

// effects are side effects collected under the lock and run after it is released.
type effects struct {
	events   []models.Event
	txs      []models.Transaction
	released []string
}

type Registry struct {
	cfg    Config
	logger zerolog.Logger

	notifier Notifier
	saver    Saver

	mu       sync.Mutex
	vehicles map[string]*record
	counter  int
	waiting  idHeap
	current  string
	release  func(vehicleID string)
}

type Option func(*Registry)

func WithNotifier(n Notifier) Option { return func(r *Registry) { r.notifier = n } }

func WithSaver(s Saver) Option { return func(r *Registry) { r.saver = s } }

func WithLogger(l zerolog.Logger) Option { return func(r *Registry) { r.logger = l } }

func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	r := &Registry{
		cfg:      cfg,
		logger:   log.With().Str("component", "vehicles").Logger(),
		vehicles: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetReleaser installs the callback run after a vehicle completes, used to
// drop overhead-side ownership of its id.
func (r *Registry) SetReleaser(fn func(vehicleID string)) {
	r.mu.Lock()
	r.release = fn
	r.mu.Unlock()
}

func (r *Registry) flush(fx effects) {
	for _, tx := range fx.txs {
		if r.saver != nil {
			r.saver.Save(tx)
		}
	}
	for _, ev := range fx.events {
		if r.notifier != nil {
			r.notifier.Notify(ev)
		}
	}
	if len(fx.released) == 0 {
		return
	}
	r.mu.Lock()
	release := r.release
	r.mu.Unlock()
	if release == nil {
		return
	}
	for _, id := range fx.released {
		release(id)
	}
}

// CreateVehicle allocates the next id and registers a vehicle in Detected.
func (r *Registry) CreateVehicle(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	rec := &record{
		id:             fmt.Sprintf("V%04d", r.counter),
		num:            r.counter,
		status:         models.StatusDetected,
		createdAt:      now,
		maxTransaction: r.cfg.MaxTransactionTime,
		notified:       make(map[models.Classification]bool),
	}
	r.vehicles[rec.id] = rec

	r.logger.Info().Str("vehicle_id", rec.id).Msg("vehicle_created")
	return rec.id
}

// FinalizeFromOverhead ends the overhead pass of a vehicle. Vehicles with
// crossed axles join the queue; vehicles without are ghosts and are deleted.
func (r *Registry) FinalizeFromOverhead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.vehicles[id]
	if !ok {
		r.logger.Debug().Str("vehicle_id", id).Msg("finalize for unknown vehicle ignored")
		return
	}
	if rec.status != models.StatusDetected {
		return
	}

	if rec.axleCount == 0 {
		delete(r.vehicles, id)
		// Only the most recently issued number can be handed out again.
		reclaimed := rec.num == r.counter
		if reclaimed {
			r.counter--
		}
		r.logger.Info().
			Str("vehicle_id", id).
			Bool("id_reclaimed", reclaimed).
			Msg("ghost_vehicle")
		return
	}

	rec.status = models.StatusCountedWaiting
	r.waiting.push(rec.num)
	r.logger.Info().
		Str("vehicle_id", id).
		Int("axle_count", rec.axleCount).
		Msg("vehicle_queued")
}

// UpdateAxleCount records the number of crossed axles. Counts never go down
// and completed vehicles are frozen.
func (r *Registry) UpdateAxleCount(id string, count int, now time.Time) {
	r.mu.Lock()
	var fx effects
	if rec, ok := r.vehicles[id]; !ok {
		r.logger.Debug().Str("vehicle_id", id).Msg("axle update for unknown vehicle ignored")
	} else if rec.status != models.StatusCompleted && count > rec.axleCount {
		rec.axleCount = count
		r.logger.Debug().Str("vehicle_id", id).Int("axle_count", count).Msg("axle count updated")
		r.classifyLocked(rec, now, &fx)
	}
	r.mu.Unlock()
	r.flush(fx)
}

// UpdateTireConfig applies a frontal tire observation. Observations are
// accepted during the learning window that starts at promotion; the first
// observation after the window locks the configuration for good.
func (r *Registry) UpdateTireConfig(id string, tire models.TireConfig, now time.Time) {
	r.mu.Lock()
	var fx effects
	r.updateTireLocked(id, tire, now, &fx)
	r.mu.Unlock()
	r.flush(fx)
}

func (r *Registry) updateTireLocked(id string, tire models.TireConfig, now time.Time, fx *effects) {
	rec, ok := r.vehicles[id]
	if !ok {
		r.logger.Debug().Str("vehicle_id", id).Msg("tire update for unknown vehicle ignored")
		return
	}
	if rec.configLocked || rec.status == models.StatusCompleted {
		return
	}
	if !rec.processingStart.IsZero() && now.Sub(rec.processingStart) > r.cfg.LearningWindow {
		rec.configLocked = true
		r.logger.Info().
			Str("vehicle_id", id).
			Str("tire_config", rec.tire.String()).
			Msg("tire config locked")
		return
	}
	if tire == models.TireUnset || tire == rec.tire {
		return
	}

	r.logger.Info().
		Str("vehicle_id", id).
		Str("from", rec.tire.String()).
		Str("to", tire.String()).
		Msg("tire config corrected")
	rec.tire = tire
	r.classifyLocked(rec, now, fx)
}

// classifyLocked recomputes the class and queues classification_ready the
// first time each distinct class is reached.
func (r *Registry) classifyLocked(rec *record, now time.Time, fx *effects) {
	class := Classify(rec.axleCount, rec.tire)
	if class == rec.class {
		return
	}
	rec.class = class
	if !class.IsSet() || rec.notified[class] {
		return
	}
	rec.notified[class] = true

	r.logger.Info().
		Str("vehicle_id", rec.id).
		Str("classification", string(class)).
		Int("axle_count", rec.axleCount).
		Msg("vehicle_classified")

	fx.events = append(fx.events, models.Event{
		Type:      models.EventClassificationReady,
		Timestamp: now,
		Data: models.ClassificationReady{
			VehicleID:      rec.id,
			Classification: class,
			AxleCount:      rec.axleCount,
			Timestamp:      now.In(r.cfg.Location),
		},
	})
}

// NextQueued returns the lowest-numbered vehicle waiting for the frontal camera.
func (r *Registry) NextQueued() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.peekWaitingLocked()
	if rec == nil {
		return "", false
	}
	return rec.id, true
}

func (r *Registry) peekWaitingLocked() *record {
	for {
		num, ok := r.waiting.peek()
		if !ok {
			return nil
		}
		rec, exists := r.vehicles[fmt.Sprintf("V%04d", num)]
		if exists && rec.num == num && rec.status == models.StatusCountedWaiting {
			return rec
		}
		r.waiting.pop()
	}
}

// PromoteNext moves the next queued vehicle into the processing slot. It
// returns false when a vehicle is already processing or nothing is waiting.
func (r *Registry) PromoteNext(now time.Time) (models.Vehicle, bool) {
	r.mu.Lock()
	var fx effects
	v, ok := r.promoteLocked(now, &fx)
	r.mu.Unlock()
	r.flush(fx)
	return v, ok
}

func (r *Registry) promoteLocked(now time.Time, fx *effects) (models.Vehicle, bool) {
	if r.current != "" {
		return models.Vehicle{}, false
	}
	rec := r.peekWaitingLocked()
	if rec == nil {
		return models.Vehicle{}, false
	}
	r.waiting.pop()

	if rec.axleCount == 1 {
		// a single axle cannot reach the toll booth on its own
		rec.axleCount = 2
		r.logger.Info().Str("vehicle_id", rec.id).Msg("axle count corrected from 1 to 2")
		r.classifyLocked(rec, now, fx)
	}

	rec.status = models.StatusInTransaction
	rec.processingStart = now
	rec.transactionStart = now
	rec.enteredZone = true
	r.current = rec.id

	r.logger.Info().
		Str("vehicle_id", rec.id).
		Int("axle_count", rec.axleCount).
		Str("classification", string(rec.class)).
		Msg("vehicle_promoted")
	return rec.snapshot(), true
}

// ExtendCurrentTimeout raises the transaction limit of the processing vehicle
// to the extended value. It succeeds at most once per vehicle.
func (r *Registry) ExtendCurrentTimeout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.vehicles[r.current]
	if !ok || rec.timeoutExtended {
		return false
	}
	rec.timeoutExtended = true
	rec.maxTransaction = r.cfg.ExtendedTransactionTime

	r.logger.Warn().
		Str("vehicle_id", rec.id).
		Dur("max_transaction_time", rec.maxTransaction).
		Msg("transaction_timeout_extended")
	return true
}

// CompleteCurrent finishes the processing vehicle, hands its transaction to
// the saver and frees the slot. It returns false if nothing was processing.
func (r *Registry) CompleteCurrent(reason models.CompletionReason, now time.Time) bool {
	r.mu.Lock()
	var fx effects
	done := r.completeLocked(reason, now, &fx)
	r.mu.Unlock()
	r.flush(fx)
	return done
}

func (r *Registry) completeLocked(reason models.CompletionReason, now time.Time, fx *effects) bool {
	rec, ok := r.vehicles[r.current]
	r.current = ""
	if !ok {
		return false
	}

	status := models.TransactionCompleted
	if reason == models.CompletionTimeout {
		status = models.TransactionTimeout
	}
	duration := now.Sub(rec.processingStart)

	rec.status = models.StatusCompleted
	rec.completedAt = now

	fx.txs = append(fx.txs, models.Transaction{
		ID:                        uuid.NewString(),
		VehicleID:                 rec.id,
		Classification:            rec.class,
		AxleCount:                 rec.axleCount,
		TireConfig:                rec.tire,
		EntryTime:                 rec.transactionStart.In(r.cfg.Location),
		ExitTime:                  now.In(r.cfg.Location),
		ProcessingDurationSeconds: models.RoundDuration(duration),
		Status:                    status,
	})
	fx.events = append(fx.events, models.Event{
		Type:      models.EventVehicleCompleted,
		Timestamp: now,
		Data:      models.VehicleCompleted{VehicleID: rec.id, Reason: reason},
	})
	fx.released = append(fx.released, rec.id)

	r.logger.Info().
		Str("vehicle_id", rec.id).
		Str("reason", string(reason)).
		Str("classification", string(rec.class)).
		Int("axle_count", rec.axleCount).
		Dur("processing_duration", duration).
		Msg("vehicle_completed")
	return true
}

// CleanupExpired drops completed vehicles past retention and zero-axle
// vehicles that never got finalized. It returns how many were removed.
func (r *Registry) CleanupExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.vehicles {
		expired := false
		switch rec.status {
		case models.StatusCompleted:
			expired = now.Sub(rec.completedAt) > r.cfg.CompletedRetention
		case models.StatusDetected:
			expired = rec.axleCount == 0 && now.Sub(rec.createdAt) > r.cfg.GhostRetention
		}
		if expired {
			delete(r.vehicles, id)
			removed++
			r.logger.Debug().Str("vehicle_id", id).Str("status", rec.status.String()).Msg("vehicle expired")
		}
	}
	return removed
}

// ResetSoft completes the processing vehicle and forgets every vehicle.
// The id counter keeps running. The releaser is not called; the caller
// resets the line crossing detector along with the registry.
func (r *Registry) ResetSoft(now time.Time) {
	r.reset(now, false)
}

// ResetHard is ResetSoft plus restarting ids from V0001.
func (r *Registry) ResetHard(now time.Time) {
	r.reset(now, true)
}

func (r *Registry) reset(now time.Time, hard bool) {
	r.mu.Lock()
	var fx effects
	if r.current != "" {
		r.completeLocked(models.CompletionReset, now, &fx)
	}
	r.vehicles = make(map[string]*record)
	r.waiting = nil
	r.current = ""
	if hard {
		r.counter = 0
	}
	fx.released = nil
	r.mu.Unlock()

	r.logger.Warn().Bool("hard", hard).Msg("registry reset")
	r.flush(fx)
}

// Current returns a copy of the vehicle in the processing slot.
func (r *Registry) Current() (models.Vehicle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.vehicles[r.current]
	if !ok {
		return models.Vehicle{}, false
	}
	return rec.snapshot(), true
}

func (r *Registry) Get(id string) (models.Vehicle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.vehicles[id]
	if !ok {
		return models.Vehicle{}, false
	}
	return rec.snapshot(), true
}

// List returns all known vehicles ordered by numeric id.
func (r *Registry) List() []models.Vehicle {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.vehicles))
	for _, rec := range r.vehicles {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].num < recs[j].num })
	out := make([]models.Vehicle, len(recs))
	for i, rec := range recs {
		out[i] = rec.snapshot()
	}
	r.mu.Unlock()
	return out
}

// Counter returns the last issued vehicle number.
func (r *Registry) Counter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}
