package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

const insertTimeout = 5 * time.Second

// WorkerStats counts what happened to saved transactions.
type WorkerStats struct {
	Queued  int   `json:"queued"`
	Stored  int64 `json:"stored"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Worker writes transactions to a Store from a single goroutine so the
// registry never waits on the database.
type Worker struct {
	store  Store
	logger zerolog.Logger

	mu     sync.RWMutex
	queue  chan models.Transaction
	closed bool
	done   chan struct{}

	stored  atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewWorker(store Store, size int, logger zerolog.Logger) *Worker {
	if size <= 0 {
		size = 256
	}
	w := &Worker{
		store:  store,
		logger: logger,
		queue:  make(chan models.Transaction, size),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) Store() Store { return w.store }

// Enqueue queues tx without blocking.
func (w *Worker) Enqueue(tx models.Transaction) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- tx:
		return nil
	default:
		return ErrQueueFull
	}
}

// Save is Enqueue with failures logged.
func (w *Worker) Save(tx models.Transaction) {
	if err := w.Enqueue(tx); err != nil {
		w.dropped.Add(1)
		w.logger.Error().
			Err(err).
			Str("vehicle_id", tx.VehicleID).
			Str("classification", string(tx.Classification)).
			Msg("Transaction not persisted")
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for tx := range w.queue {
		w.write(tx)
	}
}

func (w *Worker) write(tx models.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			w.logger.Error().Interface("panic", r).Str("vehicle_id", tx.VehicleID).Msg("Store panic recovered")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := w.store.Insert(ctx, tx); err != nil {
		w.failed.Add(1)
		w.logger.Error().Err(err).Str("vehicle_id", tx.VehicleID).Msg("Failed to store transaction")
		return
	}
	w.stored.Add(1)
	w.logger.Debug().
		Str("vehicle_id", tx.VehicleID).
		Str("status", string(tx.Status)).
		Float64("duration_s", tx.ProcessingDurationSeconds).
		Msg("Transaction stored")
}

func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Queued:  len(w.queue),
		Stored:  w.stored.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
	}
}

// Shutdown stops accepting work and waits for the queue to drain, or for ctx.
// The store is closed once drained.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return w.store.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}
