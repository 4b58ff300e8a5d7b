package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

var makassar = time.FixedZone("WITA", 8*3600)

func sampleTx(id string, exit time.Time, dur float64, status models.TransactionStatus) models.Transaction {
	return models.Transaction{
		ID:                        "tx-" + id,
		VehicleID:                 id,
		Classification:            models.ClassificationFor(1),
		AxleCount:                 2,
		TireConfig:                models.TireSingle,
		EntryTime:                 exit.Add(-time.Duration(dur * float64(time.Second))),
		ExitTime:                  exit,
		ProcessingDurationSeconds: dur,
		Status:                    status,
	}
}

func memStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteInsertAndList(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, makassar)

	require.NoError(t, s.Insert(ctx, sampleTx("V0001", base, 0.7, models.TransactionCompleted)))
	require.NoError(t, s.Insert(ctx, sampleTx("V0002", base.Add(time.Minute), 61, models.TransactionTimeout)))
	require.NoError(t, s.Insert(ctx, sampleTx("V0003", base.Add(2*time.Minute), 1.25, models.TransactionCompleted)))

	all, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "V0003", all[0].VehicleID, "newest first")
	assert.Equal(t, "V0001", all[2].VehicleID)

	got := all[1]
	assert.Equal(t, models.TransactionTimeout, got.Status)
	assert.Equal(t, models.TireSingle, got.TireConfig)
	assert.Equal(t, "Golongan 1", string(got.Classification))
	assert.True(t, got.ExitTime.Equal(base.Add(time.Minute)))
	_, offset := got.ExitTime.Zone()
	assert.Equal(t, 8*3600, offset, "zone offset survives the round trip")

	recent, err := s.List(ctx, Query{Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	one, err := s.List(ctx, Query{VehicleID: "V0001"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 0.7, one[0].ProcessingDurationSeconds)

	limited, err := s.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRejectsDuplicateID(t *testing.T) {
	s := memStore(t)
	tx := sampleTx("V0001", time.Now(), 1, models.TransactionCompleted)
	require.NoError(t, s.Insert(context.Background(), tx))
	assert.Error(t, s.Insert(context.Background(), tx))
}

func TestOpen(t *testing.T) {
	_, err := Open(&config.Config{StoreDriver: "none"})
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = Open(&config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)

	s, err := Open(&config.Config{StoreDriver: "sqlite", StoreDSN: ":memory:"})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	s := memStore(t)
	w := NewWorker(s, 16, zerolog.Nop())

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, makassar)
	for i, id := range []string{"V0001", "V0002", "V0003"} {
		w.Save(sampleTx(id, base.Add(time.Duration(i)*time.Second), 1, models.TransactionCompleted))
	}

	// read before shutdown closes the store
	require.Eventually(t, func() bool { return w.Stats().Stored == 3 }, 5*time.Second, 5*time.Millisecond)
	txs, err := s.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))

	assert.ErrorIs(t, w.Enqueue(sampleTx("V0004", base, 1, models.TransactionCompleted)), ErrClosed)
	w.Save(sampleTx("V0005", base, 1, models.TransactionCompleted))
	assert.Equal(t, int64(1), w.Stats().Dropped)
}

type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	fail    bool
	n       int
}

func (b *blockingStore) Insert(ctx context.Context, _ models.Transaction) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	if b.fail {
		return errors.New("disk full")
	}
	return nil
}

func (b *blockingStore) List(context.Context, Query) ([]models.Transaction, error) { return nil, nil }
func (b *blockingStore) Ping(context.Context) error                               { return nil }
func (b *blockingStore) Close() error                                             { return nil }

func TestWorkerQueueFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{}), fail: true}
	w := NewWorker(store, 1, zerolog.Nop())

	tx := sampleTx("V0001", time.Now(), 1, models.TransactionCompleted)
	// first is taken by the writer, second fills the queue
	require.NoError(t, w.Enqueue(tx))
	require.Eventually(t, func() bool { return w.Stats().Queued == 0 }, 2*time.Second, time.Millisecond)
	require.NoError(t, w.Enqueue(tx))
	assert.ErrorIs(t, w.Enqueue(tx), ErrQueueFull)

	// Save runs under the fusion locks: a full queue drops instead of waiting
	saved := make(chan struct{})
	go func() {
		w.Save(tx)
		close(saved)
	}()
	select {
	case <-saved:
	case <-time.After(time.Second):
		t.Fatal("Save blocked on a full queue")
	}
	assert.Equal(t, int64(1), w.Stats().Dropped)

	close(store.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))

	st := w.Stats()
	assert.Equal(t, int64(2), st.Failed, "store failures are counted, not retried")
	assert.Equal(t, int64(0), st.Stored)
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, 0, ComputeStats(nil).Count)

	base := time.Now()
	txs := []models.Transaction{
		sampleTx("V0001", base, 3.0, models.TransactionCompleted),
		sampleTx("V0002", base, 0.7, models.TransactionCompleted),
		sampleTx("V0003", base, 1.2, models.TransactionTimeout),
	}
	txs[2].Classification = models.ClassificationFor(3)

	st := ComputeStats(txs)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 1, st.TimeoutCount)
	assert.Equal(t, 1.63, st.MeanSeconds)
	assert.Equal(t, 1.21, st.StdDevSeconds)
	assert.Equal(t, 1.2, st.MedianSeconds)
	assert.Equal(t, 3.0, st.P95Seconds)
	assert.Equal(t, map[models.Classification]int{"Golongan 1": 2, "Golongan 3": 1}, st.ByClassification)

	single := ComputeStats(txs[:1])
	assert.Equal(t, 0.0, single.StdDevSeconds)
}

func TestStatsFromStore(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, makassar)
	require.NoError(t, s.Insert(ctx, sampleTx("V0001", base, 2, models.TransactionCompleted)))
	require.NoError(t, s.Insert(ctx, sampleTx("V0002", base, 4, models.TransactionCompleted)))

	st, err := Stats(ctx, s, Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 3.0, st.MeanSeconds)
}
