package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t0.Add(time.Duration(ms) * time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
	txs    []models.Transaction
}

func (r *recorder) Notify(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Save(tx models.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
}

func (r *recorder) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) transactions() []models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Transaction(nil), r.txs...)
}

func det(classID int, x1, y1, x2, y2 float64) models.Detection {
	return models.Detection{Box: models.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, ClassID: classID, Confidence: 0.9}
}

func axle(x, y float64) models.Detection { return det(0, x-10, y-10, x+10, y+10) }

// overheadBody touches the default line; frontalBody sits in the default zone.
var (
	overheadBody = det(1, 150, 200, 400, 300)
	frontalBody  = det(1, 20, 100, 140, 400)
	singleTire   = det(3, 40, 350, 70, 390)
)

func newTestEngine(cfg Config) (*Engine, *fakeClock, *recorder) {
	clock := &fakeClock{now: t0}
	rec := &recorder{}
	e := New(cfg,
		WithClock(clock.Now),
		WithNotifier(rec),
		WithSaver(rec),
		WithLogger(zerolog.Nop()),
	)
	return e, clock, rec
}

// passTwoAxles drives the overhead camera through one two-axle vehicle and
// leaves it queued.
func passTwoAxles(e *Engine, clock *fakeClock, startMs int) {
	frames := [][]models.Detection{
		{overheadBody, axle(180, 270)},
		{overheadBody, axle(220, 240)},
		{overheadBody, axle(270, 200), axle(120, 300)},
		{overheadBody, axle(320, 170), axle(170, 250)},
	}
	for i, f := range frames {
		clock.Set(startMs + i*100)
		e.ProcessOverhead(f)
	}
	clock.Set(startMs + 1000)
	e.ProcessOverhead(nil)
}

func TestTwoAxleVehicleEndToEnd(t *testing.T) {
	e, clock, rec := newTestEngine(DefaultConfig())

	passTwoAxles(e, clock, 0)
	v, ok := e.Registry().Get("V0001")
	require.True(t, ok)
	assert.Equal(t, 2, v.AxleCount)
	assert.Equal(t, models.StatusCountedWaiting, v.Status)
	assert.False(t, v.Classified(), "two axles wait for the tire configuration")

	clock.Set(1100)
	panel := e.ProcessFrontal([]models.Detection{frontalBody, singleTire})
	assert.Equal(t, models.FrontalUpdate{
		VehicleID:      "V0001",
		Classification: "Golongan 1",
		Status:         "in_transaction",
		TireConfig:     "single_tire",
	}, panel)

	clock.Set(1200)
	e.ProcessFrontal(nil)
	clock.Set(1800)
	panel = e.ProcessFrontal(nil)
	assert.Equal(t, models.IdleVehicleID, panel.VehicleID)

	txs := rec.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "V0001", txs[0].VehicleID)
	assert.Equal(t, models.ClassificationFor(1), txs[0].Classification)
	assert.Equal(t, 2, txs[0].AxleCount)
	assert.Equal(t, models.TireSingle, txs[0].TireConfig)
	assert.Equal(t, models.TransactionCompleted, txs[0].Status)
	assert.Equal(t, 0.7, txs[0].ProcessingDurationSeconds)

	ready := rec.ofType(models.EventClassificationReady)
	require.Len(t, ready, 1)
	assert.Equal(t, models.ClassificationFor(1), ready[0].Data.(models.ClassificationReady).Classification)
	assert.Len(t, rec.ofType(models.EventVehicleCompleted), 1)
}

func TestPanelsOnlyEmittedOnChange(t *testing.T) {
	e, clock, rec := newTestEngine(DefaultConfig())

	for i := 0; i < 5; i++ {
		clock.Set(i * 33)
		e.ProcessOverhead(nil)
		e.ProcessFrontal(nil)
	}
	assert.Len(t, rec.ofType(models.EventOverheadUpdate), 1)
	assert.Len(t, rec.ofType(models.EventFrontalUpdate), 1)

	clock.Set(200)
	e.ProcessOverhead([]models.Detection{overheadBody})
	assert.Len(t, rec.ofType(models.EventOverheadUpdate), 2)
}

func TestIdleOverheadPanel(t *testing.T) {
	e, _, _ := newTestEngine(DefaultConfig())

	want := models.OverheadUpdate{
		VehicleID:      models.IdleVehicleID,
		Classification: models.IdleClassification,
		Status:         "idle",
		SystemStatus:   models.SystemStandby,
	}
	if diff := cmp.Diff(want, e.OverheadPanel()); diff != "" {
		t.Errorf("idle panel mismatch (-want +got):\n%s", diff)
	}
}

func TestOverheadPanelFollowsActiveVehicle(t *testing.T) {
	e, clock, _ := newTestEngine(DefaultConfig())

	clock.Set(0)
	e.ProcessOverhead([]models.Detection{overheadBody, axle(180, 270)})
	clock.Set(100)
	panel := e.ProcessOverhead([]models.Detection{overheadBody, axle(220, 240)})

	want := models.OverheadUpdate{
		VehicleID:      "V0001",
		AxleCount:      1,
		Classification: models.IdleClassification,
		Status:         "detected",
		DetectedAxles:  1,
		SystemStatus:   models.SystemActive,
	}
	if diff := cmp.Diff(want, panel); diff != "" {
		t.Errorf("overhead panel mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanupRunsEveryNOverheadFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleanupEveryFrames = 2
	e, clock, _ := newTestEngine(cfg)

	id := e.Registry().CreateVehicle(t0)

	clock.Set(21000)
	e.ProcessOverhead(nil)
	_, ok := e.Registry().Get(id)
	assert.True(t, ok, "first frame does not sweep")

	e.ProcessOverhead(nil)
	_, ok = e.Registry().Get(id)
	assert.False(t, ok)
}

func TestResetHardRestartsIDs(t *testing.T) {
	e, clock, rec := newTestEngine(DefaultConfig())

	passTwoAxles(e, clock, 0)
	clock.Set(1100)
	e.ProcessFrontal([]models.Detection{frontalBody})

	clock.Set(1500)
	require.NoError(t, e.Execute(Command{Type: CommandResetHard}))

	txs := rec.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionCompleted, txs[0].Status)
	assert.Empty(t, e.Registry().List())
	assert.Empty(t, e.LineState().Tracks)
	assert.False(t, e.ZoneState().Occupied)

	passTwoAxles(e, clock, 2000)
	_, ok := e.Registry().Get("V0001")
	assert.True(t, ok)
}

func TestResetSoftKeepsCounting(t *testing.T) {
	e, clock, _ := newTestEngine(DefaultConfig())

	passTwoAxles(e, clock, 0)
	require.NoError(t, e.Execute(Command{Type: CommandResetSoft}))
	assert.Empty(t, e.Registry().List())

	passTwoAxles(e, clock, 2000)
	_, ok := e.Registry().Get("V0002")
	assert.True(t, ok)
}

func TestSetLineCommand(t *testing.T) {
	e, _, _ := newTestEngine(DefaultConfig())

	err := e.Execute(Command{Type: CommandSetLine, Line: &config.LinePoints{X1: 10, Y1: 10, X2: 10, Y2: 10}})
	require.Error(t, err)

	require.Error(t, e.Execute(Command{Type: CommandSetLine}))

	require.NoError(t, e.Execute(Command{Type: CommandSetLine, Line: &config.LinePoints{X1: 0, Y1: 300, X2: 640, Y2: 300}}))
	line := e.LineState().Line
	assert.Equal(t, 300.0, line.A.Y)
	assert.Equal(t, 640.0, line.B.X)
}

func TestUnknownCommand(t *testing.T) {
	e, _, _ := newTestEngine(DefaultConfig())
	err := e.Execute(Command{Type: "reboot"})
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

// Both camera loops, resets and readers hammer the engine at once. A lock
// order inversion shows up as a deadlock and the test times out.
func TestConcurrentLoopsAndCommandsDoNotDeadlock(t *testing.T) {
	rec := &recorder{}
	e := New(DefaultConfig(), WithNotifier(rec), WithSaver(rec), WithLogger(zerolog.Nop()))

	overheadFrames := [][]models.Detection{
		{overheadBody, axle(180, 270)},
		{overheadBody, axle(220, 240)},
		{overheadBody},
		nil,
	}
	frontalFrames := [][]models.Detection{
		{frontalBody, singleTire},
		{frontalBody},
		nil,
	}

	var wg sync.WaitGroup
	run := func(n int, fn func(i int)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				fn(i)
			}
		}()
	}

	run(2000, func(i int) { e.ProcessOverhead(overheadFrames[i%len(overheadFrames)]) })
	run(2000, func(i int) { e.ProcessFrontal(frontalFrames[i%len(frontalFrames)]) })
	run(200, func(i int) {
		if i%2 == 0 {
			e.ResetSoft()
		} else {
			e.ResetHard()
		}
	})
	run(200, func(i int) {
		_ = e.SetLine(config.LinePoints{X1: 200, Y1: 260, X2: 350, Y2: float64(200 + i%20)})
	})
	run(500, func(int) {
		e.OverheadPanel()
		e.FrontalPanel()
		e.Registry().List()
		e.ZoneState()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("engine deadlocked under concurrent load")
	}
}
