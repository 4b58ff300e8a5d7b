package linecrossing

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rchmtmaulana/skripsi-avc/internal/geometry"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/vehicles"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func axle(x, y float64) models.Detection {
	return models.Detection{
		Box:        models.Box{X1: x - 10, Y1: y - 10, X2: x + 10, Y2: y + 10},
		ClassID:    0,
		Confidence: 0.9,
	}
}

// body overlaps the default line's bounding rectangle.
func body() models.Detection {
	return models.Detection{
		Box:        models.Box{X1: 150, Y1: 200, X2: 400, Y2: 300},
		ClassID:    1,
		Confidence: 0.9,
	}
}

func frame(dets ...models.Detection) []models.Detection { return dets }

func newTestDetector() (*Detector, *vehicles.Registry) {
	reg := vehicles.NewRegistry(vehicles.DefaultConfig(), vehicles.WithLogger(zerolog.Nop()))
	det := NewDetector(DefaultConfig(), reg, zerolog.Nop())
	reg.SetReleaser(det.Release)
	return det, reg
}

func TestDiagonalCrossingCountsOnce(t *testing.T) {
	det, reg := newTestDetector()

	det.Update(frame(body(), axle(180, 270)), at(0))
	st := det.Snapshot()
	require.Equal(t, "V0001", st.ActiveVehicle)
	require.Len(t, st.Tracks, 1)
	assert.False(t, st.Tracks[0].Crossed)

	det.Update(frame(body(), axle(220, 240)), at(100))
	st = det.Snapshot()
	require.Len(t, st.Tracks, 1)
	assert.True(t, st.Tracks[0].Crossed)

	v, ok := reg.Get("V0001")
	require.True(t, ok)
	assert.Equal(t, 1, v.AxleCount)

	// moving on and even back across the line never counts the track again
	det.Update(frame(body(), axle(240, 230)), at(200))
	det.Update(frame(body(), axle(180, 270)), at(300))
	v, _ = reg.Get("V0001")
	assert.Equal(t, 1, v.AxleCount)
}

func TestTwoAxlesSameFrameMatchDistinctTracks(t *testing.T) {
	det, reg := newTestDetector()

	det.Update(frame(body(), axle(180, 270)), at(0))
	det.Update(frame(body(), axle(220, 240)), at(100))
	det.Update(frame(body(), axle(270, 200), axle(120, 300)), at(200))
	det.Update(frame(body(), axle(320, 170), axle(170, 250)), at(300))

	st := det.Snapshot()
	require.Len(t, st.Tracks, 2)
	assert.True(t, st.Tracks[0].Crossed)
	assert.True(t, st.Tracks[1].Crossed)

	v, _ := reg.Get("V0001")
	assert.Equal(t, 2, v.AxleCount)
}

func TestBodyLeavingLineFinalizesVehicle(t *testing.T) {
	det, reg := newTestDetector()

	det.Update(frame(body(), axle(180, 270)), at(0))
	det.Update(frame(body(), axle(220, 240)), at(100))

	// short gap inside the body timeout keeps the pass open
	det.Update(frame(), at(400))
	assert.Equal(t, "V0001", det.Snapshot().ActiveVehicle)

	det.Update(frame(), at(700))
	st := det.Snapshot()
	assert.Empty(t, st.ActiveVehicle)
	assert.False(t, st.Touching)
	assert.Empty(t, st.Tracks)

	next, ok := reg.NextQueued()
	require.True(t, ok)
	assert.Equal(t, "V0001", next)
}

func TestGhostPassReusesID(t *testing.T) {
	det, reg := newTestDetector()

	// axle seen but never crosses before the body leaves
	det.Update(frame(body(), axle(100, 350)), at(0))
	require.Equal(t, "V0001", det.Snapshot().ActiveVehicle)
	det.Update(frame(), at(600))

	_, ok := reg.Get("V0001")
	assert.False(t, ok)

	det.Update(frame(body(), axle(180, 270)), at(1000))
	assert.Equal(t, "V0001", det.Snapshot().ActiveVehicle)
}

func TestAxleTimeoutFinalizesWhileBodyStays(t *testing.T) {
	det, reg := newTestDetector()

	det.Update(frame(body(), axle(180, 270)), at(0))
	det.Update(frame(body(), axle(220, 240)), at(100))
	det.Update(frame(body()), at(900))
	assert.Equal(t, "V0001", det.Snapshot().ActiveVehicle)

	det.Update(frame(body()), at(1200))
	assert.Empty(t, det.Snapshot().ActiveVehicle)

	v, ok := reg.Get("V0001")
	require.True(t, ok)
	assert.Equal(t, models.StatusCountedWaiting, v.Status)
}

func TestAxlesIgnoredWithoutBodyTouch(t *testing.T) {
	det, _ := newTestDetector()

	det.Update(frame(axle(180, 270)), at(0))
	det.Update(frame(axle(220, 240)), at(100))

	st := det.Snapshot()
	assert.Empty(t, st.ActiveVehicle)
	assert.Empty(t, st.Tracks)
	assert.Equal(t, 1, st.DetectedAxles)
}

func TestMalformedDetectionsSkipped(t *testing.T) {
	det, _ := newTestDetector()

	bad := []models.Detection{
		{Box: models.Box{X1: 50, Y1: 50, X2: 10, Y2: 60}, ClassID: 1},
		{Box: models.Box{X1: math.NaN(), Y1: 0, X2: 10, Y2: 10}, ClassID: 0},
		{Box: models.Box{X1: 0, Y1: 0, X2: 10, Y2: math.Inf(1)}, ClassID: 1},
	}
	assert.NotPanics(t, func() { det.Update(bad, at(0)) })
	assert.False(t, det.Snapshot().Touching)
}

func TestHistoryIsCapped(t *testing.T) {
	det, _ := newTestDetector()

	for i := 0; i < 8; i++ {
		det.Update(frame(body(), axle(100+float64(i)*5, 350)), at(i*50))
	}
	st := det.Snapshot()
	require.Len(t, st.Tracks, 1)
	assert.Len(t, st.Tracks[0].Positions, 5)
	assert.Equal(t, 135.0, st.Tracks[0].Positions[4].X)
}

func TestStaleTracksPurged(t *testing.T) {
	det, _ := newTestDetector()
	cfg := DefaultConfig()
	cfg.AxleTimeout = time.Hour
	det.cfg = cfg

	det.Update(frame(body(), axle(100, 350)), at(0))
	det.Update(frame(body(), axle(400, 100)), at(3000))
	require.Len(t, det.Snapshot().Tracks, 2)

	det.Update(frame(body(), axle(400, 100)), at(5500))
	st := det.Snapshot()
	require.Len(t, st.Tracks, 1)
	assert.Equal(t, 2, st.Tracks[0].ID)
}

func TestReleaseActiveVehicle(t *testing.T) {
	det, _ := newTestDetector()

	det.Update(frame(body(), axle(180, 270)), at(0))
	det.Release("V0001")

	st := det.Snapshot()
	assert.Empty(t, st.ActiveVehicle)
	assert.Empty(t, st.Tracks)

	det.Release("V0042") // unknown ids are ignored
}

func TestResetHardRestartsTrackIDs(t *testing.T) {
	det, _ := newTestDetector()

	det.Update(frame(body(), axle(180, 270), axle(400, 100)), at(0))
	require.Len(t, det.Snapshot().Tracks, 2)

	det.Reset(false)
	det.Update(frame(body(), axle(180, 270)), at(100))
	assert.Equal(t, 3, det.Snapshot().Tracks[0].ID)

	det.Reset(true)
	det.Update(frame(body(), axle(180, 270)), at(200))
	assert.Equal(t, 1, det.Snapshot().Tracks[0].ID)
}

func TestFrameWaitsForHardReset(t *testing.T) {
	det, reg := newTestDetector()
	det.Update(frame(body(), axle(180, 270)), at(0))
	require.Equal(t, "V0001", det.Snapshot().ActiveVehicle)

	done := make(chan struct{})
	det.ResetWith(true, func() {
		reg.ResetHard(at(50))
		go func() {
			defer close(done)
			det.Update(frame(body(), axle(400, 100)), at(100))
		}()
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, reg.Counter(), "frame ran while the reset held the detector")
	})
	<-done

	st := det.Snapshot()
	assert.Equal(t, "V0001", st.ActiveVehicle)
	require.Len(t, st.Tracks, 1)
	assert.Equal(t, 1, st.Tracks[0].ID)
	_, ok := reg.Get("V0001")
	assert.True(t, ok, "detector and registry agree on the new vehicle")
}

func TestSetLineChangesCrossingGeometry(t *testing.T) {
	det, reg := newTestDetector()
	// horizontal line at y=300 well below the default one
	det.SetLine(geometry.NewLine(0, 300, 640, 300))

	wide := models.Detection{Box: models.Box{X1: 0, Y1: 250, X2: 640, Y2: 350}, ClassID: 2}
	det.Update(frame(wide, axle(300, 280)), at(0))
	det.Update(frame(wide, axle(300, 320)), at(100))

	v, ok := reg.Get("V0001")
	require.True(t, ok)
	assert.Equal(t, 1, v.AxleCount)
}
