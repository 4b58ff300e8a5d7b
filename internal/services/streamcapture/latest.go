package streamcapture

import (
	"sync"
	"time"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// Latest is a single-slot frame cell. The capture goroutine overwrites it and
// processing loops read whatever is newest; neither side ever waits on the
// other.
type Latest struct {
	mu    sync.RWMutex
	frame *models.RawFrame
}

func (l *Latest) Put(frame *models.RawFrame) {
	l.mu.Lock()
	l.frame = frame
	l.mu.Unlock()
}

// Next returns the stored frame if its id is greater than after.
func (l *Latest) Next(after int64) (*models.RawFrame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.frame == nil || l.frame.FrameID <= after {
		return nil, false
	}
	return l.frame, true
}

// fpsMeter measures frame rate over a rolling window of timestamps.
type fpsMeter struct {
	window int
	times  []time.Time
}

func newFPSMeter(window int) *fpsMeter {
	return &fpsMeter{window: window}
}

func (m *fpsMeter) tick(now time.Time) float64 {
	m.times = append(m.times, now)
	if len(m.times) > m.window {
		m.times = m.times[len(m.times)-m.window:]
	}
	if len(m.times) < 2 {
		return 0
	}
	span := m.times[len(m.times)-1].Sub(m.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(m.times)-1) / span
}
