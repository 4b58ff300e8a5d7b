// Package camera runs the two lane pipelines: capture, detect, fuse,
// annotate and publish, one goroutine chain per camera.
package camera

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/detection"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/linecrossing"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/streamcapture"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/zone"
)

var ErrAlreadyRunning = errors.New("camera manager already running")

// Fusion is the part of the engine the loops drive.
type Fusion interface {
	ProcessOverhead(detections []models.Detection) models.OverheadUpdate
	ProcessFrontal(detections []models.Detection) models.FrontalUpdate
	LineState() linecrossing.State
	ZoneState() zone.State
}

type FramePublisher interface {
	Publish(camera models.CameraRole, jpeg []byte)
}

type Capturer interface {
	Run(ctx context.Context, camera models.CameraRole, url string, cell *streamcapture.Latest)
	Status() []models.CameraStatus
}

// LoopStats is the processing-side health of one camera.
type LoopStats struct {
	Camera          models.CameraRole `json:"camera"`
	FramesProcessed int64             `json:"frames_processed"`
	DetectErrors    int64             `json:"detect_errors"`
	Panics          int64             `json:"panics"`
	LastDetections  int               `json:"last_detections"`
	LastLatency     time.Duration     `json:"last_latency"`
	LastFrameID     int64             `json:"last_frame_id"`
}

type Manager struct {
	cfg       *config.Config
	fusion    Fusion
	detector  detection.Detector
	capture   Capturer
	publisher FramePublisher
	names     map[models.CameraRole]map[int]string

	cells map[models.CameraRole]*streamcapture.Latest

	statsMu sync.RWMutex
	stats   map[models.CameraRole]*LoopStats

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewManager(cfg *config.Config, fusion Fusion, detector detection.Detector, capture Capturer, publisher FramePublisher) *Manager {
	m := &Manager{
		cfg:       cfg,
		fusion:    fusion,
		detector:  detector,
		capture:   capture,
		publisher: publisher,
		names:     classNames(cfg),
		cells: map[models.CameraRole]*streamcapture.Latest{
			models.CameraOverhead: {},
			models.CameraFrontal:  {},
		},
		stats: make(map[models.CameraRole]*LoopStats),
	}
	for role := range m.cells {
		m.stats[role] = &LoopStats{Camera: role}
	}
	return m
}

func classNames(cfg *config.Config) map[models.CameraRole]map[int]string {
	overhead := map[int]string{cfg.AxleClassID: "axle"}
	for _, id := range cfg.BodyClassIDs {
		overhead[id] = "vehicle"
	}
	frontal := map[int]string{
		cfg.SingleTireClassID: models.TireSingle.String(),
		cfg.DoubleTireClassID: models.TireDouble.String(),
	}
	for _, id := range cfg.FrontalBodyClassIDs {
		frontal[id] = "vehicle"
	}
	return map[models.CameraRole]map[int]string{
		models.CameraOverhead: overhead,
		models.CameraFrontal:  frontal,
	}
}

func (m *Manager) urlFor(camera models.CameraRole) string {
	if camera == models.CameraOverhead {
		return m.cfg.OverheadRTSPURL
	}
	return m.cfg.FrontalRTSPURL
}

// Start launches capture and processing for both cameras.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for role, cell := range m.cells {
		role, cell := role, cell
		logger := m.loggerFor(role)

		m.wg.Add(2)
		go func() {
			defer m.wg.Done()
			m.capture.Run(ctx, role, m.urlFor(role), cell)
		}()
		go func() {
			defer m.wg.Done()
			m.runLoop(ctx, role, cell, logger)
		}()

		logger.Info().Str("rtsp_url", m.urlFor(role)).Msg("Camera pipeline started")
	}
	return nil
}

// Shutdown stops every loop and waits for them, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	log.Info().Msg("Shutting down camera manager")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) updateStats(camera models.CameraRole, fn func(st *LoopStats)) {
	m.statsMu.Lock()
	fn(m.stats[camera])
	m.statsMu.Unlock()
}

// Stats returns a copy of the processing stats, sorted by camera.
func (m *Manager) Stats() []LoopStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()

	out := make([]LoopStats, 0, len(m.stats))
	for _, st := range m.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Camera < out[j].Camera })
	return out
}

func (m *Manager) CaptureStatus() []models.CameraStatus {
	return m.capture.Status()
}

func (m *Manager) loggerFor(camera models.CameraRole) zerolog.Logger {
	return log.With().Str("service", "camera").Str("camera_id", camera.String()).Logger()
}
