package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/overlay"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/streamcapture"
)

// runLoop processes the newest frame of cell until ctx is cancelled. Frames
// that arrive while a previous one is being processed are skipped.
func (m *Manager) runLoop(ctx context.Context, camera models.CameraRole, cell *streamcapture.Latest, logger zerolog.Logger) {
	logger.Debug().Msg("Frame processor started")

	idle := m.cfg.LoopIdleSleep
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	var minInterval time.Duration
	if m.cfg.TargetFPS > 0 {
		minInterval = time.Second / time.Duration(m.cfg.TargetFPS)
	}

	var lastID int64
	var lastStart time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Frame processor stopping")
			return
		default:
		}

		frame, ok := cell.Next(lastID)
		if !ok || time.Since(lastStart) < minInterval {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idle):
			}
			continue
		}
		lastID = frame.FrameID
		lastStart = time.Now()

		m.processFrame(ctx, camera, frame, logger)
	}
}

// processFrame runs one frame through detection, fusion and annotation. A
// panic is logged and the frame dropped; the loop keeps going.
func (m *Manager) processFrame(ctx context.Context, camera models.CameraRole, frame *models.RawFrame, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			m.updateStats(camera, func(st *LoopStats) { st.Panics++ })
			logger.Error().
				Interface("panic", r).
				Int64("frame_id", frame.FrameID).
				Msg("Frame processor panic recovered")
		}
	}()

	start := time.Now()

	mat, err := overlay.FrameToMat(frame)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to wrap frame")
		return
	}
	defer mat.Close()

	detections, err := m.detect(ctx, camera, mat)
	if err != nil {
		m.updateStats(camera, func(st *LoopStats) { st.DetectErrors++ })
		logger.Debug().Err(err).Int64("frame_id", frame.FrameID).Msg("Detection failed, continuing without detections")
		detections = nil
	}

	overlay.DrawDetections(&mat, detections, m.names[camera])
	switch camera {
	case models.CameraOverhead:
		panel := m.fusion.ProcessOverhead(detections)
		overlay.DrawLine(&mat, m.fusion.LineState())
		overlay.DrawVehiclePanel(&mat, "OVERHEAD", panel.VehicleID, panel.Classification, panel.Status)
	case models.CameraFrontal:
		panel := m.fusion.ProcessFrontal(detections)
		overlay.DrawZone(&mat, m.fusion.ZoneState())
		overlay.DrawVehiclePanel(&mat, "FRONTAL", panel.VehicleID, panel.Classification, panel.Status)
	}

	out, err := overlay.EncodeJPEG(mat, m.cfg.OutputQuality)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode output frame")
		return
	}
	m.publisher.Publish(camera, out)

	latency := time.Since(start)
	m.updateStats(camera, func(st *LoopStats) {
		st.FramesProcessed++
		st.LastDetections = len(detections)
		st.LastLatency = latency
		st.LastFrameID = frame.FrameID
	})
	logger.Debug().
		Int64("frame_id", frame.FrameID).
		Int("detections", len(detections)).
		Dur("processing_time", latency).
		Msg("Frame processed")
}

func (m *Manager) detect(ctx context.Context, camera models.CameraRole, mat gocv.Mat) ([]models.Detection, error) {
	jpeg, err := overlay.EncodeJPEG(mat, m.cfg.DetectorJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode detector input: %w", err)
	}
	return m.detector.Detect(ctx, camera, jpeg, mat.Cols(), mat.Rows())
}
