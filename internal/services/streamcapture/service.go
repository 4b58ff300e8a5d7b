// Package streamcapture reads the lane RTSP cameras with OpenCV and keeps the
// newest resized frame of each in a Latest cell.
package streamcapture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

const maxConsecutiveErrors = 10

var errTooManyErrors = errors.New("too many consecutive read errors")

// Service handles video capture for both cameras.
type Service struct {
	cfg *config.Config

	mu     sync.RWMutex
	status map[models.CameraRole]*models.CameraStatus
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg:    cfg,
		status: make(map[models.CameraRole]*models.CameraStatus),
	}
}

// Run captures camera until ctx is cancelled, reopening the stream with
// jittered exponential backoff whenever it fails.
func (s *Service) Run(ctx context.Context, camera models.CameraRole, url string, cell *Latest) {
	logger := log.With().Str("service", "streamcapture").Str("camera_id", camera.String()).Logger()
	s.setStatus(camera, func(st *models.CameraStatus) { st.URL = url })

	var frameID int64
	attempt := 0
	for {
		before := frameID
		err := s.capture(ctx, camera, url, cell, &frameID, logger)
		if ctx.Err() != nil {
			logger.Info().Msg("Capture stopped")
			return
		}
		// a capture that produced frames earns a fresh backoff
		if frameID > before {
			attempt = 0
		}

		delay := s.CalculateBackoffDelay(attempt)
		attempt++
		s.setStatus(camera, func(st *models.CameraStatus) {
			st.Connected = false
			st.Reconnects++
			if err != nil {
				st.LastError = err.Error()
			}
		})
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Capture failed, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Service) capture(ctx context.Context, camera models.CameraRole, url string, cell *Latest, frameID *int64, logger zerolog.Logger) error {
	s.configureFFmpegOptions(logger)

	logger.Info().Str("rtsp_url", url).Msg("Opening RTSP stream")
	cap, err := gocv.OpenVideoCaptureWithAPI(url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return fmt.Errorf("failed to open RTSP stream %s: %w", url, err)
	}
	defer cap.Close()

	if !cap.IsOpened() {
		return fmt.Errorf("video capture is not opened for camera %s", camera)
	}
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	logger.Info().
		Float64("actual_fps", cap.Get(gocv.VideoCaptureFPS)).
		Float64("actual_width", cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("actual_height", cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("VideoCapture opened")

	img := gocv.NewMat()
	defer img.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	size := image.Pt(s.cfg.FrameWidth, s.cfg.FrameHeight)
	meter := newFPSMeter(30)
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if ok := cap.Read(&img); !ok || img.Empty() {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("%w (%d)", errTooManyErrors, consecutiveErrors)
			}
			delay := time.Duration(consecutiveErrors*50) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		consecutiveErrors = 0

		if img.Cols() != size.X || img.Rows() != size.Y {
			gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationLinear)
		} else {
			img.CopyTo(&resized)
		}

		*frameID++
		now := time.Now()
		cell.Put(&models.RawFrame{
			Camera:    camera,
			Data:      resized.ToBytes(),
			Width:     size.X,
			Height:    size.Y,
			FrameID:   *frameID,
			Timestamp: now,
		})

		fps := meter.tick(now)
		s.setStatus(camera, func(st *models.CameraStatus) {
			st.Connected = true
			st.FrameCount++
			st.FPS = fps
			st.LastFrameTime = now
			st.LastError = ""
		})
	}
}

func (s *Service) setStatus(camera models.CameraRole, fn func(st *models.CameraStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[camera]
	if !ok {
		st = &models.CameraStatus{Camera: camera}
		s.status[camera] = st
	}
	fn(st)
}

// Status returns a copy of every camera's capture status.
func (s *Service) Status() []models.CameraStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CameraStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Camera < out[j].Camera })
	return out
}

// CalculateBackoffDelay calculates jittered exponential backoff delay
func (s *Service) CalculateBackoffDelay(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(min(attempt, 30)))) * time.Second
	if baseDelay < s.cfg.ReconnectBackoffMin {
		baseDelay = s.cfg.ReconnectBackoffMin
	}
	if baseDelay > s.cfg.ReconnectBackoffMax {
		baseDelay = s.cfg.ReconnectBackoffMax
	}

	jitterPct := float64(s.cfg.ReconnectJitterPct) / 100.0
	jitter := time.Duration(float64(baseDelay) * jitterPct * (rand.Float64()*2 - 1))
	return baseDelay + jitter
}

// FFmpegOptions renders the OpenCV FFmpeg capture options string for the
// given RTSP transport, keys sorted.
func FFmpegOptions(transport string) string {
	opts := map[string]string{
		"rtsp_transport":        transport,
		"buffer_size":           "2097152",
		"max_delay":             "500000",
		"stimeout":              "5000000",
		"rw_timeout":            "5000000",
		"threads":               "1",
		"flags":                 "low_delay",
		"fflags":                "nobuffer+flush_packets",
		"drop_pkts_on_overflow": "1",
		"analyzeduration":       "500000",
		"probesize":             "2000000",
		"allowed_media_types":   "video",
		"reconnect":             "1",
		"reconnect_streamed":    "1",
		"reconnect_delay_max":   "2",
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ";" + opts[k]
	}
	return strings.Join(parts, "|")
}

func (s *Service) configureFFmpegOptions(logger zerolog.Logger) {
	opts := FFmpegOptions(s.cfg.RTSPTransport)
	os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", opts)
	logger.Debug().Str("ffmpeg_options", opts).Msg("FFmpeg options configured for OpenCV")
}
