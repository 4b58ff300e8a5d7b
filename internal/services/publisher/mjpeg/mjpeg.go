// Package mjpeg serves the annotated camera frames as multipart MJPEG.
package mjpeg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

const boundary = "frame"

type Publisher struct {
	keepalive time.Duration

	mu     sync.RWMutex
	latest map[models.CameraRole][]byte
	subs   map[models.CameraRole]map[chan struct{}]struct{}
}

func NewPublisher() *Publisher {
	return &Publisher{
		keepalive: 2 * time.Second,
		latest:    make(map[models.CameraRole][]byte),
		subs:      make(map[models.CameraRole]map[chan struct{}]struct{}),
	}
}

// Publish stores an encoded JPEG as the newest frame of camera and wakes
// every viewer. Slow viewers skip frames.
func (p *Publisher) Publish(camera models.CameraRole, jpeg []byte) {
	p.mu.Lock()
	p.latest[camera] = jpeg
	for ch := range p.subs[camera] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	p.mu.Unlock()
}

func (p *Publisher) Latest(camera models.CameraRole) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.latest[camera]
	return b, ok && len(b) > 0
}

// Viewers returns how many clients are streaming camera.
func (p *Publisher) Viewers(camera models.CameraRole) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs[camera])
}

func (p *Publisher) subscribe(camera models.CameraRole) chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	if p.subs[camera] == nil {
		p.subs[camera] = make(map[chan struct{}]struct{})
	}
	p.subs[camera][ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

func (p *Publisher) unsubscribe(camera models.CameraRole, ch chan struct{}) {
	p.mu.Lock()
	delete(p.subs[camera], ch)
	p.mu.Unlock()
}

func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, camera models.CameraRole) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.subscribe(camera)
	defer p.unsubscribe(camera, notify)

	writePart := func(jpeg []byte) bool {
		header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg))
		if _, err := io.WriteString(w, header); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, ok := p.Latest(camera)
	if !ok {
		first = placeholder(camera)
	}
	if len(first) > 0 && !writePart(first) {
		return
	}

	keepaliveTicker := time.NewTicker(p.keepalive)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}
		if buf, ok := p.Latest(camera); ok {
			if !writePart(buf) {
				return
			}
		}
	}
}

// placeholder renders a grey "initializing" frame for cameras that have not
// produced anything yet.
func placeholder(camera models.CameraRole) []byte {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(64, 64, 64, 0))

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&img, fmt.Sprintf("Camera: %s", camera), image.Pt(20, 220), gocv.FontHersheySimplex, 1.0, white, 2)
	gocv.PutText(&img, "Initializing...", image.Pt(20, 260), gocv.FontHersheySimplex, 0.8, white, 2)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, 75})
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode placeholder frame")
		return nil
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func (p *Publisher) Shutdown() {
	log.Info().Msg("MJPEG Publisher shutting down")
}
