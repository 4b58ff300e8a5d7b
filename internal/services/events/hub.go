// Package events fans fusion events out to WebSocket clients and an
// optional message bus without ever blocking the caller.
package events

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Sink forwards events to an external bus.
type Sink interface {
	PublishEvent(event models.Event) error
}

type Hub struct {
	logger zerolog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[string]chan models.Event
	closed bool

	sinkCh  chan models.Event
	dropped atomic.Int64

	upgrader websocket.Upgrader
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[string]chan models.Event),
		sinkCh: make(chan models.Event, buffer*4),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Notify delivers event to every subscriber and queues it for the sink. Full
// queues drop the event.
func (h *Hub) Notify(event models.Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	select {
	case h.sinkCh <- event:
	default:
		h.dropped.Add(1)
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribe() (string, <-chan models.Event) {
	id := uuid.NewString()
	ch := make(chan models.Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// RunSink forwards queued events to sink until the hub is closed.
func (h *Hub) RunSink(sink Sink) {
	for event := range h.sinkCh {
		if err := sink.PublishEvent(event); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to forward event")
		}
	}
}

// Close disconnects every subscriber and stops RunSink.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	close(h.sinkCh)
}

// ServeWS upgrades the request and streams events as JSON text frames until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	id, events := h.Subscribe()
	defer h.Unsubscribe(id)

	logger := h.logger.With().Str("client_id", id).Str("remote_addr", r.RemoteAddr).Logger()
	logger.Info().Msg("WebSocket client connected")
	defer logger.Info().Msg("WebSocket client disconnected")

	// the read pump only handles control frames and notices the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
