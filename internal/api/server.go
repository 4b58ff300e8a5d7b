package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/api/handlers"
	"github.com/rchmtmaulana/skripsi-avc/internal/api/middleware"
	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/services"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/persistence"
)

type Server struct {
	config    *config.Config
	container *services.ServiceContainer
	router    *gin.Engine
	server    *http.Server

	// cancels request contexts so MJPEG streams end on shutdown
	stopStreams context.CancelFunc

	healthHandler  *handlers.HealthHandler
	systemHandler  *handlers.SystemHandler
	vehicleHandler *handlers.VehicleHandler
	commandHandler *handlers.CommandHandler
	streamHandler  *handlers.StreamHandler
}

func NewServer(cfg *config.Config, sc *services.ServiceContainer) *Server {
	gin.SetMode(gin.ReleaseMode)

	var store persistence.Store
	if sc.Persistence != nil {
		store = sc.Persistence.Store()
	}

	s := &Server{
		config:    cfg,
		container: sc,
		router:    gin.New(),

		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, probes(sc, store)),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID, sections(sc)),
		vehicleHandler: handlers.NewVehicleHandler(sc.Engine, store),
		commandHandler: handlers.NewCommandHandler(sc.Engine),
		streamHandler:  handlers.NewStreamHandler(sc.Publisher, sc.Events),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	base, cancel := context.WithCancel(context.Background())
	s.stopStreams = cancel
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return s
}

func probes(sc *services.ServiceContainer, store persistence.Store) map[string]handlers.Probe {
	p := map[string]handlers.Probe{
		"detector": func(context.Context) error {
			if !sc.DetectionSvc.IsConnected() {
				return fmt.Errorf("detector %s", sc.DetectionSvc.ConnectionState())
			}
			return nil
		},
	}
	if store != nil {
		p["store"] = store.Ping
	}
	if sc.Messaging != nil {
		p["nats"] = func(context.Context) error {
			if !sc.Messaging.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}
	return p
}

func sections(sc *services.ServiceContainer) map[string]func() any {
	s := map[string]func() any{
		"cameras": func() any { return sc.CameraManager.Stats() },
		"capture": func() any { return sc.CameraManager.CaptureStatus() },
		"events": func() any {
			return gin.H{"subscribers": sc.Events.Subscribers(), "dropped": sc.Events.Dropped()}
		},
		"vehicles": func() any {
			cur, ok := sc.Engine.Current()
			out := gin.H{"tracked": len(sc.Engine.Vehicles()), "last_number": sc.Engine.Registry().Counter()}
			if ok {
				out["current"] = cur.ID
			}
			return out
		},
	}
	if sc.Persistence != nil {
		s["persistence"] = func() any { return sc.Persistence.Stats() }
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the services and then serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := s.container.Start(ctx); err != nil {
		return err
	}

	log.Info().Int("port", s.config.Port).Msg("Starting AVC worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping AVC worker API")
	s.stopStreams()
	httpErr := s.server.Shutdown(ctx)
	return errors.Join(httpErr, s.container.Shutdown(ctx))
}
