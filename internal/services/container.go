package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/logging"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/camera"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/detection"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/engine"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/events"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/messaging"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/persistence"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/publisher/mjpeg"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/streamcapture"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/vehicles"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config        *config.Config
	Engine        *engine.Engine
	DetectionSvc  *detection.Service
	CaptureSvc    *streamcapture.Service
	CameraManager *camera.Manager
	Publisher     *mjpeg.Publisher
	Events        *events.Hub
	Messaging     *messaging.Service  // nil when NATS is disabled or unreachable
	Persistence   *persistence.Worker // nil when no store is configured

	commandSub *nats.Subscription
}

// NewServiceContainer creates a new service container. NATS and the store are
// optional: failing to reach them is logged and the worker runs without.
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{
		Config:    cfg,
		Publisher: mjpeg.NewPublisher(),
		Events:    events.NewHub(64, logging.NewServiceLogger(cfg, "events")),
	}

	if cfg.NatsEnabled {
		msg, err := messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, events stay local")
		} else {
			sc.Messaging = msg
		}
	}

	store, err := persistence.Open(cfg)
	switch {
	case errors.Is(err, persistence.ErrNoStore):
		log.Warn().Msg("No transaction store configured, transactions are not persisted")
	case err != nil:
		return nil, fmt.Errorf("failed to open transaction store: %w", err)
	default:
		sc.Persistence = persistence.NewWorker(store, cfg.PersistQueueSize, logging.NewServiceLogger(cfg, "persistence"))
	}

	var savers vehicles.Savers
	if sc.Persistence != nil {
		savers = append(savers, sc.Persistence)
	}
	if sc.Messaging != nil {
		savers = append(savers, sc.Messaging)
	}

	sc.Engine = engine.New(engine.ConfigFrom(cfg),
		engine.WithNotifier(sc.Events),
		engine.WithSaver(savers),
		engine.WithLogger(logging.NewServiceLogger(cfg, "engine")),
	)

	sc.DetectionSvc = detection.NewService(cfg)
	sc.CaptureSvc = streamcapture.NewService(cfg)
	sc.CameraManager = camera.NewManager(cfg, sc.Engine, sc.DetectionSvc, sc.CaptureSvc, sc.Publisher)

	return sc, nil
}

// Start begins capture and processing and hooks up the message bus.
func (sc *ServiceContainer) Start(ctx context.Context) error {
	if sc.Messaging != nil {
		go sc.Events.RunSink(sc.Messaging)

		sub, err := sc.Messaging.SubscribeCommands(sc.Engine)
		if err != nil {
			return fmt.Errorf("failed to subscribe to commands: %w", err)
		}
		sc.commandSub = sub
		log.Info().Str("subject", sc.Config.CommandsSubject).Msg("Listening for commands")
	}

	return sc.CameraManager.Start(ctx)
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.CameraManager != nil {
		if err := sc.CameraManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("camera manager: %w", err))
		}
	}

	if sc.commandSub != nil {
		_ = sc.commandSub.Unsubscribe()
	}

	if sc.Persistence != nil {
		if err := sc.Persistence.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("persistence: %w", err))
		}
	}

	sc.Events.Close()
	sc.Publisher.Shutdown()

	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("messaging: %w", err))
		}
	}

	if sc.DetectionSvc != nil {
		if err := sc.DetectionSvc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("detection: %w", err))
		}
	}

	return errors.Join(errs...)
}
