package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

func WithCamera(base zerolog.Logger, camera models.CameraRole) zerolog.Logger {
	return base.With().Str("camera_id", camera.String()).Logger()
}
