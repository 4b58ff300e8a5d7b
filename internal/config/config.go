package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ErrInvalidConfig is wrapped by every validation failure returned from Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string `validate:"required"`
	Port        int    `validate:"gt=0,lt=65536"`
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Detector gRPC service
	DetectorGRPCURL     string        `validate:"required"`
	DetectorMethod      string        `validate:"required,startswith=/"`
	DetectorTimeout     time.Duration `validate:"gt=0"`
	DetectorConfidence  float64       `validate:"gte=0,lte=1"`
	DetectorJPEGQuality int           `validate:"gte=1,lte=100"`
	OverheadModel       string
	FrontalModel        string

	// NATS (events out, commands in)
	NatsEnabled         bool
	NatsURL             string
	NatsConnectTimeout  time.Duration
	NatsReconnectWait   time.Duration
	NatsMaxReconnects   int
	EventsSubject       string
	CommandsSubject     string
	TransactionsSubject string

	// Cameras
	OverheadRTSPURL string
	FrontalRTSPURL  string
	RTSPTransport   string

	// Backoff/Jitter for capture reconnections
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
	ReconnectJitterPct  int

	// Frames
	FrameWidth    int `validate:"gt=0"`
	FrameHeight   int `validate:"gt=0"`
	TargetFPS     int `validate:"gt=0"`
	OutputQuality int `validate:"gte=1,lte=100"`
	LoopIdleSleep time.Duration

	// Calibration: detection line and transaction zone, optionally overridden from YAML
	CalibrationFile string
	Calibration     Calibration `validate:"required"`

	// Detector class ids
	AxleClassID       int
	BodyClassIDs      []int `validate:"min=1"`
	SingleTireClassID int
	DoubleTireClassID int

	// Line crossing
	TouchTolerance   float64       `validate:"gte=0"`
	BodyTimeout      time.Duration `validate:"gt=0"`
	AxleTimeout      time.Duration `validate:"gt=0"`
	MaxMatchDistance float64       `validate:"gt=0"`
	TrackHistory     int           `validate:"gte=2"`
	TrackStaleAfter  time.Duration `validate:"gt=0"`

	// Vehicle registry
	LearningWindow          time.Duration `validate:"gt=0"`
	MaxTransactionTime      time.Duration `validate:"gt=0"`
	ExtendedTransactionTime time.Duration `validate:"gtfield=MaxTransactionTime"`
	CompletedRetention      time.Duration `validate:"gt=0"`
	GhostRetention          time.Duration `validate:"gt=0"`
	CleanupEveryFrames      int           `validate:"gt=0"`

	// Zone occupancy; empty FrontalBodyClassIDs means every frontal box counts
	ClearDelay          time.Duration `validate:"gte=0"`
	FrontalBodyClassIDs []int

	// Persistence
	StoreDriver      string `validate:"oneof=sqlite postgres none"`
	StoreDSN         string
	PersistQueueSize int    `validate:"gt=0"`
	Timezone         string `validate:"required"`

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

// Load reads the environment (and .env when present), then overlays the
// calibration file if CALIBRATION_FILE points at one.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "avc-gate-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Detector
		DetectorGRPCURL:     getEnv("DETECTOR_GRPC_URL", "localhost:50052"),
		DetectorMethod:      getEnv("DETECTOR_METHOD", "/avc.Detector/Detect"),
		DetectorTimeout:     getEnvDuration("DETECTOR_TIMEOUT", 2*time.Second),
		DetectorConfidence:  getEnvFloat("DETECTOR_CONFIDENCE", 0.5),
		DetectorJPEGQuality: getEnvInt("DETECTOR_JPEG_QUALITY", 95),
		OverheadModel:       getEnv("OVERHEAD_MODEL", "overhead"),
		FrontalModel:        getEnv("FRONTAL_MODEL", "frontal"),

		// NATS
		NatsEnabled:         getEnvBool("NATS_ENABLED", true),
		NatsURL:             getNatsURL(),
		NatsConnectTimeout:  getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:   getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:   getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		EventsSubject:       getEnv("EVENTS_SUBJECT", "avc.events"),
		CommandsSubject:     getEnv("COMMANDS_SUBJECT", "avc.commands"),
		TransactionsSubject: getEnv("TRANSACTIONS_SUBJECT", "avc.transactions"),

		// Cameras
		OverheadRTSPURL: getEnv("OVERHEAD_RTSP_URL", "rtsp://localhost:8554/overhead"),
		FrontalRTSPURL:  getEnv("FRONTAL_RTSP_URL", "rtsp://localhost:8554/frontal"),
		RTSPTransport:   getEnv("RTSP_TRANSPORT", "tcp"),

		ReconnectBackoffMin: getEnvDuration("RECONNECT_BACKOFF_MIN", 1*time.Second),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		ReconnectJitterPct:  getEnvInt("RECONNECT_JITTER_PCT", 20),

		// Frames
		FrameWidth:    getEnvInt("FRAME_WIDTH", 640),
		FrameHeight:   getEnvInt("FRAME_HEIGHT", 480),
		TargetFPS:     getEnvInt("TARGET_FPS", 30),
		OutputQuality: getEnvInt("OUTPUT_QUALITY", 75),
		LoopIdleSleep: getEnvDuration("LOOP_IDLE_SLEEP", 10*time.Millisecond),

		CalibrationFile: getEnv("CALIBRATION_FILE", ""),
		Calibration:     DefaultCalibration(),

		// Class ids
		AxleClassID:       getEnvInt("AXLE_CLASS_ID", 0),
		BodyClassIDs:      getEnvIntList("BODY_CLASS_IDS", []int{1, 2, 3}),
		SingleTireClassID: getEnvInt("SINGLE_TIRE_CLASS_ID", 3),
		DoubleTireClassID: getEnvInt("DOUBLE_TIRE_CLASS_ID", 2),

		// Line crossing
		TouchTolerance:   getEnvFloat("TOUCH_TOLERANCE", 15),
		BodyTimeout:      getEnvDuration("BODY_TIMEOUT", 500*time.Millisecond),
		AxleTimeout:      getEnvDuration("AXLE_TIMEOUT", 1*time.Second),
		MaxMatchDistance: getEnvFloat("MAX_MATCH_DISTANCE", 80),
		TrackHistory:     getEnvInt("TRACK_HISTORY", 5),
		TrackStaleAfter:  getEnvDuration("TRACK_STALE_AFTER", 5*time.Second),

		// Vehicle registry
		LearningWindow:          getEnvDuration("LEARNING_WINDOW", 4*time.Second),
		MaxTransactionTime:      getEnvDuration("MAX_TRANSACTION_TIME", 15*time.Second),
		ExtendedTransactionTime: getEnvDuration("EXTENDED_TRANSACTION_TIME", 60*time.Second),
		CompletedRetention:      getEnvDuration("COMPLETED_RETENTION", 60*time.Second),
		GhostRetention:          getEnvDuration("GHOST_RETENTION", 20*time.Second),
		CleanupEveryFrames:      getEnvInt("CLEANUP_EVERY_FRAMES", 30),

		// Zone occupancy
		ClearDelay:          getEnvDuration("ZONE_CLEAR_DELAY", 500*time.Millisecond),
		FrontalBodyClassIDs: getEnvIntList("FRONTAL_BODY_CLASS_IDS", nil),

		// Persistence
		StoreDriver:      getEnv("STORE_DRIVER", "sqlite"),
		StoreDSN:         getEnv("STORE_DSN", "avc.db"),
		PersistQueueSize: getEnvInt("PERSIST_QUEUE_SIZE", 256),
		Timezone:         getEnv("TIMEZONE", "Asia/Makassar"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.CalibrationFile != "" {
		cal, err := LoadCalibration(cfg.CalibrationFile)
		if err != nil {
			return nil, err
		}
		cfg.Calibration = cal
		log.Info().Str("file", cfg.CalibrationFile).Msg("Loaded calibration file")
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints plus the geometry rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Calibration.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsBodyClass reports whether a detector class id denotes a vehicle body.
func (c *Config) IsBodyClass(classID int) bool {
	for _, id := range c.BodyClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvIntList parses a comma separated list such as "1,2,3".
func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer list, using default")
			return defaultValue
		}
		out = append(out, parsed)
	}
	return out
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}
	if isRunningInDocker() {
		return "nats://nats:4222"
	}
	return "nats://localhost:4222"
}
