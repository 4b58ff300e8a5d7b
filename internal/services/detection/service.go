// Package detection talks to the external object detector over gRPC.
package detection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

var (
	ErrNotConnected = errors.New("detector not connected")
	ErrBackoff      = errors.New("in backoff period after consecutive failures")
)

// Detector runs inference on one JPEG encoded frame.
type Detector interface {
	Detect(ctx context.Context, camera models.CameraRole, jpeg []byte, width, height int) ([]models.Detection, error)
}

// Service manages the gRPC connection to the detector with reconnect backoff.
type Service struct {
	endpoint   string
	method     string
	timeout    time.Duration
	confidence float64
	models     map[models.CameraRole]string
	logger     zerolog.Logger
	now        func() time.Time

	mu               sync.RWMutex
	conn             *grpc.ClientConn
	lastFailTime     time.Time
	consecutiveFails int
	maxRetryBackoff  time.Duration
}

// NewService creates the client and tries to connect once. An unreachable
// detector is not fatal; Detect reconnects on demand.
func NewService(cfg *config.Config) *Service {
	s := &Service{
		endpoint:   cfg.DetectorGRPCURL,
		method:     cfg.DetectorMethod,
		timeout:    cfg.DetectorTimeout,
		confidence: cfg.DetectorConfidence,
		models: map[models.CameraRole]string{
			models.CameraOverhead: cfg.OverheadModel,
			models.CameraFrontal:  cfg.FrontalModel,
		},
		logger:          log.With().Str("service", "detection").Logger(),
		now:             time.Now,
		maxRetryBackoff: 30 * time.Second,
	}
	if err := s.connect(); err != nil {
		s.logger.Warn().Err(err).Msg("Detector not available, will retry later")
	}
	return s
}

func (s *Service) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	target, creds, err := parseGRPCEndpoint(s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse detector endpoint %s: %w", s.endpoint, err)
	}

	s.logger.Info().
		Str("endpoint", s.endpoint).
		Str("target", target).
		Bool("use_tls", creds.Info().SecurityProtocol == "tls").
		Msg("Connecting to detector")

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("failed to connect to detector at %s: %w", target, err)
	}
	s.conn = conn
	s.consecutiveFails = 0
	return nil
}

// EnsureConnected reconnects when the connection is missing or failed,
// honouring the failure backoff.
func (s *Service) EnsureConnected() error {
	if !s.shouldRetry() {
		return ErrBackoff
	}

	s.mu.RLock()
	needsConnection := s.conn == nil
	if s.conn != nil {
		state := s.conn.GetState()
		needsConnection = state == connectivity.Shutdown
		if state == connectivity.TransientFailure {
			s.conn.Connect()
		}
	}
	s.mu.RUnlock()

	if needsConnection {
		if err := s.connect(); err != nil {
			s.recordFailure()
			return fmt.Errorf("failed to ensure connection: %w", err)
		}
	}
	return nil
}

// Detect sends one frame to the detector. Any failure is returned to the
// caller, which treats the frame as having no detections.
func (s *Service) Detect(ctx context.Context, camera models.CameraRole, jpeg []byte, width, height int) ([]models.Detection, error) {
	if err := s.EnsureConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	req, err := buildRequest(s.models[camera], jpeg, width, height, s.confidence)
	if err != nil {
		return nil, fmt.Errorf("failed to build detector request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, s.method, req, resp); err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	s.mu.Lock()
	s.consecutiveFails = 0
	s.mu.Unlock()

	return parseResponse(resp, s.confidence)
}

func (s *Service) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return false
	}
	state := s.conn.GetState()
	return state == connectivity.Ready || state == connectivity.Idle || state == connectivity.Connecting
}

func (s *Service) ConnectionState() connectivity.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return connectivity.Shutdown
	}
	return s.conn.GetState()
}

// shouldRetry applies exponential backoff: 1s, 2s, 4s ... capped at 30s.
func (s *Service) shouldRetry() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.consecutiveFails == 0 {
		return true
	}
	backoff := time.Duration(1<<uint(min(s.consecutiveFails-1, 16))) * time.Second
	if backoff > s.maxRetryBackoff {
		backoff = s.maxRetryBackoff
	}
	return s.now().Sub(s.lastFailTime) >= backoff
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFails++
	s.lastFailTime = s.now()

	if s.consecutiveFails <= 5 {
		s.logger.Warn().
			Int("consecutive_fails", s.consecutiveFails).
			Msg("Detector failure recorded")
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down detector connection")
	err := s.conn.Close()
	s.conn = nil
	return err
}

// parseGRPCEndpoint normalizes host, host:port and URL forms into a dial
// target and picks TLS for https or the usual TLS ports.
func parseGRPCEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if !strings.Contains(endpoint, "://") {
		switch {
		case strings.Contains(endpoint, ".") && !strings.Contains(endpoint, ":"):
			endpoint = "https://" + endpoint + ":443"
		case strings.Contains(endpoint, ":"):
			scheme := "http://"
			if parts := strings.Split(endpoint, ":"); len(parts) == 2 {
				if port, err := strconv.Atoi(parts[1]); err == nil && (port == 443 || port == 8443 || port == 9443) {
					scheme = "https://"
				}
			}
			endpoint = scheme + endpoint
		default:
			endpoint = "https://" + endpoint + ":443"
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = u.Hostname() + ":443"
		case "http":
			host = u.Hostname() + ":80"
		default:
			return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
		}
	}

	var creds credentials.TransportCredentials
	switch u.Scheme {
	case "https":
		creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname()})
	case "http":
		creds = insecure.NewCredentials()
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return host, creds, nil
}
