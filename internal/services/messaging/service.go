package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/engine"
)

// Executor runs operator commands.
type Executor interface {
	Execute(cmd engine.Command) error
}

type Service struct {
	conn *nats.Conn
	cfg  *config.Config
}

func NewService(cfg *config.Config) (*Service, error) {
	opts := []nats.Option{
		nats.Name("avc-" + cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NatsURL, err)
	}

	log.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn: conn,
		cfg:  cfg,
	}, nil
}

func (s *Service) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.conn.Publish(subject, payload)
}

// PublishEvent sends a fusion event on the events subject, suffixed by type,
// e.g. avc.events.vehicle_completed.
func (s *Service) PublishEvent(event models.Event) error {
	return s.Publish(s.cfg.EventsSubject+"."+string(event.Type), event)
}

// Save publishes a completed transaction. It never blocks on the network;
// the NATS client buffers while reconnecting.
func (s *Service) Save(tx models.Transaction) {
	if err := s.Publish(s.cfg.TransactionsSubject, tx); err != nil {
		log.Warn().Err(err).Str("vehicle_id", tx.VehicleID).Msg("Failed to publish transaction")
	}
}

func (s *Service) Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error) {
	return s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// SubscribeCommands executes commands received on the commands subject and
// answers requests that carry a reply subject.
func (s *Service) SubscribeCommands(exec Executor) (*nats.Subscription, error) {
	return s.conn.Subscribe(s.cfg.CommandsSubject, func(msg *nats.Msg) {
		reply := HandleCommand(exec, msg.Data)
		if msg.Reply == "" {
			return
		}
		payload, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := msg.Respond(payload); err != nil {
			log.Warn().Err(err).Msg("Failed to answer command")
		}
	})
}

// CommandReply is the answer sent back for request/reply commands.
type CommandReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func HandleCommand(exec Executor, data []byte) CommandReply {
	var cmd engine.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Warn().Err(err).Msg("Invalid command payload")
		return CommandReply{Error: "invalid command payload: " + err.Error()}
	}
	if err := exec.Execute(cmd); err != nil {
		log.Warn().Err(err).Str("command", string(cmd.Type)).Msg("Command failed")
		return CommandReply{Error: err.Error()}
	}
	log.Info().Str("command", string(cmd.Type)).Msg("Command executed")
	return CommandReply{OK: true}
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn != nil {
		// Try graceful drain, fallback to immediate close
		if err := s.conn.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
			s.conn.Close()
		}
	}
	return nil
}
