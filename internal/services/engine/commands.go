package engine

import (
	"errors"
	"fmt"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
)

type CommandType string

const (
	CommandResetSoft CommandType = "reset_soft"
	CommandResetHard CommandType = "reset_hard"
	CommandSetLine   CommandType = "set_line"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is an operator request arriving over NATS or HTTP.
type Command struct {
	Type CommandType        `json:"type"`
	Line *config.LinePoints `json:"line,omitempty"`
}

func (e *Engine) Execute(cmd Command) error {
	switch cmd.Type {
	case CommandResetSoft:
		e.ResetSoft()
	case CommandResetHard:
		e.ResetHard()
	case CommandSetLine:
		if cmd.Line == nil {
			return errors.New("set_line requires line coordinates")
		}
		return e.SetLine(*cmd.Line)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}
