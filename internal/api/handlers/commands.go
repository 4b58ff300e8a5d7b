package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/logging"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/engine"
)

type Executor interface {
	Execute(cmd engine.Command) error
}

type CommandHandler struct {
	exec     Executor
	validate *validator.Validate
}

func NewCommandHandler(exec Executor) *CommandHandler {
	return &CommandHandler{exec: exec, validate: validator.New()}
}

func (h *CommandHandler) run(c *gin.Context, cmd engine.Command) {
	// Execute only fails on bad input
	if err := h.exec.Execute(cmd); err != nil {
		logging.Warn(c).Err(err).Str("command", string(cmd.Type)).Msg("Command rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logging.Info(c).Str("command", string(cmd.Type)).Msg("Command executed")
	c.JSON(http.StatusOK, gin.H{"success": true, "command": cmd.Type})
}

// @Summary Soft reset: complete the current vehicle, keep numbering
// @Tags commands
// @Router /commands/reset-soft [post]
func (h *CommandHandler) ResetSoft(c *gin.Context) {
	h.run(c, engine.Command{Type: engine.CommandResetSoft})
}

// @Summary Hard reset: clear everything and restart ids at V0001
// @Tags commands
// @Router /commands/reset-hard [post]
func (h *CommandHandler) ResetHard(c *gin.Context) {
	h.run(c, engine.Command{Type: engine.CommandResetHard})
}

// @Summary Move the overhead detection line
// @Tags commands
// @Accept json
// @Param request body config.LinePoints true "line endpoints in pixels"
// @Router /line [put]
func (h *CommandHandler) SetLine(c *gin.Context) {
	var line config.LinePoints
	if err := c.ShouldBindJSON(&line); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(line); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.run(c, engine.Command{Type: engine.CommandSetLine, Line: &line})
}

// @Summary Run a raw command, same payload as the NATS commands subject
// @Tags commands
// @Accept json
// @Router /commands [post]
func (h *CommandHandler) Execute(c *gin.Context) {
	var cmd engine.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cmd.Line != nil {
		if err := h.validate.Struct(cmd.Line); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.run(c, cmd)
}
