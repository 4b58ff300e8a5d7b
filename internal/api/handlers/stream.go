package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rchmtmaulana/skripsi-avc/internal/logging"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

type FrameStreamer interface {
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, camera models.CameraRole)
	Latest(camera models.CameraRole) ([]byte, bool)
}

type EventStreamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type StreamHandler struct {
	frames FrameStreamer
	events EventStreamer
}

func NewStreamHandler(frames FrameStreamer, events EventStreamer) *StreamHandler {
	return &StreamHandler{frames: frames, events: events}
}

func cameraParam(c *gin.Context) (models.CameraRole, bool) {
	camera := models.CameraRole(c.Param("camera"))
	if !camera.IsValid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera " + string(camera)})
		return "", false
	}
	logging.SetCamera(c, camera.String())
	return camera, true
}

// @Summary Annotated MJPEG stream of one camera
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Param camera path string true "overhead or frontal"
// @Router /stream/{camera} [get]
func (h *StreamHandler) MJPEG(c *gin.Context) {
	camera, ok := cameraParam(c)
	if !ok {
		return
	}
	logging.Debug(c).Msg("MJPEG viewer connected")
	h.frames.StreamMJPEGHTTP(c.Writer, c.Request, camera)
}

// @Summary Latest annotated frame as a JPEG
// @Tags stream
// @Produce image/jpeg
// @Router /stream/{camera}/frame [get]
func (h *StreamHandler) Frame(c *gin.Context) {
	camera, ok := cameraParam(c)
	if !ok {
		return
	}
	jpeg, ok := h.frames.Latest(camera)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame yet"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// @Summary Live fusion events over WebSocket
// @Tags stream
// @Router /ws [get]
func (h *StreamHandler) Events(c *gin.Context) {
	h.events.ServeWS(c.Writer, c.Request)
}
