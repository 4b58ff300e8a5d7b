package models

import (
	"time"
)

// CameraRole identifies which of the two lane cameras a frame came from.
type CameraRole string

const (
	CameraOverhead CameraRole = "overhead"
	CameraFrontal  CameraRole = "frontal"
)

func (c CameraRole) String() string {
	return string(c)
}

func (c CameraRole) IsValid() bool {
	switch c {
	case CameraOverhead, CameraFrontal:
		return true
	default:
		return false
	}
}

// RawFrame is a decoded BGR24 frame handed from capture to a processing loop.
type RawFrame struct {
	Camera    CameraRole `json:"camera"`
	Data      []byte     `json:"-"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	FrameID   int64      `json:"frame_id"`
	Timestamp time.Time  `json:"timestamp"`
}

// CameraStatus is the capture-side health of one camera.
type CameraStatus struct {
	Camera        CameraRole `json:"camera"`
	URL           string     `json:"url"`
	Connected     bool       `json:"connected"`
	FrameCount    int64      `json:"frame_count"`
	FPS           float64    `json:"fps"`
	LastFrameTime time.Time  `json:"last_frame_time"`
	Reconnects    int        `json:"reconnects"`
	LastError     string     `json:"last_error,omitempty"`
}
