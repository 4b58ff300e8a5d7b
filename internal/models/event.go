package models

import (
	"time"
)

type EventType string

const (
	EventOverheadUpdate      EventType = "overhead_update"
	EventFrontalUpdate       EventType = "frontal_update"
	EventClassificationReady EventType = "classification_ready"
	EventVehicleCompleted    EventType = "vehicle_completed"
)

// Event is the envelope pushed to every outbound channel (NATS, WebSocket).
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// System status labels shown on the overhead panel.
const (
	SystemActive  = "AKTIF"
	SystemStandby = "STANDBY"
)

// OverheadUpdate describes the vehicle the overhead panel should show.
type OverheadUpdate struct {
	VehicleID      string `json:"vehicle_id"`
	AxleCount      int    `json:"axle_count"`
	Classification string `json:"classification"`
	Status         string `json:"status"`
	DetectedAxles  int    `json:"detected_axles"`
	SystemStatus   string `json:"system_status"`
}

type FrontalUpdate struct {
	VehicleID      string `json:"vehicle_id"`
	Classification string `json:"classification"`
	Status         string `json:"status"`
	TireConfig     string `json:"tire_config"`
}

type ClassificationReady struct {
	VehicleID      string         `json:"vehicle_id"`
	Classification Classification `json:"classification"`
	AxleCount      int            `json:"axle_count"`
	Timestamp      time.Time      `json:"timestamp"`
}

type VehicleCompleted struct {
	VehicleID string           `json:"vehicle_id"`
	Reason    CompletionReason `json:"reason"`
}

// Idle panel placeholders.
const (
	IdleVehicleID      = "---"
	IdleClassification = "--"
)
