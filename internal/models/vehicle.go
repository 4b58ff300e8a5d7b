package models

import (
	"fmt"
	"time"
)

// VehicleStatus is the lifecycle state of a vehicle in the registry.
type VehicleStatus string

const (
	StatusDetected       VehicleStatus = "detected"
	StatusCountedWaiting VehicleStatus = "counted_waiting"
	StatusInTransaction  VehicleStatus = "in_transaction"
	StatusCompleted      VehicleStatus = "completed"
)

func (s VehicleStatus) String() string {
	return string(s)
}

func (s VehicleStatus) IsValid() bool {
	switch s {
	case StatusDetected, StatusCountedWaiting, StatusInTransaction, StatusCompleted:
		return true
	default:
		return false
	}
}

// Classification is the toll class label, "Golongan 1" through "Golongan 5".
type Classification string

const Unclassified Classification = ""

func ClassificationFor(class int) Classification {
	if class < 1 || class > 5 {
		return Unclassified
	}
	return Classification(fmt.Sprintf("Golongan %d", class))
}

func (c Classification) IsSet() bool {
	return c != Unclassified
}

// CompletionReason tells why a vehicle left the processing slot.
type CompletionReason string

const (
	CompletionNormal  CompletionReason = "completed"
	CompletionTimeout CompletionReason = "timeout"
	CompletionReset   CompletionReason = "reset"
)

// Vehicle is a point-in-time copy of a registry record.
type Vehicle struct {
	ID                 string         `json:"vehicle_id"`
	AxleCount          int            `json:"axle_count"`
	TireConfig         TireConfig     `json:"tire_config"`
	ConfigLocked       bool           `json:"config_locked"`
	Classification     Classification `json:"classification"`
	Status             VehicleStatus  `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	TransactionStart   *time.Time     `json:"transaction_start_time,omitempty"`
	MaxTransactionTime time.Duration  `json:"max_transaction_time"`
	TimeoutExtended    bool           `json:"timeout_extended"`
	EnteredZone        bool           `json:"has_entered_transaction_zone"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// Classified reports whether a class has been assigned.
func (v Vehicle) Classified() bool {
	return v.Classification.IsSet()
}
