package models

import (
	"math"
	"time"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionTimeout   TransactionStatus = "timeout"
)

// Transaction is the record persisted once per completed vehicle.
type Transaction struct {
	ID                        string            `json:"id"`
	VehicleID                 string            `json:"vehicle_id"`
	Classification            Classification    `json:"classification"`
	AxleCount                 int               `json:"axle_count"`
	TireConfig                TireConfig        `json:"tire_config"`
	EntryTime                 time.Time         `json:"entry_time"`
	ExitTime                  time.Time         `json:"exit_time"`
	ProcessingDurationSeconds float64           `json:"processing_duration_seconds"`
	Status                    TransactionStatus `json:"status"`
}

// RoundDuration converts d to seconds rounded to two decimals.
func RoundDuration(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// TransactionStats summarises processing durations of stored transactions.
type TransactionStats struct {
	Count            int                    `json:"count"`
	TimeoutCount     int                    `json:"timeout_count"`
	MeanSeconds      float64                `json:"mean_seconds"`
	StdDevSeconds    float64                `json:"stddev_seconds"`
	MedianSeconds    float64                `json:"median_seconds"`
	P95Seconds       float64                `json:"p95_seconds"`
	ByClassification map[Classification]int `json:"by_classification"`
}
