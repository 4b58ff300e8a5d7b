// Package persistence stores completed transactions off the fusion path.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rchmtmaulana/skripsi-avc/internal/config"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

var (
	ErrQueueFull = errors.New("persistence queue full")
	ErrClosed    = errors.New("persistence worker closed")
	ErrNoStore   = errors.New("no transaction store configured")
)

// Query filters List. Zero values mean no filter; Limit defaults to 100.
type Query struct {
	Limit     int
	Since     time.Time
	VehicleID string
}

const (
	defaultLimit = 100
	maxLimit     = 10000
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultLimit
	case q.Limit > maxLimit:
		return maxLimit
	default:
		return q.Limit
	}
}

// Store is a transaction table. List returns newest exit time first.
type Store interface {
	Insert(ctx context.Context, tx models.Transaction) error
	List(ctx context.Context, q Query) ([]models.Transaction, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store selected by StoreDriver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := NewSQLiteStore(cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		return s.WithLocation(cfg.Location()), nil
	case "none", "":
		return nil, ErrNoStore
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
