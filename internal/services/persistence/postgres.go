package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// transactionRecord is the gorm row for a transaction.
type transactionRecord struct {
	ID                        string    `gorm:"primaryKey;type:varchar(36)"`
	VehicleID                 string    `gorm:"type:varchar(16);not null;index"`
	Classification            string    `gorm:"type:varchar(16);not null"`
	AxleCount                 int       `gorm:"not null"`
	TireConfig                string    `gorm:"type:varchar(16);not null"`
	EntryTime                 time.Time `gorm:"not null"`
	ExitTime                  time.Time `gorm:"not null;index"`
	ProcessingDurationSeconds float64   `gorm:"not null"`
	Status                    string    `gorm:"type:varchar(16);not null"`
	CreatedAt                 time.Time `gorm:"autoCreateTime"`
}

func (transactionRecord) TableName() string { return "transactions" }

func toRecord(tx models.Transaction) transactionRecord {
	return transactionRecord{
		ID:                        tx.ID,
		VehicleID:                 tx.VehicleID,
		Classification:            string(tx.Classification),
		AxleCount:                 tx.AxleCount,
		TireConfig:                string(tx.TireConfig),
		EntryTime:                 tx.EntryTime,
		ExitTime:                  tx.ExitTime,
		ProcessingDurationSeconds: tx.ProcessingDurationSeconds,
		Status:                    string(tx.Status),
	}
}

func (r transactionRecord) model(loc *time.Location) models.Transaction {
	return models.Transaction{
		ID:                        r.ID,
		VehicleID:                 r.VehicleID,
		Classification:            models.Classification(r.Classification),
		AxleCount:                 r.AxleCount,
		TireConfig:                models.TireConfig(r.TireConfig),
		EntryTime:                 r.EntryTime.In(loc),
		ExitTime:                  r.ExitTime.In(loc),
		ProcessingDurationSeconds: r.ProcessingDurationSeconds,
		Status:                    models.TransactionStatus(r.Status),
	}
}

type PostgresStore struct {
	db  *gorm.DB
	loc *time.Location
}

// NewPostgresStore connects with a libpq style DSN and migrates the table.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&transactionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Postgres transaction store ready")
	return &PostgresStore{db: db, loc: time.Local}, nil
}

// WithLocation sets the zone List reports times in.
func (s *PostgresStore) WithLocation(loc *time.Location) *PostgresStore {
	s.loc = loc
	return s
}

func (s *PostgresStore) Insert(ctx context.Context, tx models.Transaction) error {
	rec := toRecord(tx)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.VehicleID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]models.Transaction, error) {
	query := s.db.WithContext(ctx).Model(&transactionRecord{})
	if !q.Since.IsZero() {
		query = query.Where("exit_time >= ?", q.Since)
	}
	if q.VehicleID != "" {
		query = query.Where("vehicle_id = ?", q.VehicleID)
	}

	var recs []transactionRecord
	if err := query.Order("exit_time DESC").Limit(q.limit()).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	out := make([]models.Transaction, len(recs))
	for i, r := range recs {
		out[i] = r.model(s.loc)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
