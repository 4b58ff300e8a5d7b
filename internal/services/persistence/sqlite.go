package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	vehicle_id TEXT NOT NULL,
	classification TEXT NOT NULL,
	axle_count INTEGER NOT NULL,
	tire_config TEXT NOT NULL,
	entry_time TEXT NOT NULL,
	exit_time TEXT NOT NULL,
	exit_unix_ms INTEGER NOT NULL,
	processing_duration_seconds REAL NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_exit ON transactions (exit_unix_ms);
CREATE INDEX IF NOT EXISTS idx_transactions_vehicle ON transactions (vehicle_id);
`

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite transaction store ready")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, tx models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, vehicle_id, classification, axle_count, tire_config,
			entry_time, exit_time, exit_unix_ms, processing_duration_seconds, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.VehicleID, string(tx.Classification), tx.AxleCount, string(tx.TireConfig),
		tx.EntryTime.Format(time.RFC3339Nano), tx.ExitTime.Format(time.RFC3339Nano), tx.ExitTime.UnixMilli(),
		tx.ProcessingDurationSeconds, string(tx.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.VehicleID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]models.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "exit_unix_ms >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if q.VehicleID != "" {
		where = append(where, "vehicle_id = ?")
		args = append(args, q.VehicleID)
	}

	stmt := `SELECT id, vehicle_id, classification, axle_count, tire_config,
		entry_time, exit_time, processing_duration_seconds, status FROM transactions`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY exit_unix_ms DESC, rowid DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			tx                  models.Transaction
			class, tire, status string
			entry, exit         string
		)
		if err := rows.Scan(&tx.ID, &tx.VehicleID, &class, &tx.AxleCount, &tire,
			&entry, &exit, &tx.ProcessingDurationSeconds, &status); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Classification = models.Classification(class)
		tx.TireConfig = models.TireConfig(tire)
		tx.Status = models.TransactionStatus(status)
		if tx.EntryTime, err = time.Parse(time.RFC3339Nano, entry); err != nil {
			return nil, fmt.Errorf("bad entry_time for %s: %w", tx.ID, err)
		}
		if tx.ExitTime, err = time.Parse(time.RFC3339Nano, exit); err != nil {
			return nil, fmt.Errorf("bad exit_time for %s: %w", tx.ID, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
