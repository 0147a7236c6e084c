// Package database implements domain.Store on sqlite. It is the reference
// collaborator behind the engine's narrow store interface; the engine itself
// never sees SQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// timeFormat is the canonical column encoding: UTC with a zero-padded,
// fixed-width fraction. Lexicographic order on these strings is
// chronological order, which the conflict re-check in AddBooking compares
// in SQL. RFC3339Nano trims trailing fractional zeros and loses that
// property ("10:00:00.5Z" sorts before "10:00:00Z").
const timeFormat = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            name TEXT NOT NULL,
            description TEXT,
            kind TEXT NOT NULL,
            share_mode TEXT NOT NULL DEFAULT 'lend',
            available INTEGER NOT NULL DEFAULT 1,
            max_borrow_days INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            resource_id TEXT NOT NULL,
            requester_id TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'confirmed',
            purpose TEXT,
            pickup_location TEXT,
            notes TEXT,
            return_condition TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_resource ON bookings(resource_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_requester ON bookings(requester_id)`,
		`CREATE TABLE IF NOT EXISTS coordinations (
            id TEXT PRIMARY KEY,
            resource_id TEXT NOT NULL,
            provider_id TEXT NOT NULL,
            receiver_id TEXT NOT NULL,
            booking_id TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            method TEXT NOT NULL,
            scheduled_time TEXT,
            location TEXT,
            directions TEXT,
            completed_by TEXT,
            completed_at TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS coordination_messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            coordination_id TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            text TEXT NOT NULL,
            system INTEGER NOT NULL DEFAULT 0,
            sent_at TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_coordination ON coordination_messages(coordination_id)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
            id TEXT PRIMARY KEY,
            action TEXT NOT NULL,
            provider_id TEXT,
            receiver_id TEXT,
            resource_id TEXT,
            note TEXT,
            created_at TEXT NOT NULL
        )`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Ping verifies the underlying connection, for health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}
