// Package sqlite is a single-file storage backend for development and small
// deployments. It stores the same records as the mongo backend.
package sqlite

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width UTC so stored timestamps also sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS training_plans (
	id TEXT PRIMARY KEY,
	trainer_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	trainer_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	plan_id TEXT,
	start_at TEXT NOT NULL,
	end_at TEXT,
	duration_minutes INTEGER,
	location TEXT,
	notes TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (trainer_id, start_at),
	UNIQUE (client_id, start_at)
);

CREATE TABLE IF NOT EXISTS session_requests (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	trainer_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	plan_id TEXT,
	requested_start TEXT,
	requested_end TEXT,
	proposed_start TEXT,
	proposed_end TEXT,
	status TEXT NOT NULL,
	message TEXT,
	trainer_note TEXT,
	reschedule_note TEXT,
	attachment_key TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	responded_at TEXT,
	responded_by TEXT,
	proposed_at TEXT,
	proposed_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_training_plans_trainer ON training_plans(trainer_id, client_id);
CREATE INDEX IF NOT EXISTS idx_session_requests_trainer ON session_requests(trainer_id, status);
CREATE INDEX IF NOT EXISTS idx_session_requests_client ON session_requests(client_id, status);
`

// DB wraps the SQL database connection
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at path and initializes the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; sqlite would answer "database is locked" otherwise.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened SQLite database")
	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping tests the database connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// WithTransaction runs fn inside a transaction, committing only if fn returns nil.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// mapError translates driver errors into repository errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return repository.ErrDuplicate
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullID(id *primitive.ObjectID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.Hex(), Valid: true}
}

func parseID(s string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID
	}
	return id
}

func optID(s sql.NullString) *primitive.ObjectID {
	if !s.Valid {
		return nil
	}
	id := parseID(s.String)
	if id.IsZero() {
		return nil
	}
	return &id
}

func optString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// parseTime reads any timestamp shape domain.ParseTimestamp accepts, returning the
// zero time for NULL or garbage.
func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := domain.ParseTimestamp(s.String)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func optTime(s sql.NullString) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
