package sqlite

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const sessionColumns = `id, trainer_id, client_id, plan_id, start_at, end_at, duration_minutes, location, notes, created_at, updated_at`

// SessionRepository implements repository.SessionRepository using SQLite
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(db *DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session in canonical start+duration form.
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error) {
	if session.TrainerID.IsZero() || session.ClientID.IsZero() {
		return primitive.NilObjectID, errors.New("session requires trainerId and clientId")
	}
	if session.DurationMinutes <= 0 {
		return primitive.NilObjectID, errors.New("session duration must be positive")
	}

	session.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`
	_, err := r.db.db.ExecContext(ctx, query,
		session.ID.Hex(),
		session.TrainerID.Hex(),
		session.ClientID.Hex(),
		nullID(session.PlanID),
		formatTime(session.Start),
		session.DurationMinutes,
		nullString(session.Location),
		nullString(session.Notes),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return primitive.NilObjectID, mapError(err)
	}
	return session.ID, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id.Hex())
	session, err := scanSession(row)
	if err != nil {
		return nil, mapError(err)
	}
	return &session, nil
}

// UpdateTime moves a session, normalizing legacy rows to start+duration.
func (r *SessionRepository) UpdateTime(ctx context.Context, id primitive.ObjectID, start time.Time, durationMinutes int) error {
	if durationMinutes <= 0 {
		return errors.New("session duration must be positive")
	}
	res, err := r.db.db.ExecContext(ctx,
		`UPDATE sessions SET start_at = ?, end_at = NULL, duration_minutes = ?, updated_at = ? WHERE id = ?`,
		formatTime(start), durationMinutes, formatTime(time.Now()), id.Hex())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.Hex())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (r *SessionRepository) ListByTrainerStartingBetween(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	return r.listStartingBetween(ctx, "trainer_id", trainerID, from, to)
}

func (r *SessionRepository) ListByClientStartingBetween(ctx context.Context, clientID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	return r.listStartingBetween(ctx, "client_id", clientID, from, to)
}

// listStartingBetween compares through julianday so rows written with other
// timestamp text shapes still match the window.
func (r *SessionRepository) listStartingBetween(ctx context.Context, column string, id primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE ` + column + ` = ? AND julianday(start_at) BETWEEN julianday(?) AND julianday(?)
		ORDER BY julianday(start_at)`
	rows, err := r.db.db.QueryContext(ctx, query, id.Hex(), formatTime(from), formatTime(to))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			if errors.Is(err, domain.ErrUnparsableTimestamp) {
				log.Warn().Err(err).Msg("skipping unreadable session row")
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(s scanner) (domain.Session, error) {
	var (
		id, trainerID, clientID, start, createdAt, updatedAt string
		planID, end, location, notes                         sql.NullString
		duration                                             sql.NullInt64
	)
	if err := s.Scan(&id, &trainerID, &clientID, &planID, &start, &end, &duration, &location, &notes, &createdAt, &updatedAt); err != nil {
		return domain.Session{}, err
	}

	var endValue, durationValue any
	if end.Valid {
		endValue = end.String
	}
	if duration.Valid {
		durationValue = duration.Int64
	}
	interval, err := domain.ResolveInterval(start, endValue, durationValue)
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		ID:              parseID(id),
		TrainerID:       parseID(trainerID),
		ClientID:        parseID(clientID),
		PlanID:          optID(planID),
		Start:           interval.Start.UTC(),
		DurationMinutes: interval.Minutes(),
		Location:        optString(location),
		Notes:           optString(notes),
		CreatedAt:       parseTime(sql.NullString{String: createdAt, Valid: true}),
		UpdatedAt:       parseTime(sql.NullString{String: updatedAt, Valid: true}),
	}, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
