package sqlite

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestColumns = `id, session_id, trainer_id, client_id, plan_id, requested_start, requested_end,
	proposed_start, proposed_end, status, message, trainer_note, reschedule_note, attachment_key,
	created_at, updated_at, responded_at, responded_by, proposed_at, proposed_by`

// SessionRequestRepository implements repository.SessionRequestRepository using SQLite
type SessionRequestRepository struct {
	db *DB
}

// NewSessionRequestRepository creates a new SQLite session request repository
func NewSessionRequestRepository(db *DB) repository.SessionRequestRepository {
	return &SessionRequestRepository{db: db}
}

// Create inserts a new request. An empty status defaults to pending.
func (r *SessionRequestRepository) Create(ctx context.Context, req *domain.SessionRequest) (primitive.ObjectID, error) {
	if req.TrainerID.IsZero() || req.ClientID.IsZero() {
		return primitive.NilObjectID, errors.New("session request requires trainerId and clientId")
	}
	if req.Status == "" {
		req.Status = domain.RequestPending
	}
	req.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	query := `INSERT INTO session_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.db.ExecContext(ctx, query,
		req.ID.Hex(),
		nullID(req.SessionID),
		req.TrainerID.Hex(),
		req.ClientID.Hex(),
		nullID(req.PlanID),
		nullTime(&req.RequestedStart),
		nullTime(&req.RequestedEnd),
		nullTime(req.ProposedStart),
		nullTime(req.ProposedEnd),
		string(req.Status),
		nullString(req.Message),
		nullString(req.TrainerNote),
		nullString(req.RescheduleNote),
		nullString(req.AttachmentKey),
		formatTime(now),
		formatTime(now),
		nullTime(req.RespondedAt),
		nullID(req.RespondedBy),
		nullTime(req.ProposedAt),
		nullID(req.ProposedBy),
	)
	if err != nil {
		return primitive.NilObjectID, mapError(err)
	}
	return req.ID, nil
}

// GetByID retrieves a request by its ID.
func (r *SessionRequestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.SessionRequest, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM session_requests WHERE id = ?`, id.Hex())
	req, err := scanRequest(row)
	if err != nil {
		return nil, mapError(err)
	}
	return &req, nil
}

func (r *SessionRequestRepository) ListByTrainer(ctx context.Context, trainerID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error) {
	return r.list(ctx, "trainer_id", trainerID, statuses)
}

func (r *SessionRequestRepository) ListByClient(ctx context.Context, clientID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error) {
	return r.list(ctx, "client_id", clientID, statuses)
}

func (r *SessionRequestRepository) list(ctx context.Context, column string, id primitive.ObjectID, statuses []domain.RequestStatus) ([]domain.SessionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM session_requests WHERE ` + column + ` = ?`
	args := []any{id.Hex()}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	requests := []domain.SessionRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateIfStatus writes the mutable fields only while the stored status equals expected.
func (r *SessionRequestRepository) UpdateIfStatus(ctx context.Context, req *domain.SessionRequest, expected domain.RequestStatus) error {
	now := time.Now().UTC()
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE session_requests SET
				session_id = ?, status = ?, proposed_start = ?, proposed_end = ?,
				trainer_note = ?, reschedule_note = ?, responded_at = ?, responded_by = ?,
				proposed_at = ?, proposed_by = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			nullID(req.SessionID),
			string(req.Status),
			nullTime(req.ProposedStart),
			nullTime(req.ProposedEnd),
			nullString(req.TrainerNote),
			nullString(req.RescheduleNote),
			nullTime(req.RespondedAt),
			nullID(req.RespondedBy),
			nullTime(req.ProposedAt),
			nullID(req.ProposedBy),
			formatTime(now),
			req.ID.Hex(),
			string(expected),
		)
		if err != nil {
			return mapError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			req.UpdatedAt = now
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM session_requests WHERE id = ?`, req.ID.Hex()).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrStaleState
	})
}

func (r *SessionRequestRepository) SetAttachmentKey(ctx context.Context, id primitive.ObjectID, key string) error {
	res, err := r.db.db.ExecContext(ctx,
		`UPDATE session_requests SET attachment_key = ?, updated_at = ? WHERE id = ?`,
		key, formatTime(time.Now()), id.Hex())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func scanRequest(s scanner) (domain.SessionRequest, error) {
	var (
		id, trainerID, clientID, status                     string
		sessionID, planID, requestedStart, requestedEnd     sql.NullString
		proposedStart, proposedEnd, message, trainerNote    sql.NullString
		rescheduleNote, attachmentKey, createdAt, updatedAt sql.NullString
		respondedAt, respondedBy, proposedAt, proposedBy    sql.NullString
	)
	err := s.Scan(&id, &sessionID, &trainerID, &clientID, &planID, &requestedStart, &requestedEnd,
		&proposedStart, &proposedEnd, &status, &message, &trainerNote, &rescheduleNote, &attachmentKey,
		&createdAt, &updatedAt, &respondedAt, &respondedBy, &proposedAt, &proposedBy)
	if err != nil {
		return domain.SessionRequest{}, err
	}

	return domain.SessionRequest{
		ID:             parseID(id),
		SessionID:      optID(sessionID),
		TrainerID:      parseID(trainerID),
		ClientID:       parseID(clientID),
		PlanID:         optID(planID),
		RequestedStart: parseTime(requestedStart),
		RequestedEnd:   parseTime(requestedEnd),
		ProposedStart:  optTime(proposedStart),
		ProposedEnd:    optTime(proposedEnd),
		Status:         domain.RequestStatus(status),
		Message:        optString(message),
		TrainerNote:    optString(trainerNote),
		RescheduleNote: optString(rescheduleNote),
		AttachmentKey:  optString(attachmentKey),
		CreatedAt:      parseTime(createdAt),
		UpdatedAt:      parseTime(updatedAt),
		RespondedAt:    optTime(respondedAt),
		RespondedBy:    optID(respondedBy),
		ProposedAt:     optTime(proposedAt),
		ProposedBy:     optID(proposedBy),
	}, nil
}
