package service

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"errors"
	"fmt"
)

// SessionMaterializer turns an accepted request into its confirmed Session.
type SessionMaterializer struct {
	sessionRepo     repository.SessionRepository
	fallbackMinutes int
}

// NewSessionMaterializer creates a materializer. fallbackMinutes is the session length
// used when a request's own interval is empty; non-positive means domain.DefaultDurationMinutes.
func NewSessionMaterializer(sessionRepo repository.SessionRepository, fallbackMinutes int) *SessionMaterializer {
	if fallbackMinutes <= 0 {
		fallbackMinutes = domain.DefaultDurationMinutes
	}
	return &SessionMaterializer{sessionRepo: sessionRepo, fallbackMinutes: fallbackMinutes}
}

// Materialize inserts the Session for req. A duplicate start for either party comes
// back as a *ConflictError.
func (m *SessionMaterializer) Materialize(ctx context.Context, req *domain.SessionRequest) (*domain.Session, error) {
	session := sessionFromRequest(req, m.fallbackMinutes)
	if _, err := m.sessionRepo.Create(ctx, &session); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{}
		}
		return nil, fmt.Errorf("materialize session: %w", err)
	}
	return &session, nil
}

// Undo removes a session created by Materialize whose request could not be updated.
func (m *SessionMaterializer) Undo(ctx context.Context, session *domain.Session) error {
	err := m.sessionRepo.Delete(ctx, session.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// Interval is the slot the Session for req will occupy once materialized.
func (m *SessionMaterializer) Interval(req *domain.SessionRequest) domain.Interval {
	session := sessionFromRequest(req, m.fallbackMinutes)
	return session.Interval()
}

func sessionFromRequest(req *domain.SessionRequest, fallbackMinutes int) domain.Session {
	minutes := domain.Interval{Start: req.RequestedStart, End: req.RequestedEnd}.Minutes()
	if minutes <= 0 {
		minutes = fallbackMinutes
	}
	return domain.Session{
		TrainerID:       req.TrainerID,
		ClientID:        req.ClientID,
		PlanID:          req.PlanID,
		Start:           req.RequestedStart,
		DurationMinutes: minutes,
		Notes:           req.Message,
	}
}
