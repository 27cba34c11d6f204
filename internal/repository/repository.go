package repository

import (
	"alcyxob/session-booking/internal/domain"
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the repository layer
var (
	ErrNotFound  = RepositoryError("not found")
	ErrDuplicate = RepositoryError("duplicate key")
	// ErrStaleState is returned by conditional updates when the stored status no longer
	// matches the one the caller read.
	ErrStaleState = RepositoryError("record changed concurrently")
	ErrLockHeld   = RepositoryError("booking lock is held")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// SessionRepository stores confirmed sessions. Range queries filter on the session
// start only; callers narrow the result with an exact overlap test.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error)
	UpdateTime(ctx context.Context, id primitive.ObjectID, start time.Time, durationMinutes int) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ListByTrainerStartingBetween(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Session, error)
	ListByClientStartingBetween(ctx context.Context, clientID primitive.ObjectID, from, to time.Time) ([]domain.Session, error)
}

// SessionRequestRepository stores session requests. Requests are never deleted.
type SessionRequestRepository interface {
	Create(ctx context.Context, req *domain.SessionRequest) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.SessionRequest, error)
	// ListByTrainer returns the trainer's requests, restricted to statuses when any are given.
	ListByTrainer(ctx context.Context, trainerID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error)
	ListByClient(ctx context.Context, clientID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error)
	// UpdateIfStatus writes every mutable field of req, but only while the stored status
	// still equals expected. Returns ErrStaleState otherwise.
	UpdateIfStatus(ctx context.Context, req *domain.SessionRequest, expected domain.RequestStatus) error
	SetAttachmentKey(ctx context.Context, id primitive.ObjectID, key string) error
}

// TrainingPlanRepository defines the interface for interacting with training plan data.
type TrainingPlanRepository interface {
	Create(ctx context.Context, plan *domain.TrainingPlan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error)
	UpdateTrainer(ctx context.Context, id, trainerID primitive.ObjectID) error
}

// BookingLocker serializes "check conflicts + write" for the parties named by keys.
// Acquire blocks until every key is held or ctx ends; release must be called once.
type BookingLocker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// LockOrder drops empty and repeated keys and sorts the rest. Lockers take keys in
// this order so two callers locking the same pair never deadlock.
func LockOrder(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
