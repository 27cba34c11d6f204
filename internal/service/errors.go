package service

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"errors"
	"fmt"
)

// --- Error Definitions ---
var (
	ErrForbidden        = errors.New("actor is not allowed to perform this action")
	ErrRequestNotFound  = errors.New("session request not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrPlanNotFound     = errors.New("training plan not found")
	ErrTrainerNotFound  = errors.New("trainer not found")
	ErrClientNotFound   = errors.New("client user not found")
	ErrInvalidState     = errors.New("action not allowed in the request's current state")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrPastRange        = errors.New("start time is in the past")
	ErrSessionNotLinked = errors.New("request has no linked session")
	ErrConflict         = errors.New("time slot conflicts with existing bookings")
	ErrNoAttachment     = errors.New("request has no attachment")
	ErrStorageDisabled  = errors.New("attachment storage is not configured")
)

// ConflictError carries the bookings that blocked a commitment.
type ConflictError struct {
	Conflicts []domain.ConflictInfo
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%d conflicting)", ErrConflict.Error(), len(e.Conflicts))
}

// Is makes errors.Is(err, ErrConflict) hold for a *ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Code is the stable, client-facing name of an error.
type Code string

const (
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidBody      Code = "INVALID_BODY"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeInvalidRange     Code = "INVALID_RANGE"
	CodePastRange        Code = "PAST_RANGE"
	CodeSessionNotLinked Code = "SESSION_NOT_LINKED"
	CodeConflict         Code = "CONFLICT"
	CodeTimeout          Code = "TIMEOUT"
	CodeInternal         Code = "INTERNAL"
)

// ErrorCode classifies err. Anything unrecognized is INTERNAL.
func ErrorCode(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrAuthenticationFailed):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrRequestNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrPlanNotFound),
		errors.Is(err, ErrTrainerNotFound),
		errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrNoAttachment),
		errors.Is(err, repository.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, repository.ErrStaleState):
		return CodeInvalidState
	case errors.Is(err, ErrPastRange):
		return CodePastRange
	case errors.Is(err, domain.ErrInvalidRange):
		return CodeInvalidRange
	case errors.Is(err, ErrSessionNotLinked):
		return CodeSessionNotLinked
	case errors.Is(err, ErrConflict), errors.Is(err, repository.ErrDuplicate), errors.Is(err, ErrUserAlreadyExists):
		return CodeConflict
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotRole), errors.Is(err, domain.ErrUnparsableTimestamp):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// Retryable reports whether the same call may succeed if simply repeated.
func Retryable(err error) bool {
	return ErrorCode(err) == CodeTimeout
}
