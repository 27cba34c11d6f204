package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConflictSource says which kind of record produced a conflict.
type ConflictSource string

const (
	SourceSession ConflictSource = "session"
	SourceRequest ConflictSource = "request"
)

// ConflictOwner says which party of the candidate booking a conflict belongs to.
// OwnerBoth means the conflicting record is for the same trainer-client pair.
type ConflictOwner string

const (
	OwnerTrainer ConflictOwner = "trainer"
	OwnerClient  ConflictOwner = "client"
	OwnerBoth    ConflictOwner = "both"
)

// ConflictInfo is a transient report item and is never persisted.
type ConflictInfo struct {
	ID     primitive.ObjectID `json:"id"`
	Source ConflictSource     `json:"source"`
	Owner  ConflictOwner      `json:"owner"`
	Status *RequestStatus     `json:"status,omitempty"` // Set for request conflicts
	Start  time.Time          `json:"start"`
	End    time.Time          `json:"end"`
}

// Blocking reports whether the conflicting record holds a committed slot: a confirmed
// session, or a trainer's pending reschedule proposal. Plain pending requests are
// competing asks and do not block a commitment.
func (c ConflictInfo) Blocking() bool {
	if c.Source == SourceSession {
		return true
	}
	return c.Status != nil && *c.Status == RequestReschedulePending
}
