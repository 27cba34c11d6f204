package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestStatus tracks where a SessionRequest is in its negotiation.
type RequestStatus string

const (
	RequestPending            RequestStatus = "pending"
	RequestAccepted           RequestStatus = "accepted"
	RequestDeclined           RequestStatus = "declined"  // Terminal
	RequestCancelled          RequestStatus = "cancelled" // Terminal
	RequestReschedulePending  RequestStatus = "reschedule_pending"
	RequestRescheduleDeclined RequestStatus = "reschedule_declined"
)

// OpenStatuses are the statuses whose time slot is still in flight.
var OpenStatuses = []RequestStatus{RequestPending, RequestReschedulePending}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestDeclined, RequestCancelled,
		RequestReschedulePending, RequestRescheduleDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s RequestStatus) Terminal() bool {
	return s == RequestDeclined || s == RequestCancelled
}

// SessionRequest is a negotiable proposal to create or change a Session's time.
// Requested times are the client's original ask and never change after creation.
// Proposed times are the trainer's counter-proposal during a reschedule.
type SessionRequest struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SessionID *primitive.ObjectID `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	TrainerID primitive.ObjectID  `bson:"trainerId" json:"trainerId"`
	ClientID  primitive.ObjectID  `bson:"clientId" json:"clientId"`
	PlanID    *primitive.ObjectID `bson:"planId,omitempty" json:"planId,omitempty"`

	RequestedStart time.Time  `bson:"requestedStart" json:"requestedStart"`
	RequestedEnd   time.Time  `bson:"requestedEnd" json:"requestedEnd"`
	ProposedStart  *time.Time `bson:"proposedStart,omitempty" json:"proposedStart,omitempty"`
	ProposedEnd    *time.Time `bson:"proposedEnd,omitempty" json:"proposedEnd,omitempty"`

	Status         RequestStatus `bson:"status" json:"status"`
	Message        *string       `bson:"message,omitempty" json:"message,omitempty"`               // Client-authored
	TrainerNote    *string       `bson:"trainerNote,omitempty" json:"trainerNote,omitempty"`       // Trainer-authored
	RescheduleNote *string       `bson:"rescheduleNote,omitempty" json:"rescheduleNote,omitempty"` // Trainer-authored
	AttachmentKey  *string       `bson:"attachmentKey,omitempty" json:"-"`                         // Object storage key, internal

	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
	RespondedAt *time.Time          `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
	RespondedBy *primitive.ObjectID `bson:"respondedBy,omitempty" json:"respondedBy,omitempty"`
	ProposedAt  *time.Time          `bson:"proposedAt,omitempty" json:"proposedAt,omitempty"`
	ProposedBy  *primitive.ObjectID `bson:"proposedBy,omitempty" json:"proposedBy,omitempty"`
}

// RequestedInterval returns the client's original ask. Rows whose requested bounds
// failed to parse carry zero times and yield an error here.
func (r *SessionRequest) RequestedInterval() (Interval, error) {
	return NewInterval(r.RequestedStart, r.RequestedEnd)
}

// ProposedInterval returns the trainer's counter-proposal, if one is set and valid.
func (r *SessionRequest) ProposedInterval() (Interval, error) {
	if r.ProposedStart == nil || r.ProposedEnd == nil {
		return Interval{}, ErrUnparsableTimestamp
	}
	return NewInterval(*r.ProposedStart, *r.ProposedEnd)
}

// ActiveInterval is the slot the request currently holds: the proposal while a
// reschedule is pending, the original ask otherwise.
func (r *SessionRequest) ActiveInterval() (Interval, error) {
	if r.Status == RequestReschedulePending {
		return r.ProposedInterval()
	}
	return r.RequestedInterval()
}

// BelongsTo reports whether the request is for exactly this trainer-client pair.
func (r *SessionRequest) BelongsTo(trainerID, clientID primitive.ObjectID) bool {
	return r.TrainerID == trainerID && r.ClientID == clientID
}
