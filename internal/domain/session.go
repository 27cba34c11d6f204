package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is a confirmed, concrete booking between one trainer and one client.
type Session struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TrainerID       primitive.ObjectID  `bson:"trainerId" json:"trainerId"`
	ClientID        primitive.ObjectID  `bson:"clientId" json:"clientId"`
	PlanID          *primitive.ObjectID `bson:"planId,omitempty" json:"planId,omitempty"` // Training plan the session belongs to, if any
	Start           time.Time           `bson:"start" json:"start"`
	DurationMinutes int                 `bson:"durationMinutes" json:"durationMinutes"`
	Location        *string             `bson:"location,omitempty" json:"location,omitempty"`
	Notes           *string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// End is always derived from Start and DurationMinutes.
func (s *Session) End() time.Time {
	return s.Interval().End
}

// Interval returns the session's [start, end) window.
func (s *Session) Interval() Interval {
	return IntervalFromDuration(s.Start, s.DurationMinutes)
}

// BelongsTo reports whether the session is for exactly this trainer-client pair.
func (s *Session) BelongsTo(trainerID, clientID primitive.ObjectID) bool {
	return s.TrainerID == trainerID && s.ClientID == clientID
}
