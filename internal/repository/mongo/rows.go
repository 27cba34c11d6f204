package mongo

import (
	"alcyxob/session-booking/internal/domain"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Stored documents have accumulated several shapes over time: sessions written by the
// old booking flow carry "scheduledAt" and "duration", some carry an explicit "end",
// and imported requests hold their times as strings. Everything read from the booking
// collections passes through these adapters so the services only ever see domain types.

var errMissingID = errors.New("document has no usable _id")

var (
	sessionStartKeys    = []string{"start", "scheduledAt", "startTime"}
	sessionEndKeys      = []string{"end", "endTime"}
	sessionDurationKeys = []string{"durationMinutes", "duration"}
)

func firstPresent(doc bson.M, keys ...string) any {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func objectID(doc bson.M, key string) primitive.ObjectID {
	switch v := doc[key].(type) {
	case primitive.ObjectID:
		return v
	case string:
		if id, err := primitive.ObjectIDFromHex(v); err == nil {
			return id
		}
	}
	return primitive.NilObjectID
}

func optObjectID(doc bson.M, key string) *primitive.ObjectID {
	id := objectID(doc, key)
	if id == primitive.NilObjectID {
		return nil
	}
	return &id
}

func optString(doc bson.M, key string) *string {
	if v, ok := doc[key].(string); ok {
		return &v
	}
	return nil
}

func timestamp(doc bson.M, keys ...string) time.Time {
	t, err := domain.ParseTimestamp(firstPresent(doc, keys...))
	if err != nil {
		return time.Time{}
	}
	return t
}

func optTimestamp(doc bson.M, key string) *time.Time {
	t := timestamp(doc, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// sessionFromDocument fails only when the document has no id or no parsable start.
func sessionFromDocument(doc bson.M) (domain.Session, error) {
	id := objectID(doc, "_id")
	if id == primitive.NilObjectID {
		return domain.Session{}, errMissingID
	}
	interval, err := domain.ResolveInterval(
		firstPresent(doc, sessionStartKeys...),
		firstPresent(doc, sessionEndKeys...),
		firstPresent(doc, sessionDurationKeys...),
	)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		ID:              id,
		TrainerID:       objectID(doc, "trainerId"),
		ClientID:        objectID(doc, "clientId"),
		PlanID:          optObjectID(doc, "planId"),
		Start:           interval.Start,
		DurationMinutes: interval.Minutes(),
		Location:        optString(doc, "location"),
		Notes:           optString(doc, "notes"),
		CreatedAt:       timestamp(doc, "createdAt"),
		UpdatedAt:       timestamp(doc, "updatedAt"),
	}, nil
}

// requestFromDocument keeps requests whose times fail to parse: the bounds are left
// zero and the request's interval accessors report them as invalid.
func requestFromDocument(doc bson.M) (domain.SessionRequest, error) {
	id := objectID(doc, "_id")
	if id == primitive.NilObjectID {
		return domain.SessionRequest{}, errMissingID
	}
	status, _ := doc["status"].(string)
	return domain.SessionRequest{
		ID:             id,
		SessionID:      optObjectID(doc, "sessionId"),
		TrainerID:      objectID(doc, "trainerId"),
		ClientID:       objectID(doc, "clientId"),
		PlanID:         optObjectID(doc, "planId"),
		RequestedStart: timestamp(doc, "requestedStart"),
		RequestedEnd:   timestamp(doc, "requestedEnd"),
		ProposedStart:  optTimestamp(doc, "proposedStart"),
		ProposedEnd:    optTimestamp(doc, "proposedEnd"),
		Status:         domain.RequestStatus(status),
		Message:        optString(doc, "message"),
		TrainerNote:    optString(doc, "trainerNote"),
		RescheduleNote: optString(doc, "rescheduleNote"),
		AttachmentKey:  optString(doc, "attachmentKey"),
		CreatedAt:      timestamp(doc, "createdAt"),
		UpdatedAt:      timestamp(doc, "updatedAt"),
		RespondedAt:    optTimestamp(doc, "respondedAt"),
		RespondedBy:    optObjectID(doc, "respondedBy"),
		ProposedAt:     optTimestamp(doc, "proposedAt"),
		ProposedBy:     optObjectID(doc, "proposedBy"),
	}, nil
}
