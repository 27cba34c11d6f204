package mongo

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionRequestCollectionName = "session_requests"

// mongoSessionRequestRepository implements repository.SessionRequestRepository
type mongoSessionRequestRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRequestRepository creates a new SessionRequest repository backed by MongoDB.
func NewMongoSessionRequestRepository(db *mongo.Database) repository.SessionRequestRepository {
	return &mongoSessionRequestRepository{
		collection: db.Collection(sessionRequestCollectionName),
	}
}

// Create inserts a new request. Status defaults to pending.
func (r *mongoSessionRequestRepository) Create(ctx context.Context, req *domain.SessionRequest) (primitive.ObjectID, error) {
	if req.TrainerID == primitive.NilObjectID || req.ClientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("session request requires trainerId and clientId")
	}

	req.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = domain.RequestPending
	}

	if _, err := r.collection.InsertOne(ctx, req); err != nil {
		return primitive.NilObjectID, err
	}
	return req.ID, nil
}

// GetByID retrieves a request by its ID.
func (r *mongoSessionRequestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.SessionRequest, error) {
	var doc bson.M
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	req, err := requestFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByTrainer retrieves the trainer's requests, newest first.
func (r *mongoSessionRequestRepository) ListByTrainer(ctx context.Context, trainerID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error) {
	return r.list(ctx, "trainerId", trainerID, statuses)
}

// ListByClient retrieves the client's requests, newest first.
func (r *mongoSessionRequestRepository) ListByClient(ctx context.Context, clientID primitive.ObjectID, statuses ...domain.RequestStatus) ([]domain.SessionRequest, error) {
	return r.list(ctx, "clientId", clientID, statuses)
}

func (r *mongoSessionRequestRepository) list(ctx context.Context, field string, id primitive.ObjectID, statuses []domain.RequestStatus) ([]domain.SessionRequest, error) {
	filter := bson.M{field: id}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	requests := make([]domain.SessionRequest, 0, len(docs))
	for _, doc := range docs {
		req, err := requestFromDocument(doc)
		if err != nil {
			log.Warn().Err(err).Interface("id", doc["_id"]).Msg("skipping unreadable session request document")
			continue
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// UpdateIfStatus writes the negotiation fields of req, guarded by the expected status.
// Nil optional fields are removed from the document.
func (r *mongoSessionRequestRepository) UpdateIfStatus(ctx context.Context, req *domain.SessionRequest, expected domain.RequestStatus) error {
	if req.ID == primitive.NilObjectID {
		return errors.New("session request ID is required for update")
	}

	req.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"status":    req.Status,
		"updatedAt": req.UpdatedAt,
	}
	unset := bson.M{}
	optional := map[string]any{
		"sessionId":      req.SessionID,
		"proposedStart":  req.ProposedStart,
		"proposedEnd":    req.ProposedEnd,
		"trainerNote":    req.TrainerNote,
		"rescheduleNote": req.RescheduleNote,
		"respondedAt":    req.RespondedAt,
		"respondedBy":    req.RespondedBy,
		"proposedAt":     req.ProposedAt,
		"proposedBy":     req.ProposedBy,
	}
	for key, value := range optional {
		if isNilPointer(value) {
			unset[key] = ""
		} else {
			set[key] = value
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": req.ID, "status": expected}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": req.ID})
		if err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrStaleState
	}
	return nil
}

// SetAttachmentKey records the object storage key of the request's attachment.
func (r *mongoSessionRequestRepository) SetAttachmentKey(ctx context.Context, id primitive.ObjectID, key string) error {
	update := bson.M{"$set": bson.M{"attachmentKey": key, "updatedAt": time.Now().UTC()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *primitive.ObjectID:
		return p == nil
	case *time.Time:
		return p == nil
	case *string:
		return p == nil
	default:
		return v == nil
	}
}

func sessionRequestIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			// Open-request scans by trainer
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Open-request scans by client
			Keys:    bson.D{{Key: "clientId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
}
