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

const sessionCollectionName = "sessions"

// mongoSessionRepository implements repository.SessionRepository
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new Session repository backed by MongoDB.
func NewMongoSessionRepository(db *mongo.Database) repository.SessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

// Create inserts a new session.
func (r *mongoSessionRepository) Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error) {
	if session.TrainerID == primitive.NilObjectID || session.ClientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("session requires trainerId and clientId")
	}
	if session.DurationMinutes <= 0 {
		return primitive.NilObjectID, errors.New("session duration must be positive")
	}

	session.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return session.ID, nil
}

// GetByID retrieves a session by its ID.
func (r *mongoSessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error) {
	var doc bson.M
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	session, err := sessionFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateTime moves a session. Legacy time fields are dropped so the document ends up
// in the canonical start+durationMinutes shape.
func (r *mongoSessionRepository) UpdateTime(ctx context.Context, id primitive.ObjectID, start time.Time, durationMinutes int) error {
	if durationMinutes <= 0 {
		return errors.New("session duration must be positive")
	}
	update := bson.M{
		"$set": bson.M{
			"start":           start.UTC(),
			"durationMinutes": durationMinutes,
			"updatedAt":       time.Now().UTC(),
		},
		"$unset": bson.M{"scheduledAt": "", "startTime": "", "end": "", "endTime": "", "duration": ""},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a session. Only used to undo a session whose request could not be linked.
func (r *mongoSessionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByTrainerStartingBetween returns the trainer's sessions starting in [from, to].
func (r *mongoSessionRepository) ListByTrainerStartingBetween(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	return r.listStartingBetween(ctx, "trainerId", trainerID, from, to)
}

// ListByClientStartingBetween returns the client's sessions starting in [from, to].
func (r *mongoSessionRepository) ListByClientStartingBetween(ctx context.Context, clientID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	return r.listStartingBetween(ctx, "clientId", clientID, from, to)
}

func (r *mongoSessionRepository) listStartingBetween(ctx context.Context, field string, id primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	window := bson.M{"$gte": from.UTC(), "$lte": to.UTC()}
	or := make(bson.A, 0, len(sessionStartKeys))
	for _, key := range sessionStartKeys {
		or = append(or, bson.M{key: window})
	}
	filter := bson.M{field: id, "$or": or}
	findOptions := options.Find().SetSort(bson.D{{Key: "start", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(docs))
	for _, doc := range docs {
		session, err := sessionFromDocument(doc)
		if err != nil {
			log.Warn().Err(err).Interface("id", doc["_id"]).Msg("skipping unreadable session document")
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func sessionIndexes() []mongo.IndexModel {
	// Two sessions for the same party can never start at the same instant. Besides
	// serving the conflict window scans, these turn a double-booking that slipped past
	// the lock into a duplicate key error.
	canonical := bson.M{"start": bson.M{"$exists": true}}
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("trainer_start_unique").SetPartialFilterExpression(canonical),
		},
		{
			Keys:    bson.D{{Key: "clientId", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("client_start_unique").SetPartialFilterExpression(canonical),
		},
		{
			// Legacy documents are still found by the window scan's $or branch.
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "scheduledAt", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.M{"scheduledAt": bson.M{"$exists": true}}),
		},
	}
}
