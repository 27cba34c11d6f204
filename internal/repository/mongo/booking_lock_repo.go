package mongo

import (
	"alcyxob/session-booking/internal/repository"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bookingLockCollectionName = "booking_locks"

// bookingLock is an advisory lock document. The _id is the locked key, so a second
// insert for the same key fails with a duplicate key error while the lock is held.
type bookingLock struct {
	ID        string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

// mongoBookingLocker implements repository.BookingLocker across processes.
type mongoBookingLocker struct {
	collection   *mongo.Collection
	ttl          time.Duration
	pollInterval time.Duration
}

// NewMongoBookingLocker creates a locker whose locks expire after ttl even if the holder
// dies. Waiters re-check every pollInterval.
func NewMongoBookingLocker(db *mongo.Database, ttl, pollInterval time.Duration) repository.BookingLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 25 * time.Millisecond
	}
	return &mongoBookingLocker{
		collection:   db.Collection(bookingLockCollectionName),
		ttl:          ttl,
		pollInterval: pollInterval,
	}
}

// Acquire takes the keys in sorted order under a single owner token.
func (l *mongoBookingLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	owner := uuid.NewString()
	ordered := repository.LockOrder(keys)

	for i, key := range ordered {
		if err := l.acquireOne(ctx, key, owner); err != nil {
			l.release(owner, ordered[:i])
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(owner, ordered) })
	}, nil
}

func (l *mongoBookingLocker) acquireOne(ctx context.Context, key, owner string) error {
	for {
		now := time.Now().UTC()
		_, err := l.collection.InsertOne(ctx, bookingLock{
			ID:        key,
			Owner:     owner,
			ExpiresAt: now.Add(l.ttl),
			CreatedAt: now,
		})
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return err
		}

		// The TTL monitor only runs once a minute; take over expired locks ourselves.
		res, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "expiresAt": bson.M{"$lt": now}})
		if err != nil {
			return err
		}
		if res.DeletedCount > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			log.Ctx(ctx).Debug().Str("key", key).Msg("gave up waiting for booking lock")
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// release runs on its own context: the caller's may already be cancelled.
func (l *mongoBookingLocker) release(owner string, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	filter := bson.M{"_id": bson.M{"$in": keys}, "owner": owner}
	if _, err := l.collection.DeleteMany(ctx, filter); err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("failed to release booking locks, they will expire")
	}
}

func bookingLockIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
}
