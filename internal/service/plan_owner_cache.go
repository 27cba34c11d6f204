package service

import (
	"alcyxob/session-booking/internal/repository"
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanOwnership is the part of a plan a booking needs.
type PlanOwnership struct {
	TrainerID primitive.ObjectID
	ClientID  primitive.ObjectID
}

// PlanOwnerCache remembers which trainer owns a plan. Entries expire after ttl and are
// dropped explicitly when a plan changes hands.
type PlanOwnerCache struct {
	planRepo repository.TrainingPlanRepository
	entries  *expirable.LRU[primitive.ObjectID, PlanOwnership]
}

// NewPlanOwnerCache creates a cache of at most size plans. Non-positive size or ttl
// fall back to 1024 entries and five minutes.
func NewPlanOwnerCache(planRepo repository.TrainingPlanRepository, size int, ttl time.Duration) *PlanOwnerCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PlanOwnerCache{
		planRepo: planRepo,
		entries:  expirable.NewLRU[primitive.ObjectID, PlanOwnership](size, nil, ttl),
	}
}

// Lookup returns the plan's current ownership, reading through to the store on a miss.
func (c *PlanOwnerCache) Lookup(ctx context.Context, planID primitive.ObjectID) (PlanOwnership, error) {
	if owner, ok := c.entries.Get(planID); ok {
		return owner, nil
	}
	plan, err := c.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return PlanOwnership{}, ErrPlanNotFound
		}
		return PlanOwnership{}, err
	}
	owner := PlanOwnership{TrainerID: plan.TrainerID, ClientID: plan.ClientID}
	c.entries.Add(planID, owner)
	return owner, nil
}

// Invalidate forgets planID so the next Lookup reads the store.
func (c *PlanOwnerCache) Invalidate(planID primitive.ObjectID) {
	c.entries.Remove(planID)
}
