package service

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/logging"
	"alcyxob/session-booking/internal/repository"
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrNotRole = errors.New("user found but does not have the required role")

// PlanService manages the training plans requests can be made against.
type PlanService interface {
	CreatePlan(ctx context.Context, actor domain.Actor, clientID primitive.ObjectID, name, description string) (*domain.TrainingPlan, error)
	TransferOwner(ctx context.Context, actor domain.Actor, planID, newTrainerID primitive.ObjectID) (*domain.TrainingPlan, error)
}

type planService struct {
	planRepo repository.TrainingPlanRepository
	userRepo repository.UserRepository
	owners   *PlanOwnerCache
}

func NewPlanService(planRepo repository.TrainingPlanRepository, userRepo repository.UserRepository, owners *PlanOwnerCache) PlanService {
	return &planService{planRepo: planRepo, userRepo: userRepo, owners: owners}
}

// CreatePlan creates an active plan owned by the calling trainer.
func (s *planService) CreatePlan(ctx context.Context, actor domain.Actor, clientID primitive.ObjectID, name, description string) (*domain.TrainingPlan, error) {
	if actor.Role != domain.RoleTrainer {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" || clientID.IsZero() {
		return nil, ErrInvalidRequest
	}
	if _, err := s.requireRole(ctx, clientID, domain.RoleClient, ErrClientNotFound); err != nil {
		return nil, err
	}

	plan := &domain.TrainingPlan{
		TrainerID:   actor.UserID,
		ClientID:    clientID,
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	if _, err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// TransferOwner hands a plan to another trainer. Only the current owner or an admin may
// do this. Requests made against the plan afterwards go to the new trainer.
func (s *planService) TransferOwner(ctx context.Context, actor domain.Actor, planID, newTrainerID primitive.ObjectID) (*domain.TrainingPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !actor.IsAdmin() && plan.TrainerID != actor.UserID {
		return nil, ErrForbidden
	}
	if _, err := s.requireRole(ctx, newTrainerID, domain.RoleTrainer, ErrTrainerNotFound); err != nil {
		return nil, err
	}

	if err := s.planRepo.UpdateTrainer(ctx, planID, newTrainerID); err != nil {
		return nil, err
	}
	s.owners.Invalidate(planID)

	logging.FromContext(ctx).Info().
		Str("plan_id", planID.Hex()).
		Str("from_trainer", plan.TrainerID.Hex()).
		Str("to_trainer", newTrainerID.Hex()).
		Msg("training plan transferred")

	plan.TrainerID = newTrainerID
	return plan, nil
}

func (s *planService) requireRole(ctx context.Context, id primitive.ObjectID, role domain.Role, notFound error) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound
		}
		return nil, err
	}
	if user.Role != role {
		return nil, ErrNotRole
	}
	return user, nil
}
