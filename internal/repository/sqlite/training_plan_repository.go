package sqlite

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"database/sql"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrainingPlanRepository implements repository.TrainingPlanRepository using SQLite
type TrainingPlanRepository struct {
	db *DB
}

// NewTrainingPlanRepository creates a new SQLite training plan repository
func NewTrainingPlanRepository(db *DB) repository.TrainingPlanRepository {
	return &TrainingPlanRepository{db: db}
}

func (r *TrainingPlanRepository) Create(ctx context.Context, plan *domain.TrainingPlan) (primitive.ObjectID, error) {
	if plan.ClientID.IsZero() || plan.TrainerID.IsZero() || plan.Name == "" {
		return primitive.NilObjectID, errors.New("plan requires clientId, trainerId, and name")
	}
	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO training_plans (id, trainer_id, client_id, name, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID.Hex(), plan.TrainerID.Hex(), plan.ClientID.Hex(), plan.Name, plan.Description,
		plan.IsActive, formatTime(now), formatTime(now))
	if err != nil {
		return primitive.NilObjectID, mapError(err)
	}
	return plan.ID, nil
}

func (r *TrainingPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error) {
	var (
		plan                        domain.TrainingPlan
		planID, trainerID, clientID string
		createdAt, updatedAt        sql.NullString
	)
	err := r.db.db.QueryRowContext(ctx,
		`SELECT id, trainer_id, client_id, name, description, is_active, created_at, updated_at
		FROM training_plans WHERE id = ?`, id.Hex()).
		Scan(&planID, &trainerID, &clientID, &plan.Name, &plan.Description, &plan.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	plan.ID = parseID(planID)
	plan.TrainerID = parseID(trainerID)
	plan.ClientID = parseID(clientID)
	plan.CreatedAt = parseTime(createdAt)
	plan.UpdatedAt = parseTime(updatedAt)
	return &plan, nil
}

// UpdateTrainer hands the plan over to another trainer.
func (r *TrainingPlanRepository) UpdateTrainer(ctx context.Context, id, trainerID primitive.ObjectID) error {
	res, err := r.db.db.ExecContext(ctx,
		`UPDATE training_plans SET trainer_id = ?, updated_at = ? WHERE id = ?`,
		trainerID.Hex(), formatTime(time.Now()), id.Hex())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}
