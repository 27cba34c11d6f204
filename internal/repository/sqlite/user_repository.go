package sqlite

import (
	"alcyxob/session-booking/internal/domain"
	"alcyxob/session-booking/internal/repository"
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository implements repository.UserRepository using SQLite
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(db *DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.PasswordHash == "" || user.Role == "" {
		return primitive.NilObjectID, errors.New("user email, password hash, and role are required")
	}
	user.ID = primitive.NewObjectID()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID.Hex(), user.Name, user.Email, user.PasswordHash, string(user.Role), formatTime(now), formatTime(now))
	if err != nil {
		return primitive.NilObjectID, mapError(err)
	}
	return user.ID, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.getOne(ctx, `id = ?`, id.Hex())
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	var (
		user                 domain.User
		id, role             string
		createdAt, updatedAt sql.NullString
	)
	err := r.db.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, created_at, updated_at FROM users WHERE `+where, arg).
		Scan(&id, &user.Name, &user.Email, &user.PasswordHash, &role, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	user.ID = parseID(id)
	user.Role = domain.Role(role)
	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)
	return &user, nil
}
