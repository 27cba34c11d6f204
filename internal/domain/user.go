package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role distinguishes what a user may do in a negotiation.
type Role string

const (
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client"
	RoleAdmin   Role = "admin" // May act on either side of any request
)

// User is anyone who can authenticate: trainers, clients and admins.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never exposed
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsTrainer() bool {
	return u.Role == RoleTrainer
}

func (u *User) IsClient() bool {
	return u.Role == RoleClient
}

// Actor is the authenticated principal applying an operation.
type Actor struct {
	UserID primitive.ObjectID
	Role   Role
}

// IsAdmin reports whether the actor bypasses party checks.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
