package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID             primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Username       string             `json:"username" bson:"username"`
	Email          string             `json:"email" bson:"email"`
	Phone          string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Password       string             `json:"-" bson:"password"`
	Role           Role               `json:"role" bson:"role"`
	Active         bool               `json:"active" bson:"active"`
	SessionVersion int                `json:"-" bson:"session_version"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}

type UserProfileUpdate struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,min=8,max=20"`
	Password string `json:"password" validate:"required"`
}
