package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/david/recovery-match/internal/models"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         models.Role `json:"role"`
	SurvivorID   *uuid.UUID  `json:"survivor_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
