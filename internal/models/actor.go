package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleAdmin       Role = "admin"
	RoleCaseManager Role = "case_manager"
	RoleUser        Role = "user"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleSuperAdmin, RoleAdmin, RoleCaseManager, RoleUser:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Actor is the user performing an operation, resolved from the user directory.
type Actor struct {
	UserID     uuid.UUID  `json:"user_id"`
	Role       Role       `json:"role"`
	SurvivorID *uuid.UUID `json:"survivor_id,omitempty"` // profile owned by this user, if any
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// IsStaff covers everyone who works cases on behalf of survivors.
func (a Actor) IsStaff() bool {
	return a.IsAdmin() || a.Role == RoleCaseManager
}

// Owns reports whether the actor is the applicant behind survivorID.
func (a Actor) Owns(survivorID uuid.UUID) bool {
	return a.SurvivorID != nil && *a.SurvivorID == survivorID
}
