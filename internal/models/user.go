package models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a portal operator who can sign in to the admin area
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
