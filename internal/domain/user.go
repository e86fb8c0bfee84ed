package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user. Customers are created automatically from
// checkout emails; the admin user is seeded at startup.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash, never serialized
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User roles.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// LoginRequest is the validated input for logging in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// LoginResponse is the API response after successful login.
type LoginResponse struct {
	Token string    `json:"token"`
	User  LoginUser `json:"user"`
}

// LoginUser is the user info returned after login.
type LoginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateUserRequest is the validated input for creating a user.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=customer admin"`
}

// UserResponse is the safe API response for a user (no password).
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewID generates a new UUID string for any record.
func NewID() string {
	return uuid.New().String()
}
