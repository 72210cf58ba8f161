package auth

import (
	"strings"
	"time"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Password string  `json:"password" validate:"required,min=6,max=128"`
	FullName *string `json:"full_name,omitempty"`
}

// Normalize lower-cases the identifying fields.
func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.ToLower(strings.TrimSpace(r.Username))
}

// LoginRequest accepts either the username or the email as Username.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UserResponse is returned by registration and embedded in events.
type UserResponse struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	FullName *string `json:"full_name"`
}

type MeResponse struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	FullName *string `json:"full_name"`
}

// ToUserResponse renders u without credentials.
func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:       u.ID.Hex(),
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
	}
}
