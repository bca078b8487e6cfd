package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService verifies bearer tokens presented to the API. Tokens are issued
// by an external identity service; this service only validates them.
type JWTService interface {
	// ValidateToken validates a JWT access token and returns the claims
	// if valid.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims holds the verified claims extracted from a valid token.
type Claims struct {
	UserID    uuid.UUID
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
