package mocks

import (
	"context"

	"github.com/pinbox/pinbox-api/internal/service/auth"
)

// MockJWTService implements auth.JWTService with a function field.
type MockJWTService struct {
	ValidateTokenFn func(ctx context.Context, tokenString string) (*auth.Claims, error)
}

// ValidateToken delegates to ValidateTokenFn.
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return nil, auth.ErrInvalidToken
}
