package mocks

import (
	"context"

	"github.com/google/uuid"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/service"
)

// MockCardService implements service.CardService with function fields.
type MockCardService struct {
	SaveCardFn     func(ctx context.Context, ownerID uuid.UUID, input service.SaveCardInput) (*domain.Card, error)
	RegenerateAIFn func(ctx context.Context, ownerID, cardID uuid.UUID) error
	GetCardFn      func(ctx context.Context, ownerID, cardID uuid.UUID) (*domain.Card, error)
	DeleteCardFn   func(ctx context.Context, ownerID, cardID uuid.UUID) error
}

// SaveCard delegates to SaveCardFn.
func (m *MockCardService) SaveCard(
	ctx context.Context,
	ownerID uuid.UUID,
	input service.SaveCardInput,
) (*domain.Card, error) {
	if m.SaveCardFn != nil {
		return m.SaveCardFn(ctx, ownerID, input)
	}
	return nil, service.ErrCardNotFound
}

// RegenerateAI delegates to RegenerateAIFn.
func (m *MockCardService) RegenerateAI(ctx context.Context, ownerID, cardID uuid.UUID) error {
	if m.RegenerateAIFn != nil {
		return m.RegenerateAIFn(ctx, ownerID, cardID)
	}
	return service.ErrCardNotFound
}

// GetCard delegates to GetCardFn.
func (m *MockCardService) GetCard(
	ctx context.Context,
	ownerID, cardID uuid.UUID,
) (*domain.Card, error) {
	if m.GetCardFn != nil {
		return m.GetCardFn(ctx, ownerID, cardID)
	}
	return nil, service.ErrCardNotFound
}

// DeleteCard delegates to DeleteCardFn.
func (m *MockCardService) DeleteCard(ctx context.Context, ownerID, cardID uuid.UUID) error {
	if m.DeleteCardFn != nil {
		return m.DeleteCardFn(ctx, ownerID, cardID)
	}
	return service.ErrCardNotFound
}
