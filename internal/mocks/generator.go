package mocks

import (
	"context"
	"sync"

	"github.com/pinbox/pinbox-api/internal/generation"
)

// MockMetadataGenerator implements generation.MetadataGenerator for testing.
type MockMetadataGenerator struct {
	// GenerateMetadataFn allows test cases to mock the generation behavior.
	GenerateMetadataFn func(ctx context.Context, req generation.Request) (*generation.Result, error)

	// Default response values used when GenerateMetadataFn is nil.
	Result *generation.Result
	Err    error

	// Call tracking for verification.
	mu       sync.Mutex
	requests []generation.Request
}

// GenerateMetadata implements the generation.MetadataGenerator interface.
func (m *MockMetadataGenerator) GenerateMetadata(
	ctx context.Context,
	req generation.Request,
) (*generation.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateMetadataFn != nil {
		return m.GenerateMetadataFn(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &generation.Result{
		Tags:    []string{"mock"},
		Summary: "mock summary",
	}, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockMetadataGenerator) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}

// CallCount reports how many times GenerateMetadata was called.
func (m *MockMetadataGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
