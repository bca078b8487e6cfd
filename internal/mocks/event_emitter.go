package mocks

import (
	"context"
	"sync"

	"github.com/pinbox/pinbox-api/internal/events"
)

// MockEventEmitter implements events.EventEmitter and records every emitted
// event for assertions.
type MockEventEmitter struct {
	// EmitEventFn allows test cases to mock the emit behavior.
	EmitEventFn func(ctx context.Context, event *events.TaskRequestEvent) error

	Err error

	mu     sync.Mutex
	events []*events.TaskRequestEvent
}

// EmitEvent records the event and returns the configured result.
func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	if m.EmitEventFn != nil {
		return m.EmitEventFn(ctx, event)
	}
	return m.Err
}

// Events returns a copy of every event emitted so far.
func (m *MockEventEmitter) Events() []*events.TaskRequestEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*events.TaskRequestEvent(nil), m.events...)
}

// EventCount reports how many events were emitted.
func (m *MockEventEmitter) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
