package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/fnindex/pkg/eventstream"
)

// ErrMockPublish is returned by MockPublisher when FailPublish is set.
var ErrMockPublish = errors.New("mock publish failure")

// MockPublisher is a test eventstream publisher that records events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.FunctionEvent

	// FailPublish causes Publish to return ErrMockPublish.
	FailPublish bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event *eventstream.FunctionEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPublish {
		return ErrMockPublish
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockPublisher) Events() []*eventstream.FunctionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.FunctionEvent(nil), m.events...)
}

// EventTypes returns the recorded event types in publish order.
func (m *MockPublisher) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, ev := range m.events {
		types[i] = ev.EventType
	}
	return types
}

func (m *MockPublisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*MockPublisher)(nil)
