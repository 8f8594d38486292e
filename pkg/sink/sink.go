// Package sink provides the downstream event-capture surface the import
// pipeline emits into. Capture is fire-and-forget: the job runner never
// inspects a return value, so a sink must absorb its own failures.
package sink

import (
	"context"
	"sync"

	"github.com/crestline-io/snowcap/pkg/models"
)

// Sink accepts transformed events.
type Sink interface {
	Capture(ctx context.Context, event *models.Event)
}

// Memory is an in-process sink that records captured events, used in tests.
type Memory struct {
	mu     sync.Mutex
	events []*models.Event
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Capture stores the event.
func (m *Memory) Capture(_ context.Context, event *models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of everything captured so far.
func (m *Memory) Events() []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Event, len(m.events))
	copy(out, m.events)
	return out
}
