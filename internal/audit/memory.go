package audit

import (
	"context"
	"sync"

	"github.com/codegate-ai/codegate/pkg/types"
)

// MemorySink is an in-memory Sink for tests and ephemeral deployments.
type MemorySink struct {
	mu     sync.Mutex
	events []types.AuditEvent
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append adds one event.
func (m *MemorySink) Append(ctx context.Context, ev types.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Query returns events matching the filter in append order.
func (m *MemorySink) Query(ctx context.Context, f Filter) ([]types.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.AuditEvent
	for _, ev := range m.events {
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}
