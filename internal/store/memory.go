package store

import (
	"context"
	"sync"

	"github.com/codegate-ai/codegate/pkg/types"
)

// MemSessions is an in-memory session store. It satisfies the session
// manager's store contract so the manager can be tested without touching the
// filesystem.
type MemSessions struct {
	mu       sync.Mutex
	records  map[string]types.Session
	failGets bool
	failPuts bool
}

// NewMemSessions creates an empty in-memory session store.
func NewMemSessions() *MemSessions {
	return &MemSessions{records: make(map[string]types.Session)}
}

// FailWrites makes subsequent Put calls fail with ErrUnavailable.
func (m *MemSessions) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPuts = fail
}

// FailReads makes subsequent Get calls fail with ErrUnavailable.
func (m *MemSessions) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGets = fail
}

// Put stores a copy of the record.
func (m *MemSessions) Put(ctx context.Context, sess *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts {
		return ErrUnavailable
	}
	m.records[sess.ID] = *sess
	return nil
}

// Get returns a copy of the record.
func (m *MemSessions) Get(ctx context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGets {
		return nil, ErrUnavailable
	}
	sess, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// MarkStatus transitions a record's status.
func (m *MemSessions) MarkStatus(ctx context.Context, id string, status types.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	sess.Status = status
	m.records[id] = sess
	return nil
}
