package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codegate-ai/codegate/pkg/types"
)

// Sessions persists session records through the JSON storage layer, keyed by
// session id. Writes to one record are serialized in-process so the
// read-modify-write in MarkStatus cannot interleave with a concurrent Put.
type Sessions struct {
	storage *Storage

	mu   sync.Mutex
	byID map[string]*sync.Mutex
}

// NewSessions creates a session store over storage.
func NewSessions(storage *Storage) *Sessions {
	return &Sessions{storage: storage, byID: make(map[string]*sync.Mutex)}
}

// Put writes a session record. Write failures are surfaced, never dropped:
// losing session continuity is a correctness issue even when the exchange
// otherwise succeeded.
func (s *Sessions) Put(ctx context.Context, sess *types.Session) error {
	mu := s.idLock(sess.ID)
	mu.Lock()
	defer mu.Unlock()
	return s.put(ctx, sess)
}

// Get loads a session record. Transient read failures are retried with
// bounded exponential backoff before ErrUnavailable surfaces.
func (s *Sessions) Get(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	op := func() error {
		err := s.storage.Get(ctx, []string{"session", id}, &sess)
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &sess, nil
}

// MarkStatus transitions a session record to the given status. The read and
// the write happen under the record's lock, so a concurrent Put cannot slip
// between them.
func (s *Sessions) MarkStatus(ctx context.Context, id string, status types.SessionStatus) error {
	mu := s.idLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = status
	return s.put(ctx, sess)
}

func (s *Sessions) put(ctx context.Context, sess *types.Session) error {
	if err := s.storage.Put(ctx, []string{"session", sess.ID}, sess); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Sessions) idLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.byID[id]
	if !ok {
		mu = &sync.Mutex{}
		s.byID[id] = mu
	}
	return mu
}
