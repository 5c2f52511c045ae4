// Package session maintains per-user, per-directory conversational session
// state across restarts and concurrent exchanges.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/codegate-ai/codegate/internal/audit"
	"github.com/codegate-ai/codegate/internal/boundary"
	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/store"
	"github.com/codegate-ai/codegate/pkg/types"
)

// Store is the durable persistence contract consumed by the manager. The
// durable record is the source of truth after a restart; the in-memory cache
// is rebuilt lazily from it.
type Store interface {
	Put(ctx context.Context, sess *types.Session) error
	Get(ctx context.Context, id string) (*types.Session, error)
	MarkStatus(ctx context.Context, id string, status types.SessionStatus) error
}

// Opener asks the agent runtime for a fresh session with no resume token.
// The runtime assigns the session id on its first response; ids are never
// client-generated.
type Opener interface {
	OpenSession(ctx context.Context, directory string) (string, error)
}

// Config holds session lifecycle settings.
type Config struct {
	// IdleTTL expires sessions idle longer than this. Zero disables.
	IdleTTL time.Duration
	// MaxLifetime expires sessions past this age regardless of activity.
	// Zero disables.
	MaxLifetime time.Duration
	// MaxPerUser bounds the number of cached sessions per user.
	MaxPerUser int
}

// Handle is an immutable view of a resolved session handed to the gate and
// the orchestrator.
type Handle struct {
	ID           string
	UserID       string
	ChatContext  string
	Directory    string
	ApprovedRoot string
}

type entry struct {
	rec types.Session
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Manager owns the in-memory session cache and orchestrates load, create,
// expiry and eviction against the durable store.
type Manager struct {
	store        Store
	opener       Opener
	audit        *audit.Recorder
	cfg          Config
	approvedRoot string

	mu        sync.Mutex
	cache     map[string]*entry  // session id -> record
	byBinding map[string]string  // binding hash -> session id
	keys      map[string]*keyLock // (user, directory) -> resolve serialization
}

// NewManager creates a session manager.
func NewManager(st Store, opener Opener, rec *audit.Recorder, cfg Config, approvedRoot string) *Manager {
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 5
	}
	return &Manager{
		store:        st,
		opener:       opener,
		audit:        rec,
		cfg:          cfg,
		approvedRoot: filepath.Clean(approvedRoot),
		cache:        make(map[string]*entry),
		byBinding:    make(map[string]string),
		keys:         make(map[string]*keyLock),
	}
}

// Resolve returns a usable session handle for the given context, creating a
// fresh session through the agent runtime when no existing one can be
// resumed. Resolution for the same (user, directory) key is serialized so
// concurrent requests cannot race to create divergent sessions; different
// keys proceed independently.
func (m *Manager) Resolve(ctx context.Context, userID, directory, chatContext, sessionID string) (*Handle, bool, error) {
	directory = filepath.Clean(directory)
	if !boundary.IsWithin(directory, m.approvedRoot) {
		m.audit.Record(ctx, types.AuditBoundaryViolation, "", userID, map[string]any{
			"directory": directory,
		})
		return nil, false, &BoundaryError{Directory: directory, Root: m.approvedRoot}
	}

	unlock := m.lockKey(userID + "\x00" + directory)
	defer unlock()

	bindingHash := BindingHash(userID, chatContext, directory)

	if sessionID == "" {
		m.mu.Lock()
		sessionID = m.byBinding[bindingHash]
		m.mu.Unlock()
	}

	if sessionID != "" {
		rec, err := m.lookup(ctx, sessionID)
		switch {
		case err == nil:
			if rec.UserID != userID {
				m.audit.Record(ctx, types.AuditOwnershipDenied, sessionID, userID, map[string]any{
					"owner": rec.UserID,
				})
				event.Publish(event.Event{
					Type: event.OwnershipDenied,
					Data: event.SessionData{SessionID: sessionID, UserID: userID},
				})
				return nil, false, &OwnershipError{SessionID: sessionID, UserID: userID}
			}

			switch {
			case rec.Status != types.SessionActive:
				// Invalidated or expired sessions are never resumed, only
				// superseded.
				m.dropCached(rec)
			case m.expired(rec):
				if err := m.expire(ctx, rec); err != nil {
					return nil, false, err
				}
			case rec.BindingHash != bindingHash:
				m.audit.Record(ctx, types.AuditBindingMismatch, sessionID, userID, map[string]any{
					"chatContext": chatContext,
					"directory":   directory,
				})
				m.dropCached(rec)
			default:
				rec.Time.LastActive = time.Now().UnixMilli()
				if err := m.store.Put(ctx, rec); err != nil {
					return nil, false, fmt.Errorf("persist session: %w", err)
				}
				victims := m.cachePut(rec)
				m.expireEvicted(ctx, victims)
				m.audit.Record(ctx, types.AuditSessionResumed, rec.ID, userID, nil)
				event.Publish(event.Event{
					Type: event.SessionResumed,
					Data: event.SessionData{SessionID: rec.ID, UserID: userID, Directory: directory},
				})
				return m.handle(rec), false, nil
			}
		case errors.Is(err, store.ErrNotFound):
			// Unknown id: fall through to creation.
		default:
			return nil, false, err
		}
	}

	return m.create(ctx, userID, directory, chatContext, bindingHash)
}

func (m *Manager) create(ctx context.Context, userID, directory, chatContext, bindingHash string) (*Handle, bool, error) {
	id, err := m.opener.OpenSession(ctx, directory)
	if err != nil {
		return nil, false, fmt.Errorf("open session: %w", err)
	}

	now := time.Now().UnixMilli()
	rec := &types.Session{
		ID:          id,
		UserID:      userID,
		ChatContext: chatContext,
		Directory:   directory,
		BindingHash: bindingHash,
		Status:      types.SessionActive,
		Time:        types.SessionTime{Created: now, LastActive: now},
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("persist session: %w", err)
	}
	victims := m.cachePut(rec)
	m.expireEvicted(ctx, victims)

	m.audit.Record(ctx, types.AuditSessionCreated, id, userID, map[string]any{
		"directory": directory,
	})
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionData{SessionID: id, UserID: userID, Directory: directory},
	})
	logging.Info().Str("session", id).Str("user", userID).Str("directory", directory).Msg("session created")

	return m.handle(rec), true, nil
}

// Invalidate explicitly terminates a session after re-checking ownership.
func (m *Manager) Invalidate(ctx context.Context, sessionID, userID string) error {
	rec, err := m.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		m.audit.Record(ctx, types.AuditOwnershipDenied, sessionID, userID, map[string]any{
			"owner":     rec.UserID,
			"operation": "invalidate",
		})
		return &OwnershipError{SessionID: sessionID, UserID: userID}
	}

	if err := m.store.MarkStatus(ctx, sessionID, types.SessionInvalidated); err != nil {
		return err
	}
	m.dropCached(rec)

	m.audit.Record(ctx, types.AuditSessionInvalidated, sessionID, userID, nil)
	event.Publish(event.Event{
		Type: event.SessionInvalidated,
		Data: event.SessionData{SessionID: sessionID, UserID: userID},
	})
	return nil
}

// Touch records activity on a session and persists the updated record. A
// failed write surfaces even when the exchange otherwise succeeded, since
// losing session continuity is a correctness issue.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	rec, err := m.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Time.LastActive = time.Now().UnixMilli()
	if err := m.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.mu.Lock()
	if e, ok := m.cache[rec.ID]; ok {
		e.rec = *rec
	}
	m.mu.Unlock()
	return nil
}

// lockKey serializes resolve-or-create per (user, directory) key. The lock
// entry is reference-counted so the map does not grow without bound.
func (m *Manager) lockKey(key string) func() {
	m.mu.Lock()
	kl, ok := m.keys[key]
	if !ok {
		kl = &keyLock{}
		m.keys[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		m.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(m.keys, key)
		}
		m.mu.Unlock()
	}
}

// lookup checks the cache first, then the durable store.
func (m *Manager) lookup(ctx context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	if e, ok := m.cache[id]; ok {
		rec := e.rec
		m.mu.Unlock()
		return &rec, nil
	}
	m.mu.Unlock()
	return m.store.Get(ctx, id)
}

// cachePut caches the record and enforces the per-user bound, returning the
// evicted records. Durable records of evicted sessions remain in the store.
func (m *Manager) cachePut(rec *types.Session) []types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[rec.ID] = &entry{rec: *rec}
	m.byBinding[rec.BindingHash] = rec.ID

	var owned []*types.Session
	for _, e := range m.cache {
		if e.rec.UserID == rec.UserID {
			owned = append(owned, &e.rec)
		}
	}
	var victims []types.Session
	for len(owned) > m.cfg.MaxPerUser {
		oldest := -1
		for i, s := range owned {
			if s.ID == rec.ID {
				continue
			}
			if oldest == -1 || s.Time.LastActive < owned[oldest].Time.LastActive {
				oldest = i
			}
		}
		if oldest == -1 {
			break
		}
		victim := *owned[oldest]
		owned = append(owned[:oldest], owned[oldest+1:]...)
		delete(m.cache, victim.ID)
		if m.byBinding[victim.BindingHash] == victim.ID {
			delete(m.byBinding, victim.BindingHash)
		}
		victims = append(victims, victim)
	}
	return victims
}

// expireEvicted marks evicted sessions expired in the store when they are
// already idle past the TTL; otherwise their durable records stay active and
// reloadable.
func (m *Manager) expireEvicted(ctx context.Context, victims []types.Session) {
	for _, v := range victims {
		if m.expired(&v) {
			if err := m.store.MarkStatus(ctx, v.ID, types.SessionExpired); err != nil {
				logging.Warn().Err(err).Str("session", v.ID).Msg("failed to expire evicted session")
			}
		}
	}
}

func (m *Manager) dropCached(rec *types.Session) {
	m.mu.Lock()
	delete(m.cache, rec.ID)
	if m.byBinding[rec.BindingHash] == rec.ID {
		delete(m.byBinding, rec.BindingHash)
	}
	m.mu.Unlock()
}

func (m *Manager) expired(rec *types.Session) bool {
	now := time.Now()
	if m.cfg.IdleTTL > 0 && now.Sub(time.UnixMilli(rec.Time.LastActive)) > m.cfg.IdleTTL {
		return true
	}
	if m.cfg.MaxLifetime > 0 && now.Sub(time.UnixMilli(rec.Time.Created)) > m.cfg.MaxLifetime {
		return true
	}
	return false
}

func (m *Manager) expire(ctx context.Context, rec *types.Session) error {
	if err := m.store.MarkStatus(ctx, rec.ID, types.SessionExpired); err != nil {
		return err
	}
	m.dropCached(rec)
	m.audit.Record(ctx, types.AuditSessionExpired, rec.ID, rec.UserID, nil)
	return nil
}

func (m *Manager) handle(rec *types.Session) *Handle {
	return &Handle{
		ID:           rec.ID,
		UserID:       rec.UserID,
		ChatContext:  rec.ChatContext,
		Directory:    rec.Directory,
		ApprovedRoot: m.approvedRoot,
	}
}
