package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-ai/codegate/internal/audit"
	"github.com/codegate-ai/codegate/internal/store"
	"github.com/codegate-ai/codegate/pkg/types"
)

type countingOpener struct {
	calls atomic.Int64
	delay time.Duration
}

func (o *countingOpener) OpenSession(ctx context.Context, directory string) (string, error) {
	n := o.calls.Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	return fmt.Sprintf("sess-%03d", n), nil
}

type failingOpener struct{}

func (failingOpener) OpenSession(ctx context.Context, directory string) (string, error) {
	return "", fmt.Errorf("runtime unavailable")
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *store.MemSessions, *audit.MemorySink, *countingOpener) {
	t.Helper()
	st := store.NewMemSessions()
	sink := audit.NewMemorySink()
	opener := &countingOpener{}
	m := NewManager(st, opener, audit.NewRecorder(sink), cfg, "/workspace")
	return m, st, sink, opener
}

func TestResolve_CreatesSession(t *testing.T) {
	m, st, sink, _ := newTestManager(t, Config{})
	ctx := context.Background()

	h, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "alice", h.UserID)
	assert.Equal(t, "/workspace/alice", h.Directory)
	assert.Equal(t, "/workspace", h.ApprovedRoot)

	rec, err := st.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionActive, rec.Status)
	assert.Equal(t, BindingHash("alice", "chat-1", "/workspace/alice"), rec.BindingHash)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditSessionCreated})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolve_Idempotent(t *testing.T) {
	m, _, _, opener := newTestManager(t, Config{})
	ctx := context.Background()

	h1, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)
	require.True(t, created)

	h2, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, h1.ID, h2.ID)
	assert.Equal(t, int64(1), opener.calls.Load())
}

func TestResolve_ResumeByID(t *testing.T) {
	m, _, sink, _ := newTestManager(t, Config{})
	ctx := context.Background()

	h1, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	h2, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", h1.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, h1.ID, h2.ID)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditSessionResumed})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolve_OwnershipDenied(t *testing.T) {
	m, _, sink, _ := newTestManager(t, Config{})
	ctx := context.Background()

	h, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	// Mallory presents alice's session id. The engine must refuse rather
	// than silently hand over a different session.
	_, _, err = m.Resolve(ctx, "mallory", "/workspace/alice", "chat-9", h.ID)
	require.Error(t, err)
	assert.True(t, IsOwnershipError(err))

	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	assert.Equal(t, h.ID, ownErr.SessionID)
	assert.Equal(t, "mallory", ownErr.UserID)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditOwnershipDenied})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mallory", events[0].UserID)
}

func TestResolve_BindingMismatchCreatesNew(t *testing.T) {
	m, st, sink, _ := newTestManager(t, Config{})
	ctx := context.Background()

	h1, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	// Same user, same session id, different chat context: the binding no
	// longer matches and a fresh session takes over.
	h2, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-2", h1.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, h1.ID, h2.ID)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditBindingMismatch})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// The old record is untouched in the store.
	rec, err := st.Get(ctx, h1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionActive, rec.Status)
}

func TestResolve_DirectoryOutsideRoot(t *testing.T) {
	m, _, sink, _ := newTestManager(t, Config{})
	ctx := context.Background()

	_, _, err := m.Resolve(ctx, "alice", "/etc", "chat-1", "")
	require.Error(t, err)

	var bErr *BoundaryError
	assert.ErrorAs(t, err, &bErr)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditBoundaryViolation})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolve_IdleExpiry(t *testing.T) {
	m, st, sink, _ := newTestManager(t, Config{IdleTTL: 30 * time.Millisecond})
	ctx := context.Background()

	h1, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	h2, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", h1.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, h1.ID, h2.ID)

	rec, err := st.Get(ctx, h1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionExpired, rec.Status)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditSessionExpired})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolve_MaxLifetimeExpiry(t *testing.T) {
	m, st, _, _ := newTestManager(t, Config{MaxLifetime: 30 * time.Millisecond})
	ctx := context.Background()

	h1, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// Activity does not save a session past its hard lifetime.
	_, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", h1.ID)
	require.NoError(t, err)
	assert.True(t, created)

	rec, err := st.Get(ctx, h1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionExpired, rec.Status)
}

func TestResolve_UnknownIDCreates(t *testing.T) {
	m, _, _, _ := newTestManager(t, Config{})

	h, created, err := m.Resolve(context.Background(), "alice", "/workspace/alice", "chat-1", "no-such-session")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "no-such-session", h.ID)
}

func TestResolve_SurvivesRestart(t *testing.T) {
	storage := store.New(t.TempDir())
	sessions := store.NewSessions(storage)
	sink := audit.NewMemorySink()
	ctx := context.Background()

	m1 := NewManager(sessions, &countingOpener{}, audit.NewRecorder(sink), Config{}, "/workspace")
	h1, _, err := m1.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	// A new manager over the same storage simulates a process restart.
	m2 := NewManager(sessions, &countingOpener{}, audit.NewRecorder(sink), Config{}, "/workspace")
	h2, created, err := m2.Resolve(ctx, "alice", "/workspace/alice", "chat-1", h1.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, h1.ID, h2.ID)
	assert.Equal(t, "/workspace/alice", h2.Directory)
}

func TestResolve_ConcurrentSingleCreate(t *testing.T) {
	m, _, _, opener := newTestManager(t, Config{})
	opener.delay = 10 * time.Millisecond
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
			if assert.NoError(t, err) {
				ids[i] = h.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), opener.calls.Load())
	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestResolve_WriteFailureSurfaces(t *testing.T) {
	m, st, _, _ := newTestManager(t, Config{})
	st.FailWrites(true)

	_, _, err := m.Resolve(context.Background(), "alice", "/workspace/alice", "chat-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestResolve_OpenerFailureSurfaces(t *testing.T) {
	st := store.NewMemSessions()
	m := NewManager(st, failingOpener{}, audit.NewRecorder(audit.NewMemorySink()), Config{}, "/workspace")

	_, _, err := m.Resolve(context.Background(), "alice", "/workspace/alice", "chat-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open session")
}

func TestInvalidate(t *testing.T) {
	m, st, sink, _ := newTestManager(t, Config{})
	ctx := context.Background()

	h, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	err = m.Invalidate(ctx, h.ID, "mallory")
	assert.True(t, IsOwnershipError(err))

	require.NoError(t, m.Invalidate(ctx, h.ID, "alice"))

	rec, err := st.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionInvalidated, rec.Status)

	events, err := sink.Query(ctx, audit.Filter{Type: types.AuditSessionInvalidated})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// An invalidated session is never resumed, only superseded.
	h2, created, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", h.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, h.ID, h2.ID)
}

func TestTouch(t *testing.T) {
	m, st, _, _ := newTestManager(t, Config{})
	ctx := context.Background()

	h, _, err := m.Resolve(ctx, "alice", "/workspace/alice", "chat-1", "")
	require.NoError(t, err)

	before, err := st.Get(ctx, h.ID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, m.Touch(ctx, h.ID))

	after, err := st.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Greater(t, after.Time.LastActive, before.Time.LastActive)

	st.FailWrites(true)
	assert.Error(t, m.Touch(ctx, h.ID))
}

func TestCacheEviction_DurableRecordSurvives(t *testing.T) {
	m, st, _, opener := newTestManager(t, Config{MaxPerUser: 2})
	ctx := context.Background()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		dir := filepath.Join("/workspace", fmt.Sprintf("proj-%d", i))
		h, _, err := m.Resolve(ctx, "alice", dir, fmt.Sprintf("chat-%d", i), "")
		require.NoError(t, err)
		handles = append(handles, h)
		time.Sleep(2 * time.Millisecond)
	}

	// The least recently active session was evicted from the cache but its
	// durable record is still active and resumable by id.
	rec, err := st.Get(ctx, handles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionActive, rec.Status)

	h, created, err := m.Resolve(ctx, "alice", "/workspace/proj-0", "chat-0", handles[0].ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, handles[0].ID, h.ID)
	assert.Equal(t, int64(3), opener.calls.Load())
}

func TestCacheEviction_IdleVictimExpired(t *testing.T) {
	m, st, _, _ := newTestManager(t, Config{MaxPerUser: 1, IdleTTL: 10 * time.Millisecond})
	ctx := context.Background()

	h1, _, err := m.Resolve(ctx, "alice", "/workspace/proj-0", "chat-0", "")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, _, err = m.Resolve(ctx, "alice", "/workspace/proj-1", "chat-1", "")
	require.NoError(t, err)

	rec, err := st.Get(ctx, h1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionExpired, rec.Status)
}

func TestResolve_IsolatedPerUser(t *testing.T) {
	m, _, _, _ := newTestManager(t, Config{})
	ctx := context.Background()

	hAlice, _, err := m.Resolve(ctx, "alice", "/workspace/shared", "chat-1", "")
	require.NoError(t, err)
	hBob, _, err := m.Resolve(ctx, "bob", "/workspace/shared", "chat-1", "")
	require.NoError(t, err)

	assert.NotEqual(t, hAlice.ID, hBob.ID)
}
