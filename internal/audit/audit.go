// Package audit records security-relevant engine events. The trail is
// append-only; the engine never mutates or deletes past events.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/pkg/types"
)

// Filter selects audit events. Zero-value fields match everything.
type Filter struct {
	SessionID string
	UserID    string
	Type      types.AuditEventType
	Since     int64 // Unix milliseconds, inclusive
}

// Matches reports whether ev passes the filter.
func (f Filter) Matches(ev types.AuditEvent) bool {
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.Since != 0 && ev.Time < f.Since {
		return false
	}
	return true
}

// Sink is the narrow persistence contract for audit events.
type Sink interface {
	Append(ctx context.Context, ev types.AuditEvent) error
	Query(ctx context.Context, f Filter) ([]types.AuditEvent, error)
}

// alertThreshold is the number of consecutive append failures after which
// the recorder raises an operational alert.
const alertThreshold = 5

// Recorder writes audit events best-effort relative to the main transaction:
// append failures are logged and counted but never block or fail the request
// path. Persistent failure escalates through the event bus.
type Recorder struct {
	sink Sink

	mu       sync.Mutex
	failures int
}

// NewRecorder creates a Recorder over sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record appends one event, assigning it an id and timestamp.
func (r *Recorder) Record(ctx context.Context, evType types.AuditEventType, sessionID, userID string, detail map[string]any) {
	ev := types.AuditEvent{
		ID:        ulid.Make().String(),
		Type:      evType,
		SessionID: sessionID,
		UserID:    userID,
		Time:      time.Now().UnixMilli(),
		Detail:    detail,
	}

	if err := r.sink.Append(ctx, ev); err != nil {
		r.mu.Lock()
		r.failures++
		n := r.failures
		r.mu.Unlock()

		logging.Error().Err(err).Str("type", string(evType)).Msg("audit append failed")
		if n == alertThreshold {
			logging.Error().Int("consecutiveFailures", n).Msg("audit sink persistently failing")
			event.Publish(event.Event{
				Type: event.AuditDegraded,
				Data: event.AuditDegradedData{ConsecutiveFailures: n},
			})
		}
		return
	}

	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()
}

// Query returns events matching the filter.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]types.AuditEvent, error) {
	return r.sink.Query(ctx, f)
}
