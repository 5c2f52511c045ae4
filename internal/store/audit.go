package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/codegate-ai/codegate/internal/audit"
	"github.com/codegate-ai/codegate/pkg/types"
)

// AuditLog is the durable audit.Sink. Events are append-only files named by
// their ULID, so lexical order is chronological order.
type AuditLog struct {
	storage *Storage
}

// NewAuditLog creates an audit log over storage.
func NewAuditLog(storage *Storage) *AuditLog {
	return &AuditLog{storage: storage}
}

// Append writes one event.
func (a *AuditLog) Append(ctx context.Context, ev types.AuditEvent) error {
	if err := a.storage.Put(ctx, []string{"audit", ev.ID}, ev); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Query scans the log and returns matching events in chronological order.
func (a *AuditLog) Query(ctx context.Context, f audit.Filter) ([]types.AuditEvent, error) {
	var events []types.AuditEvent
	err := a.storage.Scan(ctx, []string{"audit"}, func(key string, data json.RawMessage) error {
		var ev types.AuditEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		if f.Matches(ev) {
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}
