// Package engine wires the session manager and tool gate into the two
// interfaces exposed to the orchestrator: session resolution and the
// per-exchange pre-execution tool hook.
package engine

import (
	"context"

	"github.com/codegate-ai/codegate/internal/audit"
	"github.com/codegate-ai/codegate/internal/gate"
	"github.com/codegate-ai/codegate/internal/session"
	"github.com/codegate-ai/codegate/pkg/types"
)

// Hook is the callback the orchestrator installs as the agent runtime's
// pre-execution hook for the duration of one exchange. The runtime must not
// execute a tool before the hook returns an allow.
type Hook func(ctx context.Context, tool string, input map[string]any) gate.Decision

// Engine is the session and tool-access control engine.
type Engine struct {
	sessions *session.Manager
	gate     *gate.Gate
	audit    *audit.Recorder
}

// New assembles an engine from configuration and the injected collaborators.
func New(cfg *types.Config, st session.Store, sink audit.Sink, opener session.Opener) *Engine {
	rec := audit.NewRecorder(sink)

	mgr := session.NewManager(st, opener, rec, session.Config{
		IdleTTL:     cfg.IdleTTL(),
		MaxLifetime: cfg.MaxLifetime(),
		MaxPerUser:  cfg.MaxSessionsPerUser,
	}, cfg.ApprovedRoot)

	g := gate.New(gate.Policy{
		AllowedTools:    cfg.AllowedTools,
		DisallowedTools: cfg.DisallowedTools,
		CommandPolicy:   cfg.CommandPolicy,
	}, rec)

	return &Engine{sessions: mgr, gate: g, audit: rec}
}

// ResolveSession returns a usable session handle, creating a new session
// when none can be resumed. created reports whether a fresh session was
// opened.
func (e *Engine) ResolveSession(ctx context.Context, userID, directory, chatContext, sessionID string) (*session.Handle, bool, error) {
	return e.sessions.Resolve(ctx, userID, directory, chatContext, sessionID)
}

// ToolGate returns the pre-execution hook for one exchange on the given
// session.
func (e *Engine) ToolGate(h *session.Handle) Hook {
	return func(ctx context.Context, tool string, input map[string]any) gate.Decision {
		return e.gate.Evaluate(ctx, types.ToolCallRequest{
			Tool:      tool,
			Input:     input,
			SessionID: h.ID,
		}, h)
	}
}

// Evaluate screens a fully-formed tool-call request for the given session.
func (e *Engine) Evaluate(ctx context.Context, req types.ToolCallRequest, h *session.Handle) gate.Decision {
	return e.gate.Evaluate(ctx, req, h)
}

// Invalidate explicitly terminates a session after re-checking ownership,
// and drops the gate's per-session state.
func (e *Engine) Invalidate(ctx context.Context, sessionID, userID string) error {
	if err := e.sessions.Invalidate(ctx, sessionID, userID); err != nil {
		return err
	}
	e.gate.ClearSession(sessionID)
	return nil
}

// Touch persists updated session activity after an exchange completes.
func (e *Engine) Touch(ctx context.Context, sessionID string) error {
	return e.sessions.Touch(ctx, sessionID)
}

// AuditTrail queries the audit record.
func (e *Engine) AuditTrail(ctx context.Context, f audit.Filter) ([]types.AuditEvent, error) {
	return e.audit.Query(ctx, f)
}

// GateStats returns tool usage and denial counters.
func (e *Engine) GateStats() gate.Stats {
	return e.gate.Stats()
}
