// Package gate screens tool-call requests against the security policy
// before the agent runtime executes them. Evaluate must be called and must
// return an allow before the underlying tool effect happens; it is a
// pre-execution hook, not a post-hoc audit.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codegate-ai/codegate/internal/audit"
	"github.com/codegate-ai/codegate/internal/boundary"
	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/session"
	"github.com/codegate-ai/codegate/pkg/types"
)

// resolveTimeout bounds symlink-resolution I/O per path.
const resolveTimeout = 2 * time.Second

// Policy is the gate's configuration.
type Policy struct {
	// AllowedTools, when non-empty, restricts calls to the listed names.
	AllowedTools []string
	// DisallowedTools are denied unconditionally, before any other check.
	DisallowedTools []string
	// CommandPolicy selects strict or relaxed shell screening. Relaxed mode
	// skips only the categorical dangerous-command list; path boundaries
	// are never skippable.
	CommandPolicy types.CommandPolicy
}

// Decision is the gate's verdict for one tool call.
type Decision struct {
	Allow bool `json:"allow"`
	// Input carries a rewritten (canonicalized) input when the gate
	// normalized it; nil means execute with the original input.
	Input  map[string]any `json:"input,omitempty"`
	Reason string         `json:"reason,omitempty"`
	// Fatal signals the whole in-flight exchange should be aborted, not
	// merely this one call.
	Fatal bool `json:"fatal,omitempty"`
}

// pathTools carry a filesystem path in their input.
var pathTools = map[string]bool{
	"Read": true, "Write": true, "Edit": true, "MultiEdit": true,
	"read_file": true, "create_file": true, "edit_file": true,
	"NotebookEdit": true,
}

// shellTools execute shell command lines.
var shellTools = map[string]bool{
	"Bash": true, "bash": true, "shell": true,
}

// Gate evaluates tool-call requests. Evaluations for a single session run in
// the order they arrive; different sessions never block each other.
type Gate struct {
	policy     Policy
	audit      *audit.Recorder
	allowed    map[string]bool // nil when no allow-list is configured
	disallowed map[string]bool
	loops      *loopDetector

	mu     sync.Mutex
	evalMu map[string]*sync.Mutex // per-session evaluation ordering

	statsMu sync.Mutex
	usage   map[string]int
	denials int
}

// New creates a gate with the given policy.
func New(policy Policy, rec *audit.Recorder) *Gate {
	g := &Gate{
		policy:     policy,
		audit:      rec,
		disallowed: make(map[string]bool),
		loops:      newLoopDetector(),
		evalMu:     make(map[string]*sync.Mutex),
		usage:      make(map[string]int),
	}
	if len(policy.AllowedTools) > 0 {
		g.allowed = make(map[string]bool, len(policy.AllowedTools))
		for _, t := range policy.AllowedTools {
			g.allowed[t] = true
		}
	}
	for _, t := range policy.DisallowedTools {
		g.disallowed[t] = true
	}
	return g
}

// Evaluate screens one tool-call request for the given session.
func (g *Gate) Evaluate(ctx context.Context, req types.ToolCallRequest, sess *session.Handle) Decision {
	mu := g.sessionMu(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	// A request attributed to a different session is ownership confusion
	// severe enough to abort the whole exchange.
	if req.SessionID != "" && req.SessionID != sess.ID {
		g.recordDeny(ctx, types.AuditToolDenied, sess, req.Tool, "tool call attributed to a different session", true)
		return Decision{Reason: "tool call attributed to a different session", Fatal: true}
	}

	if req.Tool == "" {
		return g.deny(ctx, sess, req.Tool, "malformed tool request: missing tool name")
	}

	if g.disallowed[req.Tool] {
		return g.deny(ctx, sess, req.Tool, fmt.Sprintf("tool %s is disallowed by policy", req.Tool))
	}
	if g.allowed != nil && !g.allowed[req.Tool] {
		return g.deny(ctx, sess, req.Tool, fmt.Sprintf("tool %s is not in the allow-list", req.Tool))
	}

	if g.loops.check(sess.ID, req.Tool, req.Input) {
		return g.deny(ctx, sess, req.Tool, "identical tool call repeated too many times")
	}

	var decision Decision
	switch {
	case pathTools[req.Tool]:
		decision = g.evaluatePath(ctx, req, sess)
	case shellTools[req.Tool]:
		decision = g.evaluateShell(ctx, req, sess)
	default:
		decision = Decision{Allow: true}
	}

	if decision.Allow {
		g.statsMu.Lock()
		g.usage[req.Tool]++
		g.statsMu.Unlock()
	}
	return decision
}

// evaluatePath enforces the path-traversal defense: the input path must
// resolve, symlinks included, to the approved root or a descendant of it.
// On allow the input is rewritten with the canonicalized path.
func (g *Gate) evaluatePath(ctx context.Context, req types.ToolCallRequest, sess *session.Handle) Decision {
	key, raw := pathParam(req.Input)
	if raw == "" {
		return g.deny(ctx, sess, req.Tool, "malformed tool request: missing file path")
	}

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	resolved, err := boundary.Resolve(rctx, raw, sess.Directory)
	if err != nil {
		return g.deny(ctx, sess, req.Tool, fmt.Sprintf("cannot resolve path %q: %v", raw, err))
	}
	if !boundary.IsWithin(resolved, sess.ApprovedRoot) {
		g.recordDeny(ctx, types.AuditBoundaryViolation, sess, req.Tool,
			fmt.Sprintf("path %s escapes approved root", raw), false)
		return Decision{Reason: fmt.Sprintf("path %s is outside the approved directory", raw)}
	}

	input := make(map[string]any, len(req.Input))
	for k, v := range req.Input {
		input[k] = v
	}
	input[key] = resolved
	return Decision{Allow: true, Input: input}
}

// evaluateShell splits the command into simple commands and checks that
// every filesystem-modifying target stays inside the approved root.
// Read-only commands pass unchecked. Strict policy additionally denies
// categorically dangerous shapes.
func (g *Gate) evaluateShell(ctx context.Context, req types.ToolCallRequest, sess *session.Handle) Decision {
	cmdStr, _ := req.Input["command"].(string)
	if cmdStr == "" {
		return g.deny(ctx, sess, req.Tool, "malformed tool request: missing command")
	}

	cmds, err := boundary.ParseCommand(cmdStr)
	if err != nil {
		return g.deny(ctx, sess, req.Tool, fmt.Sprintf("cannot parse command: %v", err))
	}

	for _, cmd := range cmds {
		if g.policy.CommandPolicy != types.PolicyRelaxed {
			if bad, reason := boundary.Dangerous(cmd); bad {
				return g.deny(ctx, sess, req.Tool, fmt.Sprintf("dangerous command %s: %s", cmd.Name, reason))
			}
		}

		if !boundary.ModifiesFilesystem(cmd) {
			continue
		}
		for _, p := range boundary.TargetPaths(cmd) {
			rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
			resolved, err := boundary.Resolve(rctx, p, sess.Directory)
			cancel()
			if err != nil {
				return g.deny(ctx, sess, req.Tool, fmt.Sprintf("cannot resolve target %q of %s: %v", p, cmd.Name, err))
			}
			if !boundary.IsWithin(resolved, sess.ApprovedRoot) {
				g.recordDeny(ctx, types.AuditBoundaryViolation, sess, req.Tool,
					fmt.Sprintf("%s targets %s outside approved root", cmd.Name, p), false)
				return Decision{Reason: fmt.Sprintf("command %s targets %s outside the approved directory", cmd.Name, p)}
			}
		}
	}

	return Decision{Allow: true}
}

// ClearSession drops per-session gate state. Called when a session ends.
func (g *Gate) ClearSession(sessionID string) {
	g.mu.Lock()
	delete(g.evalMu, sessionID)
	g.mu.Unlock()
	g.loops.clear(sessionID)
}

// Stats summarizes tool usage and denials since startup.
type Stats struct {
	TotalCalls int            `json:"totalCalls"`
	ByTool     map[string]int `json:"byTool"`
	Denials    int            `json:"denials"`
}

// Stats returns a snapshot of gate counters.
func (g *Gate) Stats() Stats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()

	byTool := make(map[string]int, len(g.usage))
	total := 0
	for tool, n := range g.usage {
		byTool[tool] = n
		total += n
	}
	return Stats{TotalCalls: total, ByTool: byTool, Denials: g.denials}
}

func (g *Gate) sessionMu(sessionID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	mu, ok := g.evalMu[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		g.evalMu[sessionID] = mu
	}
	return mu
}

func (g *Gate) deny(ctx context.Context, sess *session.Handle, tool, reason string) Decision {
	g.recordDeny(ctx, types.AuditToolDenied, sess, tool, reason, false)
	return Decision{Reason: reason}
}

func (g *Gate) recordDeny(ctx context.Context, evType types.AuditEventType, sess *session.Handle, tool, reason string, fatal bool) {
	g.statsMu.Lock()
	g.denials++
	g.statsMu.Unlock()

	g.audit.Record(ctx, evType, sess.ID, sess.UserID, map[string]any{
		"tool":   tool,
		"reason": reason,
	})
	busType := event.ToolDenied
	if evType == types.AuditBoundaryViolation {
		busType = event.BoundaryViolation
	}
	event.Publish(event.Event{
		Type: busType,
		Data: event.ToolDeniedData{SessionID: sess.ID, Tool: tool, Reason: reason, Fatal: fatal},
	})
}

// pathParam extracts the filesystem path from a path-bearing tool's input.
func pathParam(input map[string]any) (key, value string) {
	for _, k := range []string{"file_path", "path", "notebook_path"} {
		if v, ok := input[k].(string); ok && v != "" {
			return k, v
		}
	}
	return "file_path", ""
}
