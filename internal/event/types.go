package event

// EventType represents the type of event.
type EventType string

const (
	SessionCreated     EventType = "session.created"
	SessionResumed     EventType = "session.resumed"
	SessionInvalidated EventType = "session.invalidated"
	OwnershipDenied    EventType = "session.ownership_denied"
	ToolDenied         EventType = "tool.denied"
	BoundaryViolation  EventType = "tool.boundary_violation"
	AuditDegraded      EventType = "audit.degraded"
)

// SessionData is the payload for session lifecycle events.
type SessionData struct {
	SessionID string `json:"sessionID"`
	UserID    string `json:"userID"`
	Directory string `json:"directory,omitempty"`
}

// ToolDeniedData is the payload for tool denial events.
type ToolDeniedData struct {
	SessionID string `json:"sessionID"`
	Tool      string `json:"tool"`
	Reason    string `json:"reason"`
	Fatal     bool   `json:"fatal,omitempty"`
}

// AuditDegradedData signals that the audit sink is persistently failing.
type AuditDegradedData struct {
	ConsecutiveFailures int `json:"consecutiveFailures"`
}
