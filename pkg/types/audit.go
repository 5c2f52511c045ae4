package types

// AuditEventType identifies a class of security-relevant event.
type AuditEventType string

const (
	AuditSessionCreated     AuditEventType = "session_created"
	AuditSessionResumed     AuditEventType = "session_resumed"
	AuditSessionExpired     AuditEventType = "session_expired"
	AuditSessionInvalidated AuditEventType = "session_invalidated"
	AuditOwnershipDenied    AuditEventType = "ownership_denied"
	AuditBindingMismatch    AuditEventType = "session_binding_mismatch"
	AuditToolDenied         AuditEventType = "tool_denied"
	AuditBoundaryViolation  AuditEventType = "boundary_violation"
)

// AuditEvent is one append-only security record. Events are never mutated or
// deleted by the engine; retention is an operational concern.
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      AuditEventType `json:"type"`
	SessionID string         `json:"sessionID,omitempty"`
	UserID    string         `json:"userID,omitempty"`
	Time      int64          `json:"time"`
	Detail    map[string]any `json:"detail,omitempty"`
}
