// Package types provides the core data types for the codegate engine.
package types

// SessionStatus is the lifecycle state of a session record.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionExpired     SessionStatus = "expired"
	SessionInvalidated SessionStatus = "invalidated"
)

// Session binds a user, a working directory and a conversational context to
// the agent runtime's continuity state. The id is assigned by the runtime on
// the first exchange, never by the client.
type Session struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userID"`
	ChatContext string        `json:"chatContext"`
	Directory   string        `json:"directory"`
	BindingHash string        `json:"bindingHash"`
	Status      SessionStatus `json:"status"`
	Time        SessionTime   `json:"time"`
}

// SessionTime contains session timestamps in Unix milliseconds.
type SessionTime struct {
	Created    int64 `json:"created"`
	LastActive int64 `json:"lastActive"`
}
