package types

// ToolCallRequest is a single action the agent runtime wants to perform.
// Requests are ephemeral: consumed exactly once by the gate and discarded
// after the decision.
type ToolCallRequest struct {
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
	SessionID string         `json:"sessionID,omitempty"`
}
