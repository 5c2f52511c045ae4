package types

import "time"

// CommandPolicy controls how shell commands are screened.
type CommandPolicy string

const (
	// PolicyStrict additionally denies categorically dangerous command
	// shapes (elevation, recursive force-delete, world-writable permission
	// changes, raw network listeners).
	PolicyStrict CommandPolicy = "strict"
	// PolicyRelaxed skips the categorical check for callers that run tools
	// inside an OS-level sandbox. Path boundary checks still apply.
	PolicyRelaxed CommandPolicy = "relaxed"
)

// Config is the engine configuration.
type Config struct {
	// ApprovedRoot is the filesystem boundary outside of which no session
	// may read or write. Required, absolute.
	ApprovedRoot string `json:"approvedRoot"`

	// AllowedTools, when non-empty, restricts tool calls to the listed
	// names. Empty means all tools are permitted subject to the remaining
	// checks.
	AllowedTools []string `json:"allowedTools,omitempty"`
	// DisallowedTools are denied unconditionally.
	DisallowedTools []string `json:"disallowedTools,omitempty"`

	CommandPolicy CommandPolicy `json:"commandPolicy,omitempty"`

	// SessionIdleTTLMinutes expires sessions idle longer than this.
	SessionIdleTTLMinutes int `json:"sessionIdleTTLMinutes,omitempty"`
	// SessionMaxLifetimeMinutes expires sessions past this age regardless
	// of activity.
	SessionMaxLifetimeMinutes int `json:"sessionMaxLifetimeMinutes,omitempty"`
	// MaxSessionsPerUser bounds the in-memory cache per user.
	MaxSessionsPerUser int `json:"maxSessionsPerUser,omitempty"`

	StoragePath string       `json:"storagePath,omitempty"`
	Server      ServerConfig `json:"server,omitempty"`
	LogLevel    string       `json:"logLevel,omitempty"`
}

// ServerConfig configures the HTTP surface exposed to the orchestrator.
type ServerConfig struct {
	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// IdleTTL returns the idle expiry as a duration, zero when unset.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

// MaxLifetime returns the hard lifetime cap as a duration, zero when unset.
func (c *Config) MaxLifetime() time.Duration {
	return time.Duration(c.SessionMaxLifetimeMinutes) * time.Minute
}
