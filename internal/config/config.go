// Package config loads engine configuration from files and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/codegate-ai/codegate/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
//  1. Global config (~/.config/codegate/)
//  2. Project config (<directory>/codegate.json[c])
//  3. CODEGATE_CONFIG file
//  4. Environment variables
func Load(directory string) (*types.Config, error) {
	cfg := defaults()

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadConfigFile(path, cfg) == nil {
			loaded[absPath] = true
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		globalDir := filepath.Join(home, ".config", "codegate")
		loadOnce(filepath.Join(globalDir, "codegate.json"))
		loadOnce(filepath.Join(globalDir, "codegate.jsonc"))
	}

	if directory != "" {
		loadOnce(filepath.Join(directory, "codegate.json"))
		loadOnce(filepath.Join(directory, "codegate.jsonc"))
	}

	if configPath := os.Getenv("CODEGATE_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *types.Config {
	return &types.Config{
		CommandPolicy:             types.PolicyStrict,
		SessionIdleTTLMinutes:     240,
		SessionMaxLifetimeMinutes: 7 * 24 * 60,
		MaxSessionsPerUser:        5,
		Server: types.ServerConfig{
			Hostname: "127.0.0.1",
			Port:     8765,
		},
		LogLevel: "INFO",
	}
}

// loadConfigFile loads a single JSONC config file with {env:VAR}
// interpolation.
func loadConfigFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileCfg types.Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	merge(cfg, &fileCfg)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR_NAME} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func merge(dst, src *types.Config) {
	if src.ApprovedRoot != "" {
		dst.ApprovedRoot = src.ApprovedRoot
	}
	if len(src.AllowedTools) > 0 {
		dst.AllowedTools = src.AllowedTools
	}
	if len(src.DisallowedTools) > 0 {
		dst.DisallowedTools = src.DisallowedTools
	}
	if src.CommandPolicy != "" {
		dst.CommandPolicy = src.CommandPolicy
	}
	if src.SessionIdleTTLMinutes > 0 {
		dst.SessionIdleTTLMinutes = src.SessionIdleTTLMinutes
	}
	if src.SessionMaxLifetimeMinutes > 0 {
		dst.SessionMaxLifetimeMinutes = src.SessionMaxLifetimeMinutes
	}
	if src.MaxSessionsPerUser > 0 {
		dst.MaxSessionsPerUser = src.MaxSessionsPerUser
	}
	if src.StoragePath != "" {
		dst.StoragePath = src.StoragePath
	}
	if src.Server.Hostname != "" {
		dst.Server.Hostname = src.Server.Hostname
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("CODEGATE_APPROVED_ROOT"); v != "" {
		cfg.ApprovedRoot = v
	}
	if v := os.Getenv("CODEGATE_ALLOWED_TOOLS"); v != "" {
		cfg.AllowedTools = splitList(v)
	}
	if v := os.Getenv("CODEGATE_DISALLOWED_TOOLS"); v != "" {
		cfg.DisallowedTools = splitList(v)
	}
	if v := os.Getenv("CODEGATE_COMMAND_POLICY"); v != "" {
		cfg.CommandPolicy = types.CommandPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("CODEGATE_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("CODEGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CODEGATE_SESSION_IDLE_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionIdleTTLMinutes = n
		}
	}
	if v := os.Getenv("CODEGATE_MAX_SESSIONS_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSessionsPerUser = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func validate(cfg *types.Config) error {
	if cfg.ApprovedRoot == "" {
		return fmt.Errorf("approvedRoot is required")
	}
	if !filepath.IsAbs(cfg.ApprovedRoot) {
		return fmt.Errorf("approvedRoot must be an absolute path, got %q", cfg.ApprovedRoot)
	}
	cfg.ApprovedRoot = filepath.Clean(cfg.ApprovedRoot)

	switch cfg.CommandPolicy {
	case types.PolicyStrict, types.PolicyRelaxed:
	default:
		return fmt.Errorf("commandPolicy must be %q or %q, got %q",
			types.PolicyStrict, types.PolicyRelaxed, cfg.CommandPolicy)
	}

	if cfg.StoragePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine storage path: %w", err)
		}
		cfg.StoragePath = filepath.Join(home, ".local", "share", "codegate")
	}
	return nil
}
