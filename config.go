package taskwire

import (
	"os"
	"time"

	"github.com/hyperengineering/taskwire/internal/profile"
)

// Config configures the Taskwire client.
type Config struct {
	// LocalPath is the path to the local SQLite database holding the
	// changelog. If empty, derived from Profile.
	LocalPath string

	// Profile names the local profile to operate against.
	// If empty, resolved explicit > TASKWIRE_PROFILE env > "default".
	Profile string

	// ServerURL is the URL of the Taskwire server.
	// If empty, the client operates offline-only.
	ServerURL string

	// Token authenticates with the server.
	Token string

	// ProbeInterval is how often connectivity is sampled against the
	// server's health endpoint. Defaults to 30 seconds.
	ProbeInterval time.Duration

	// WatchConnectivity starts the background connectivity watcher so
	// online/offline transitions reach the engine as events. One-shot CLI
	// invocations leave this off and sample connectivity once.
	WatchConnectivity bool

	// Debug enables verbose logging of all server communications and
	// engine state transitions.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profile:       "default",
		LocalPath:     profile.DBPath("default"),
		ProbeInterval: 30 * time.Second,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	TASKWIRE_DB_PATH    → LocalPath
//	TASKWIRE_PROFILE    → Profile
//	TASKWIRE_SERVER_URL → ServerURL
//	TASKWIRE_TOKEN      → Token
//	TASKWIRE_DEBUG      → Debug (any non-empty value enables)
//	TASKWIRE_DEBUG_LOG  → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		LocalPath:    os.Getenv("TASKWIRE_DB_PATH"),
		Profile:      os.Getenv("TASKWIRE_PROFILE"),
		ServerURL:    os.Getenv("TASKWIRE_SERVER_URL"),
		Token:        os.Getenv("TASKWIRE_TOKEN"),
		Debug:        os.Getenv("TASKWIRE_DEBUG") != "",
		DebugLogPath: os.Getenv("TASKWIRE_DEBUG_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	if c.Profile != "" {
		if err := profile.ValidateName(c.Profile); err != nil {
			return &ValidationError{Field: "Profile", Message: err.Error()}
		}
	}

	if c.ServerURL != "" && c.Token == "" {
		return &ValidationError{Field: "Token", Message: "required when ServerURL is set"}
	}

	if c.ProbeInterval < 0 {
		return &ValidationError{Field: "ProbeInterval", Message: "must be non-negative"}
	}

	return nil
}

// IsOffline returns true if the client operates in offline-only mode.
// Offline mode is determined by ServerURL being empty.
func (c *Config) IsOffline() bool {
	return c.ServerURL == ""
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Profile == "" {
		resolved, err := profile.Resolve("")
		if err == nil {
			c.Profile = resolved
		} else {
			c.Profile = defaults.Profile
		}
	}

	if c.LocalPath == "" {
		c.LocalPath = profile.DBPath(c.Profile)
	}

	if c.ProbeInterval == 0 {
		c.ProbeInterval = defaults.ProbeInterval
	}

	return c
}
