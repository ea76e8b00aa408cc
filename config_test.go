package taskwire

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Profile != "default" {
		t.Errorf("Profile = %q, want %q", cfg.Profile, "default")
	}
	if cfg.LocalPath == "" {
		t.Error("LocalPath not derived")
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %v", cfg.ProbeInterval)
	}
	if !cfg.IsOffline() {
		t.Error("default config should be offline-only")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TASKWIRE_DB_PATH", "/tmp/taskwire-test/tasks.db")
	t.Setenv("TASKWIRE_PROFILE", "work")
	t.Setenv("TASKWIRE_SERVER_URL", "https://tasks.example.com")
	t.Setenv("TASKWIRE_TOKEN", "secret")
	t.Setenv("TASKWIRE_DEBUG", "1")

	cfg := ConfigFromEnv()

	if cfg.LocalPath != "/tmp/taskwire-test/tasks.db" {
		t.Errorf("LocalPath = %q", cfg.LocalPath)
	}
	if cfg.Profile != "work" {
		t.Errorf("Profile = %q", cfg.Profile)
	}
	if cfg.ServerURL != "https://tasks.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if !cfg.Debug {
		t.Error("Debug not enabled")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{
			name:      "missing local path",
			cfg:       Config{},
			wantField: "LocalPath",
		},
		{
			name:      "server url without token",
			cfg:       Config{LocalPath: "/tmp/t.db", ServerURL: "https://tasks.example.com"},
			wantField: "Token",
		},
		{
			name:      "invalid profile name",
			cfg:       Config{LocalPath: "/tmp/t.db", Profile: "Bad Profile!"},
			wantField: "Profile",
		},
		{
			name:      "negative probe interval",
			cfg:       Config{LocalPath: "/tmp/t.db", ProbeInterval: -time.Second},
			wantField: "ProbeInterval",
		},
		{
			name: "valid online config",
			cfg: Config{
				LocalPath: "/tmp/t.db",
				Profile:   "work",
				ServerURL: "https://tasks.example.com",
				Token:     "secret",
			},
		},
		{
			name: "valid offline config",
			cfg:  Config{LocalPath: "/tmp/t.db"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Setenv("TASKWIRE_PROFILE", "")

	cfg := Config{}.WithDefaults()

	if cfg.Profile != "default" {
		t.Errorf("Profile = %q, want %q", cfg.Profile, "default")
	}
	if !strings.Contains(cfg.LocalPath, "default") {
		t.Errorf("LocalPath = %q, want per-profile path", cfg.LocalPath)
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %v", cfg.ProbeInterval)
	}

	// Explicit values survive.
	custom := Config{Profile: "work", LocalPath: "/tmp/x.db", ProbeInterval: time.Minute}.WithDefaults()
	if custom.Profile != "work" || custom.LocalPath != "/tmp/x.db" || custom.ProbeInterval != time.Minute {
		t.Errorf("explicit values overwritten: %+v", custom)
	}
}
