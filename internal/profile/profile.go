// Package profile resolves the client-local database location. Each
// profile keeps its own changelog database, so one machine can hold
// pending work for several accounts or servers without mixing logs.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidName indicates the profile name format is invalid.
var ErrInvalidName = errors.New("invalid profile name: must be lowercase alphanumeric with hyphens, at most 64 characters")

// nameRegex validates profile names: lowercase alphanumeric and hyphens,
// no leading/trailing hyphen, 1-64 characters.
var nameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// ValidateName checks a profile name.
func ValidateName(name string) error {
	if name == "" || len(name) > 64 {
		return ErrInvalidName
	}
	if strings.Contains(name, "--") {
		return ErrInvalidName
	}
	if !nameRegex.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// Resolve determines the profile to use.
// Priority: explicit > TASKWIRE_PROFILE env > "default".
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateName(explicit); err != nil {
			return "", fmt.Errorf("invalid profile %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv("TASKWIRE_PROFILE"); env != "" {
		if err := ValidateName(env); err != nil {
			return "", fmt.Errorf("invalid TASKWIRE_PROFILE %q: %w", env, err)
		}
		return env, nil
	}

	return "default", nil
}

// Root returns the directory holding all profiles: ~/.taskwire/profiles,
// falling back to ./.taskwire/profiles when the home dir is unavailable.
func Root() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".taskwire", "profiles")
	}
	return filepath.Join(home, ".taskwire", "profiles")
}

// DBPath returns the database file for a profile.
// Example: DBPath("work") -> ~/.taskwire/profiles/work/tasks.db
func DBPath(name string) string {
	return filepath.Join(Root(), name, "tasks.db")
}
