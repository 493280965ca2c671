package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProfileFileName is the CLI profile stored in the user's home directory.
const ProfileFileName = ".estate-studio.yaml"

// Profile is the CLI's on-disk configuration.
type Profile struct {
	ServerURL      string        `yaml:"server_url"`
	TokenFile      string        `yaml:"token_file,omitempty"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty"`
	StallTimeout   time.Duration `yaml:"stall_timeout,omitempty"`
}

// DefaultProfile returns the profile used when no file exists.
func DefaultProfile() Profile {
	return Profile{
		ServerURL:      "http://localhost:8080",
		ReconnectDelay: 3 * time.Second,
	}
}

// DefaultProfilePath returns ~/.estate-studio.yaml.
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ProfileFileName), nil
}

// LoadProfile reads path over the defaults. A missing file is not an error.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Save writes the profile to path with owner-only permissions.
func (p Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Validate checks the profile values.
func (p Profile) Validate() error {
	if p.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}
	if p.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect_delay must be >= 0")
	}
	if p.StallTimeout < 0 {
		return fmt.Errorf("stall_timeout must be >= 0")
	}
	return nil
}
