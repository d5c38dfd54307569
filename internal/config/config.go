// Package config holds the global and per-session TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
}

// ServerConfig points at the chat backend.
type ServerConfig struct {
	// Host is the backend host[:port], without scheme.
	Host   string `toml:"host"`
	Secure bool   `toml:"secure"`
}

// HTTPBase returns the REST base URL for the configured host.
func (s ServerConfig) HTTPBase() string {
	scheme := "http"
	if s.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.Host)
}

// AuthConfig carries the session credentials.
type AuthConfig struct {
	Token  string `toml:"token"`
	UserID int64  `toml:"user_id"`
}

// HTTPConfig configures the local control API.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// SessionConfig represents a session's config.toml.
type SessionConfig struct {
	Server ServerConfig `toml:"server"`
	Auth   AuthConfig   `toml:"auth"`
	HTTP   HTTPConfig   `toml:"http"`
}

// DefaultListen is the loopback address the control API binds to when
// the session config leaves it unset.
const DefaultListen = "127.0.0.1:8632"

// Load reads the global config from the given path. Returns an error if
// the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config to the given path, creating parent dirs
// as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadSession reads a session config and applies defaults.
func LoadSession(path string) (*SessionConfig, error) {
	var cfg SessionConfig
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}
	return &cfg, nil
}

// SaveSession writes a session config.
func SaveSession(path string, cfg *SessionConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks that a session config is usable by the daemon.
func (c *SessionConfig) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}
	if c.Auth.UserID == 0 {
		return fmt.Errorf("auth.user_id is required")
	}
	return nil
}
