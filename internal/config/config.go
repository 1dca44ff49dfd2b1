// Package config loads service configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrMissingDatabaseURL is returned when no database URL is configured.
var ErrMissingDatabaseURL = errors.New("missing database URL (set [database] url or DATABASE_URL)")

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Credentials CredentialsConfig `toml:"credentials"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	ClientOrigin string `toml:"client_origin"`
}

// DatabaseConfig contains analytical-store connection settings.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// CredentialsConfig contains external-service credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials. Both fields empty means
// catalog enrichment is disabled.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Load reads configuration from the TOML file at path, then applies
// environment overrides (DATABASE_URL, SPOTIFY_ID, SPOTIFY_SECRET, ADDR).
// A missing file is not an error; a missing database URL is.
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&config)

	if config.Database.URL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return &config, nil
}

// applyEnv overrides file values with environment variables when set.
func applyEnv(config *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = v
	}
	if v := os.Getenv("SPOTIFY_ID"); v != "" {
		config.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_SECRET"); v != "" {
		config.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("ADDR"); v != "" {
		config.Server.Addr = v
	}
}

// EnrichmentEnabled reports whether catalog enrichment is configured.
func (c *Config) EnrichmentEnabled() bool {
	return c.Credentials.Spotify.ClientID != "" && c.Credentials.Spotify.ClientSecret != ""
}
