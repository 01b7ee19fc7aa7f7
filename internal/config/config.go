// Package config handles loading and validating the application
// configuration from a config.json file.
//
// The configuration file is a JSON object with database connection
// details, the HTTP listen address, the JWT signing secret, the shared
// ingestion secret, and the login/registration throttle constants. The
// file is read once at startup into an immutable Config value; changes
// require a restart.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds all application configuration loaded from config.json.
type Config struct {
	// DBConn is the PostgreSQL host:port (e.g., "infra-postgres:5432").
	DBConn string `json:"dbConn"`

	// DBName is the PostgreSQL database name.
	DBName string `json:"dbName"`

	// DBUser is the PostgreSQL username.
	DBUser string `json:"dbUser"`

	// DBPass is the PostgreSQL password.
	DBPass string `json:"dbPass"`

	// ListenAddr is the HTTP listen address (default ":3000").
	ListenAddr string `json:"listenAddr"`

	// JWTSecret is the HMAC secret used to sign bearer tokens.
	JWTSecret string `json:"jwtSecret"`

	// IngestSecret is the shared secret producers send in the
	// x-internal-secret header on /ingest calls.
	IngestSecret string `json:"ingestSecret"`

	// ThrottleMaxAttempts is the number of failed login/register
	// attempts allowed per key within the throttle window (default 3).
	ThrottleMaxAttempts int `json:"throttleMaxAttempts"`

	// ThrottleWindowMinutes is the rolling throttle window in minutes
	// (default 120).
	ThrottleWindowMinutes int `json:"throttleWindowMinutes"`
}

// Load reads and parses configuration from the given file path.
// It returns an error if the file cannot be read, parsed, or is missing
// required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3000"
	}
	if cfg.ThrottleMaxAttempts == 0 {
		cfg.ThrottleMaxAttempts = 3
	}
	if cfg.ThrottleWindowMinutes == 0 {
		cfg.ThrottleWindowMinutes = 120
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	switch {
	case c.DBConn == "":
		return fmt.Errorf("config: dbConn is required")
	case c.DBName == "":
		return fmt.Errorf("config: dbName is required")
	case c.DBUser == "":
		return fmt.Errorf("config: dbUser is required")
	case c.DBPass == "":
		return fmt.Errorf("config: dbPass is required")
	case c.JWTSecret == "":
		return fmt.Errorf("config: jwtSecret is required")
	case c.IngestSecret == "":
		return fmt.Errorf("config: ingestSecret is required")
	}
	return nil
}

// ThrottleWindow returns the rolling throttle window as a duration.
func (c *Config) ThrottleWindow() time.Duration {
	return time.Duration(c.ThrottleWindowMinutes) * time.Minute
}

// ConnString builds a PostgreSQL connection URI from the config fields.
// The password is URL-encoded to handle special characters safely.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(c.DBPass),
		c.DBConn,
		url.QueryEscape(c.DBName),
	)
}
