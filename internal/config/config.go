// Package config loads process configuration from RAINFALL_* environment
// variables. Command-line flags override what is loaded here.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures cmd/server.
type Server struct {
	Addr                   string        `env:"RAINFALL_ADDR"                     envDefault:":5000"`
	Port                   string        `env:"PORT"`
	DBDriver               string        `env:"RAINFALL_DB_DRIVER"                envDefault:"sqlite"`
	DBPath                 string        `env:"RAINFALL_DB_PATH"                  envDefault:"rainfall.db"`
	DatabaseURL            string        `env:"RAINFALL_DATABASE_URL"`
	JWTSecret              string        `env:"RAINFALL_JWT_SECRET"`
	TokenTTL               time.Duration `env:"RAINFALL_TOKEN_TTL"                envDefault:"1h"`
	AllowAdminRegistration bool          `env:"RAINFALL_ALLOW_ADMIN_REGISTRATION" envDefault:"false"`
	LogLevel               string        `env:"RAINFALL_LOG_LEVEL"                envDefault:"info"`
}

// LoadServer reads the server configuration. PORT, when set, wins over
// RAINFALL_ADDR.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Port != "" {
		cfg.Addr = ":" + cfg.Port
	}
	return cfg, nil
}

// Validate checks the settings that have no safe default.
func (c Server) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("RAINFALL_JWT_SECRET must be at least 32 characters")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("RAINFALL_DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("RAINFALL_DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown RAINFALL_DB_DRIVER %q", c.DBDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("RAINFALL_TOKEN_TTL must be positive")
	}
	return nil
}

// Dashboard configures cmd/dashboard.
type Dashboard struct {
	ServerURL      string        `env:"RAINFALL_SERVER_URL"      envDefault:"http://localhost:5000"`
	PollInterval   time.Duration `env:"RAINFALL_POLL_INTERVAL"   envDefault:"5s"`
	RequestTimeout time.Duration `env:"RAINFALL_REQUEST_TIMEOUT" envDefault:"10s"`
	SessionFile    string        `env:"RAINFALL_SESSION_FILE"`
	ExportDir      string        `env:"RAINFALL_EXPORT_DIR"      envDefault:"."`
	S3Bucket       string        `env:"RAINFALL_EXPORT_S3_BUCKET"`
	S3Prefix       string        `env:"RAINFALL_EXPORT_S3_PREFIX"`
	S3Region       string        `env:"RAINFALL_EXPORT_S3_REGION"`
	S3Endpoint     string        `env:"RAINFALL_EXPORT_S3_ENDPOINT"`
	S3PathStyle    bool          `env:"RAINFALL_EXPORT_S3_PATH_STYLE"`
	LogLevel       string        `env:"RAINFALL_LOG_LEVEL"       envDefault:"warn"`
}

// LoadDashboard reads the dashboard configuration. The session file defaults
// to rainfall/session.yaml under the user config directory.
func LoadDashboard() (Dashboard, error) {
	var cfg Dashboard
	if err := env.Parse(&cfg); err != nil {
		return Dashboard{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Dashboard{}, fmt.Errorf("locate config dir: %w", err)
		}
		cfg.SessionFile = filepath.Join(dir, "rainfall", "session.yaml")
	}
	if cfg.PollInterval <= 0 {
		return Dashboard{}, fmt.Errorf("RAINFALL_POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
