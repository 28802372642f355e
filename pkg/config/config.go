package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration
type Config struct {
	// DataDir is where the record store lives
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the HTTP/WebSocket API address
	ListenAddr string `yaml:"listen_addr"`

	// MasterAdminEmail is the bootstrap admin identity. An account
	// signing in with this email (case-insensitive) is always forced to
	// role admin, verified.
	MasterAdminEmail string `yaml:"master_admin_email"`

	// JWTSecret signs session tokens
	JWTSecret string `yaml:"jwt_secret"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Debug enables development-only behavior such as the placeholder
	// device injected on permission errors. Never enable in production.
	Debug bool `yaml:"debug"`

	// OfflineAfter is the heartbeat staleness window for device
	// liveness classification
	OfflineAfter time.Duration `yaml:"offline_after"`

	// NotificationLimit is the feed window size
	NotificationLimit int `yaml:"notification_limit"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:           "./traceon-data",
		ListenAddr:        "127.0.0.1:8080",
		LogLevel:          "info",
		OfflineAfter:      120 * time.Second,
		NotificationLimit: 10,
	}
}

// Load builds configuration from defaults, an optional YAML file, and
// environment variables, in that order of precedence (env wins).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Pick up a local .env if present; real env vars still win
	_ = godotenv.Load()

	if v := os.Getenv("TRACEON_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TRACEON_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TRACEON_MASTER_ADMIN_EMAIL"); v != "" {
		cfg.MasterAdminEmail = v
	}
	if v := os.Getenv("TRACEON_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TRACEON_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRACEON_DEBUG"); v != "" {
		cfg.Debug, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("TRACEON_OFFLINE_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse TRACEON_OFFLINE_AFTER: %w", err)
		}
		cfg.OfflineAfter = d
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("TRACEON_JWT_SECRET is required")
	}

	return cfg, nil
}
