package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault tests the built-in configuration values
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./traceon-data", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 120*time.Second, cfg.OfflineAfter)
	assert.Equal(t, 10, cfg.NotificationLimit)
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.JWTSecret)
}

// TestLoadRequiresSecret tests that a missing JWT secret is rejected
func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("TRACEON_JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACEON_JWT_SECRET")
}

// TestLoadFromFile tests YAML file loading over defaults
func TestLoadFromFile(t *testing.T) {
	t.Setenv("TRACEON_JWT_SECRET", "test-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `data_dir: /var/lib/traceon
listen_addr: 0.0.0.0:9090
master_admin_email: root@example.com
log_level: debug
notification_limit: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/traceon", cfg.DataDir)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "root@example.com", cfg.MasterAdminEmail)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25, cfg.NotificationLimit)

	// Values the file omits keep their defaults
	assert.Equal(t, 120*time.Second, cfg.OfflineAfter)
}

// TestLoadMissingFile tests that a nonexistent config path is an error
func TestLoadMissingFile(t *testing.T) {
	t.Setenv("TRACEON_JWT_SECRET", "test-secret")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

// TestLoadEnvOverrides tests that environment variables win over the file
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACEON_JWT_SECRET", "env-secret")
	t.Setenv("TRACEON_DATA_DIR", "/tmp/env-data")
	t.Setenv("TRACEON_LISTEN_ADDR", "127.0.0.1:7070")
	t.Setenv("TRACEON_MASTER_ADMIN_EMAIL", "admin@env.example.com")
	t.Setenv("TRACEON_LOG_LEVEL", "warn")
	t.Setenv("TRACEON_DEBUG", "true")
	t.Setenv("TRACEON_OFFLINE_AFTER", "90s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /from/file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env-data", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:7070", cfg.ListenAddr)
	assert.Equal(t, "admin@env.example.com", cfg.MasterAdminEmail)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 90*time.Second, cfg.OfflineAfter)
}

// TestLoadBadOfflineAfter tests that an unparseable staleness window fails
func TestLoadBadOfflineAfter(t *testing.T) {
	t.Setenv("TRACEON_JWT_SECRET", "test-secret")
	t.Setenv("TRACEON_OFFLINE_AFTER", "not-a-duration")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACEON_OFFLINE_AFTER")
}
