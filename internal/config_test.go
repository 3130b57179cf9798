package internal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 測試預設配置
func TestDefaultConfig(t *testing.T) {
	cfg := internal.DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 256, cfg.Relay.SendBuffer)
	assert.Equal(t, int64(64*1024), cfg.Relay.MaxMessageSize)
	assert.Equal(t, 54*time.Second, cfg.Relay.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Relay.PongTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

// TestLoadConfig 測試配置載入
func TestLoadConfig(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := internal.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := []byte("server:\n  port: 9090\nrelay:\n  send_buffer: 64\nlog:\n  level: debug\n")
		require.NoError(t, os.WriteFile(path, content, 0o644))

		cfg, err := internal.LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 64, cfg.Relay.SendBuffer)
		assert.Equal(t, "debug", cfg.Log.Level)
		// 未指定的欄位保留預設值
		assert.Equal(t, 54*time.Second, cfg.Relay.PingInterval)
	})

	t.Run("explicit missing file is fatal", func(t *testing.T) {
		_, err := internal.LoadConfig(filepath.Join(t.TempDir(), "no_such.yaml"))
		assert.Error(t, err)
	})

	t.Run("env var overrides yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

		t.Setenv("PORT", "7070")

		cfg, err := internal.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("invalid env port is ignored", func(t *testing.T) {
		t.Setenv("PORT", "not_a_number")

		cfg, err := internal.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("malformed yaml is fatal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))

		_, err := internal.LoadConfig(path)
		assert.Error(t, err)
	})
}

// TestConfig_Validate 測試配置驗證
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *internal.Config)
		expectError bool
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *internal.Config) {},
		},
		{
			name:        "port zero",
			mutate:      func(cfg *internal.Config) { cfg.Server.Port = 0 },
			expectError: true,
		},
		{
			name:        "port too large",
			mutate:      func(cfg *internal.Config) { cfg.Server.Port = 70000 },
			expectError: true,
		},
		{
			name:   "port boundary values",
			mutate: func(cfg *internal.Config) { cfg.Server.Port = 65535 },
		},
		{
			name:        "zero send buffer",
			mutate:      func(cfg *internal.Config) { cfg.Relay.SendBuffer = 0 },
			expectError: true,
		},
		{
			name:        "zero message size limit",
			mutate:      func(cfg *internal.Config) { cfg.Relay.MaxMessageSize = 0 },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := internal.DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
