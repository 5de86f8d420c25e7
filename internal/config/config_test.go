package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, ByteSize(12*1024*1024), cfg.Buffer.RollingBudget)
	assert.Equal(t, 30*time.Second, cfg.Buffer.GraceTimeout)
	assert.Equal(t, 5*time.Second, cfg.Buffer.GracePeriod)

	assert.Equal(t, 1, cfg.User.MaxConnections)
	assert.Equal(t, "reverse", cfg.User.Proxy)

	assert.True(t, cfg.ReverseProxy.RateLimit.Enabled)
	assert.Equal(t, 20, cfg.ReverseProxy.RateLimit.Burst)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: 127.0.0.1
  port: 9090
reverse_proxy:
  rewrite_secret: "0123456789abcdef0123456789abcdef"
buffer:
  rolling_budget: "24MiB"
  grace_timeout: 45s
user:
  max_connections: 3
  proxy: redirect
sleep_timer_mins: 120
custom_stream_response_path: /data/clips
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.ReverseProxy.RewriteSecret)
	assert.Equal(t, ByteSize(24*1024*1024), cfg.Buffer.RollingBudget)
	assert.Equal(t, 45*time.Second, cfg.Buffer.GraceTimeout)
	assert.Equal(t, 3, cfg.User.MaxConnections)
	assert.Equal(t, "redirect", cfg.User.Proxy)
	assert.Equal(t, 120, cfg.SleepTimerMins)
	assert.Equal(t, "/data/clips", cfg.CustomStreamResponsePath)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		User:    UserConfig{Proxy: "reverse"},
	}
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg.Server.Port = 8080
	cfg.User.Proxy = "bogus"
	require.Error(t, cfg.Validate())
}
