package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "pts_logger")
	t.Setenv("DB_NAME", "pts_datalog")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":1236", cfg.Listener.Addr())
	assert.Equal(t, 1024, cfg.Listener.BufferSize)
	assert.Equal(t, "current", cfg.Listener.Protocol)
	assert.Equal(t, 5*time.Second, cfg.DB.IdleTimeout)
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.SyncInterval)
	assert.False(t, cfg.Migrate.Enabled)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, []string{"localhost:3000", "127.0.0.1:3000"}, cfg.HTTP.CORSHosts)
	assert.Empty(t, cfg.PacketLog.Dir)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PTS_PROTOCOL", "LEGACY")
	t.Setenv("PTS_LISTEN_PORT", "4000")
	t.Setenv("DB_IDLE_TIMEOUT", "10s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("PACKET_LOG_DIR", "/var/log")
	t.Setenv("HTTP_ENABLED", "false")
	t.Setenv("HTTP_CORS_HOSTS", " dash.example.org , ,ops.example.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.Listener.Protocol)
	assert.Equal(t, 4000, cfg.Listener.Port)
	assert.Equal(t, 10*time.Second, cfg.DB.IdleTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "/var/log", cfg.PacketLog.Dir)
	assert.False(t, cfg.HTTP.Enabled)
	assert.Equal(t, []string{"dash.example.org", "ops.example.org"}, cfg.HTTP.CORSHosts)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing db":       {"DB_HOST": ""},
		"unknown protocol": {"PTS_PROTOCOL": "v3"},
		"bad port":         {"PTS_LISTEN_PORT": "70000"},
		"bad idle":         {"DB_IDLE_TIMEOUT": "soon"},
		"zero idle":        {"DB_IDLE_TIMEOUT": "0s"},
		"zero redis sync":  {"REDIS_ENABLED": "true", "REDIS_SYNC_INTERVAL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
