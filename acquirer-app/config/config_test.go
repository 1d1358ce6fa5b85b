package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.API.ListenAddr)
	require.Equal(t, time.Duration(0), cfg.API.WriteTimeout)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "colosseo:", cfg.Redis.KeyPrefix)
	require.Equal(t, 5*time.Second, cfg.Monitor.PollInterval)
	require.Equal(t, 15*time.Minute, cfg.Monitor.ClaimTTL)
	require.InDelta(t, 0.75, cfg.Monitor.DetectionThreshold, 1e-9)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  listen_addr: ":9090"
redis:
  addr: "redis-primary:6379"
  db: 2
monitor:
  poll_interval: 500ms
  detection_threshold: 0.9
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.API.ListenAddr)
	require.Equal(t, "redis-primary:6379", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, 500*time.Millisecond, cfg.Monitor.PollInterval)
	require.InDelta(t, 0.9, cfg.Monitor.DetectionThreshold, 1e-9)
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative db", "redis:\n  db: -1\n"},
		{"zero poll interval", "monitor:\n  poll_interval: 0s\n"},
		{"threshold above one", "monitor:\n  detection_threshold: 1.5\n"},
		{"empty listen addr", "api:\n  listen_addr: \"\"\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
