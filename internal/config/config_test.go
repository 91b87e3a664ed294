package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enrolld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENROLLD_CAMERA_ID", "cam-1")
	t.Setenv("ENROLLD_COMPANY_ID", "acme")
	t.Setenv("ENROLLD_RECOGNITION_URL", "http://recog.local:8080")
	t.Setenv("ENROLLD_FEED_URL", "http://feed.local:8081")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8092", cfg.ListenAddr)
	assert.True(t, cfg.KYCEnabled)
	assert.True(t, cfg.AutoScan)
	assert.False(t, cfg.NoScan)
	assert.Equal(t, 400*time.Millisecond, cfg.PollActive)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollIdle)
	assert.Equal(t, 250*time.Millisecond, cfg.TickCadence)
	assert.Equal(t, 1100*time.Millisecond, cfg.TickMinGap)
	assert.Equal(t, 15, cfg.CaptureFPS)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	setRequiredEnv(t)
	path := writeConfigFile(t, `
listen_addr: ":9000"
poll_idle: 2s
voice_enabled: false
stun_servers:
  - "stun:stun.example.com:3478"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.PollIdle)
	assert.False(t, cfg.VoiceEnabled)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.STUNServers)
}

func TestEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	path := writeConfigFile(t, `listen_addr: ":9000"`)
	t.Setenv("ENROLLD_LISTEN_ADDR", ":9100")
	t.Setenv("ENROLLD_POLL_ACTIVE", "300ms")
	t.Setenv("ENROLLD_STUN_SERVERS", "stun:a.example:3478, stun:b.example:3478")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 300*time.Millisecond, cfg.PollActive)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.STUNServers)
}

func TestLoadMissingFile(t *testing.T) {
	setRequiredEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.CameraID = "cam-1"
		cfg.CompanyID = "acme"
		cfg.RecognitionURL = "http://recog.local"
		cfg.FeedURL = "http://feed.local"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing camera id",
			mutate:  func(c *Config) { c.CameraID = "" },
			wantErr: "camera_id",
		},
		{
			name:    "missing company id",
			mutate:  func(c *Config) { c.CompanyID = "" },
			wantErr: "company_id",
		},
		{
			name:    "bad recognition url",
			mutate:  func(c *Config) { c.RecognitionURL = "not a url" },
			wantErr: "recognition_url",
		},
		{
			name:    "signaling must be websocket",
			mutate:  func(c *Config) { c.SignalingURL = "http://sig.local" },
			wantErr: "signaling_url",
		},
		{
			name:   "websocket signaling accepted",
			mutate: func(c *Config) { c.SignalingURL = "wss://sig.local/ws" },
		},
		{
			name:    "min gap shorter than cadence",
			mutate:  func(c *Config) { c.TickMinGap = 100 * time.Millisecond },
			wantErr: "tick_min_gap",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.PollActive = 0 },
			wantErr: "poll intervals",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
