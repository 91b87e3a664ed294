// Package config loads and validates the agent configuration.
//
// Precedence, lowest to highest: built-in defaults, YAML config file,
// ENROLLD_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full agent configuration.
type Config struct {
	// Identity of the camera this agent publishes.
	CameraID   string `yaml:"camera_id"`
	CameraName string `yaml:"camera_name"`
	CompanyID  string `yaml:"company_id"`

	// RecognitionURL is the base URL of the recognition service that owns
	// enrollment sessions.
	RecognitionURL string `yaml:"recognition_url"`

	// SignalingURL is the websocket endpoint used to exchange SDP/ICE with
	// the recognition service.
	SignalingURL string `yaml:"signaling_url"`

	// FeedURL is the base URL of the processed overlay stream.
	FeedURL string `yaml:"feed_url"`

	// ListenAddr is the local status/metrics HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// Feature toggles.
	KYCEnabled   bool `yaml:"kyc_enabled"`
	AutoScan     bool `yaml:"auto_scan"`
	NoScan       bool `yaml:"no_scan"`
	VoiceEnabled bool `yaml:"voice_enabled"`

	// Loop pacing. Defaults match the guided enrollment UX and should not
	// normally be changed outside tests.
	PollActive  time.Duration `yaml:"poll_active"`
	PollIdle    time.Duration `yaml:"poll_idle"`
	TickCadence time.Duration `yaml:"tick_cadence"`
	TickMinGap  time.Duration `yaml:"tick_min_gap"`

	// CapturePath is the local H264 capture source (device pipe or file).
	CapturePath string `yaml:"capture_path"`
	CaptureFPS  int    `yaml:"capture_fps"`

	// TTSCommand is the external speech command; empty disables audio
	// output (narration is still logged).
	TTSCommand string `yaml:"tts_command"`

	// STUNServers are handed to the peer connection for ICE gathering.
	STUNServers []string `yaml:"stun_servers"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		ListenAddr:   ":8092",
		KYCEnabled:   true,
		AutoScan:     true,
		VoiceEnabled: true,
		PollActive:   400 * time.Millisecond,
		PollIdle:     1500 * time.Millisecond,
		TickCadence:  250 * time.Millisecond,
		TickMinGap:   1100 * time.Millisecond,
		CaptureFPS:   15,
		STUNServers:  []string{"stun:stun.l.google.com:19302"},
		LogLevel:     "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.CameraID = ParseString("ENROLLD_CAMERA_ID", c.CameraID)
	c.CameraName = ParseString("ENROLLD_CAMERA_NAME", c.CameraName)
	c.CompanyID = ParseString("ENROLLD_COMPANY_ID", c.CompanyID)
	c.RecognitionURL = ParseString("ENROLLD_RECOGNITION_URL", c.RecognitionURL)
	c.SignalingURL = ParseString("ENROLLD_SIGNALING_URL", c.SignalingURL)
	c.FeedURL = ParseString("ENROLLD_FEED_URL", c.FeedURL)
	c.ListenAddr = ParseString("ENROLLD_LISTEN_ADDR", c.ListenAddr)
	c.KYCEnabled = ParseBool("ENROLLD_KYC", c.KYCEnabled)
	c.AutoScan = ParseBool("ENROLLD_AUTO_SCAN", c.AutoScan)
	c.NoScan = ParseBool("ENROLLD_NO_SCAN", c.NoScan)
	c.VoiceEnabled = ParseBool("ENROLLD_VOICE", c.VoiceEnabled)
	c.PollActive = ParseDuration("ENROLLD_POLL_ACTIVE", c.PollActive)
	c.PollIdle = ParseDuration("ENROLLD_POLL_IDLE", c.PollIdle)
	c.TickCadence = ParseDuration("ENROLLD_TICK_CADENCE", c.TickCadence)
	c.TickMinGap = ParseDuration("ENROLLD_TICK_MIN_GAP", c.TickMinGap)
	c.CapturePath = ParseString("ENROLLD_CAPTURE_PATH", c.CapturePath)
	c.CaptureFPS = ParseInt("ENROLLD_CAPTURE_FPS", c.CaptureFPS)
	c.TTSCommand = ParseString("ENROLLD_TTS_COMMAND", c.TTSCommand)
	c.LogLevel = ParseString("ENROLLD_LOG_LEVEL", c.LogLevel)
	if v := ParseString("ENROLLD_STUN_SERVERS", ""); v != "" {
		c.STUNServers = splitList(v)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for consistency before startup.
func (c Config) Validate() error {
	if c.CameraID == "" {
		return fmt.Errorf("camera_id is required (ENROLLD_CAMERA_ID)")
	}
	if c.CompanyID == "" {
		return fmt.Errorf("company_id is required (ENROLLD_COMPANY_ID)")
	}
	for name, raw := range map[string]string{
		"recognition_url": c.RecognitionURL,
		"feed_url":        c.FeedURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid URL %q", name, raw)
		}
	}
	if c.SignalingURL != "" {
		u, err := url.Parse(c.SignalingURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("signaling_url: expected ws:// or wss:// URL, got %q", c.SignalingURL)
		}
	}
	if c.PollActive <= 0 || c.PollIdle <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.TickMinGap < c.TickCadence {
		return fmt.Errorf("tick_min_gap (%s) must not be shorter than tick_cadence (%s)", c.TickMinGap, c.TickCadence)
	}
	return nil
}
