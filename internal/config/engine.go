package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Payload profiles understood by the engine.
const (
	ProfilePath    = "path"    // image + map + array (planned path)
	ProfileNavGrid = "navgrid" // image + map + nav (navigation grid)
)

// EngineConfig is the JSON configuration for the telemetry push engine.
// Every field is optional; the Get* methods supply defaults for anything the
// file leaves out, so partial configs are safe.
type EngineConfig struct {
	// Viewer channel
	Host        *string `json:"host,omitempty"`
	Port        *int    `json:"port,omitempty"`
	ReadyMarker *string `json:"ready_marker,omitempty"` // path, "~" expanded
	ReadyRetry  *string `json:"ready_retry,omitempty"`  // duration string like "100ms"
	HealthAddr  *string `json:"health_addr,omitempty"`  // gRPC health listener, empty disables

	// Pacing
	TargetPeriod   *string `json:"target_period,omitempty"`   // duration string like "80ms"
	SampleInterval *string `json:"sample_interval,omitempty"` // duration string like "2s"
	AckTimeout     *string `json:"ack_timeout,omitempty"`     // "0s" waits forever

	// Payload and diagnostics
	Profile     *string `json:"profile,omitempty"`
	HistorySize *int    `json:"history_size,omitempty"`
	Verbose     *bool   `json:"verbose,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyEngineConfig returns an EngineConfig with all fields set to nil.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays TELEMETRY_* environment variables onto the config.
// Variables that are unset or empty leave the field untouched.
func (c *EngineConfig) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("TELEMETRY_HOST"); v != "" {
		c.Host = ptrString(v)
	}
	if v := getenv("TELEMETRY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TELEMETRY_PORT %q: %w", v, err)
		}
		c.Port = ptrInt(port)
	}
	if v := getenv("TELEMETRY_HEALTH_ADDR"); v != "" {
		c.HealthAddr = ptrString(v)
	}
	if v := getenv("TELEMETRY_ACK_TIMEOUT"); v != "" {
		c.AckTimeout = ptrString(v)
	}
	return c.Validate()
}

// Validate checks that the configuration values are valid.
func (c *EngineConfig) Validate() error {
	if c.Port != nil && (*c.Port < 0 || *c.Port > 65535) {
		return fmt.Errorf("port must be between 0 and 65535, got %d", *c.Port)
	}

	durations := []struct {
		name     string
		value    *string
		positive bool
	}{
		{"target_period", c.TargetPeriod, true},
		{"sample_interval", c.SampleInterval, true},
		{"ready_retry", c.ReadyRetry, true},
		{"ack_timeout", c.AckTimeout, false},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if parsed < 0 || (d.positive && parsed == 0) {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.value)
		}
	}

	if c.Profile != nil {
		switch *c.Profile {
		case ProfilePath, ProfileNavGrid:
		default:
			return fmt.Errorf("profile must be %q or %q, got %q", ProfilePath, ProfileNavGrid, *c.Profile)
		}
	}

	if c.HistorySize != nil && *c.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", *c.HistorySize)
	}

	return nil
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetHost returns the listen host or the default (all interfaces).
func (c *EngineConfig) GetHost() string {
	if c.Host == nil {
		return "0.0.0.0"
	}
	return *c.Host
}

// GetPort returns the viewer port or the default 2303.
func (c *EngineConfig) GetPort() int {
	if c.Port == nil {
		return 2303
	}
	return *c.Port
}

// GetListenAddr joins host and port.
func (c *EngineConfig) GetListenAddr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.GetPort())
}

// GetReadyMarker returns the readiness marker path (unexpanded).
func (c *EngineConfig) GetReadyMarker() string {
	if c.ReadyMarker == nil {
		return "~/ws_gui.log"
	}
	return *c.ReadyMarker
}

// GetReadyRetry returns the delay between readiness marker write attempts.
func (c *EngineConfig) GetReadyRetry() time.Duration {
	return parseDurationOr(c.ReadyRetry, 100*time.Millisecond)
}

// GetHealthAddr returns the gRPC health listen address; empty means disabled.
func (c *EngineConfig) GetHealthAddr() string {
	if c.HealthAddr == nil {
		return ""
	}
	return *c.HealthAddr
}

// GetTargetPeriod returns the ideal cycle period.
func (c *EngineConfig) GetTargetPeriod() time.Duration {
	return parseDurationOr(c.TargetPeriod, 80*time.Millisecond)
}

// GetSampleInterval returns the frequency sampling window.
func (c *EngineConfig) GetSampleInterval() time.Duration {
	return parseDurationOr(c.SampleInterval, 2*time.Second)
}

// GetAckTimeout returns the acknowledgment timeout; zero waits forever.
func (c *EngineConfig) GetAckTimeout() time.Duration {
	return parseDurationOr(c.AckTimeout, 0)
}

// GetProfile returns the payload profile.
func (c *EngineConfig) GetProfile() string {
	if c.Profile == nil {
		return ProfilePath
	}
	return *c.Profile
}

// GetHistorySize returns how many frequency samples the debug chart keeps.
func (c *EngineConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 300
	}
	return *c.HistorySize
}

// GetVerbose returns whether per-cycle debug logging is enabled.
func (c *EngineConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}
