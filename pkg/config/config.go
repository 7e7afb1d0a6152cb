// Package config loads and validates jukedash.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "jukedash.yaml"

// Config is the full jukedash configuration.
type Config struct {
	Version  int           `yaml:"version"`
	Server   string        `yaml:"server"` // base URL of the bot dashboard API
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http"`
	Logs     LogsConfig    `yaml:"logs"`
	TUI      TUIConfig     `yaml:"tui"`
	Sinks    []SinkConfig  `yaml:"sinks"`
	Metrics  MetricsConfig `yaml:"metrics"`

	// FilePath is where the config was loaded from. Not serialised.
	FilePath string `yaml:"-"`
}

// HTTPConfig tunes the REST and push-channel clients.
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	UserAgent        string        `yaml:"user_agent"`
}

// LogsConfig drives the live-log pipeline.
type LogsConfig struct {
	BufferSize   int             `yaml:"buffer_size"`
	SeenKeys     *int            `yaml:"seen_keys"` // 0 = unbounded
	PollInterval time.Duration   `yaml:"poll_interval"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig is the push-channel retry policy.
type ReconnectConfig struct {
	Delay      time.Duration `yaml:"delay"`
	Multiplier float64       `yaml:"multiplier"` // 1 = fixed delay
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     float64       `yaml:"jitter"`      // fraction of the delay, added
	MaxRetries int           `yaml:"max_retries"` // 0 = retry forever
}

// SeenCapacity returns the dedup window, 10000 when unset.
func (l LogsConfig) SeenCapacity() int {
	if l.SeenKeys == nil {
		return 10000
	}
	return *l.SeenKeys
}

// TUIConfig holds dashboard presentation settings.
type TUIConfig struct {
	Autoscroll      *bool         `yaml:"autoscroll"`
	ScrollThreshold *int          `yaml:"scroll_threshold"` // rows from bottom
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Scope           string        `yaml:"scope"`
}

// AutoscrollEnabled reports the configured default, on when unset.
func (t TUIConfig) AutoscrollEnabled() bool {
	return t.Autoscroll == nil || *t.Autoscroll
}

// ScrollRows returns how close to the bottom still counts as following,
// 3 rows when unset. An explicit 0 means only the very bottom.
func (t TUIConfig) ScrollRows() int {
	if t.ScrollThreshold == nil {
		return 3
	}
	return *t.ScrollThreshold
}

// SinkConfig configures one destination for headless log forwarding.
type SinkConfig struct {
	Type string `yaml:"type"` // console | file | journald | loki | s3

	// file
	Path string `yaml:"path,omitempty"`

	// journald
	Identifier string `yaml:"identifier,omitempty"`

	// loki
	URL      string `yaml:"url,omitempty"`
	TenantID string `yaml:"tenant_id,omitempty"`
	Job      string `yaml:"job,omitempty"`

	// s3
	Region        string        `yaml:"region,omitempty"`
	Bucket        string        `yaml:"bucket,omitempty"`
	Prefix        string        `yaml:"prefix,omitempty"`
	BatchSize     int           `yaml:"batch_size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{Version: 1}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = "http://127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 10 * time.Second
	}
	if c.HTTP.HandshakeTimeout == 0 {
		c.HTTP.HandshakeTimeout = 5 * time.Second
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "jukedash"
	}
	if c.Logs.BufferSize == 0 {
		c.Logs.BufferSize = 500
	}
	if c.Logs.PollInterval == 0 {
		c.Logs.PollInterval = 10 * time.Second
	}
	if c.Logs.Reconnect.Delay == 0 {
		c.Logs.Reconnect.Delay = 3 * time.Second
	}
	if c.Logs.Reconnect.Multiplier == 0 {
		c.Logs.Reconnect.Multiplier = 1
	}
	if c.TUI.RefreshInterval == 0 {
		c.TUI.RefreshInterval = 5 * time.Second
	}
	if c.TUI.Scope == "" {
		c.TUI.Scope = "global"
	}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if s.Timeout == 0 && (s.Type == "loki" || s.Type == "s3") {
			s.Timeout = 10 * time.Second
		}
		switch s.Type {
		case "journald":
			if s.Identifier == "" {
				s.Identifier = "jukedash"
			}
		case "loki":
			if s.Job == "" {
				s.Job = "jukedash"
			}
		case "s3":
			if s.BatchSize == 0 {
				s.BatchSize = 500
			}
			if s.FlushInterval == 0 {
				s.FlushInterval = time.Minute
			}
			if s.Prefix == "" {
				s.Prefix = "jukedash/logs/"
			}
		}
	}
}

// Load reads and parses a config file. A missing file yields Default()
// with FilePath set, so `config init` can write it later.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c := Default()
		c.FilePath = path
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.FilePath = path
	return c, nil
}

// Parse decodes YAML, expands ${VAR} references and fills defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// Save writes the config as YAML.
func Save(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
