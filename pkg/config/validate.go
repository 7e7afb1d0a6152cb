package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if u, err := url.Parse(c.Server); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("server must be an http(s) URL, got %q", c.Server))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error; got %q", c.LogLevel))
	}

	if c.Logs.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("logs.buffer_size must be positive, got %d", c.Logs.BufferSize))
	}
	if seen := c.Logs.SeenCapacity(); seen < 0 {
		errs = append(errs, fmt.Errorf("logs.seen_keys must be 0 (unbounded) or positive, got %d", seen))
	} else if seen > 0 && seen < c.Logs.BufferSize {
		errs = append(errs, fmt.Errorf("logs.seen_keys (%d) must be at least logs.buffer_size (%d)", seen, c.Logs.BufferSize))
	}
	if c.Logs.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("logs.poll_interval must be positive"))
	}

	r := c.Logs.Reconnect
	if r.Delay <= 0 {
		errs = append(errs, fmt.Errorf("logs.reconnect.delay must be positive"))
	}
	if r.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("logs.reconnect.multiplier must be >= 1, got %g", r.Multiplier))
	}
	if r.MaxDelay != 0 && r.MaxDelay < r.Delay {
		errs = append(errs, fmt.Errorf("logs.reconnect.max_delay must be 0 or >= delay"))
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		errs = append(errs, fmt.Errorf("logs.reconnect.jitter must be within [0,1], got %g", r.Jitter))
	}
	if r.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("logs.reconnect.max_retries must be >= 0"))
	}

	if c.TUI.ScrollRows() < 0 {
		errs = append(errs, fmt.Errorf("tui.scroll_threshold must be >= 0"))
	}

	for i, s := range c.Sinks {
		switch s.Type {
		case "console", "journald":
		case "file":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sink %d (file): path is required", i))
			}
		case "loki":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sink %d (loki): url is required", i))
			}
		case "s3":
			if s.Bucket == "" {
				errs = append(errs, fmt.Errorf("sink %d (s3): bucket is required", i))
			}
			if s.BatchSize < 1 {
				errs = append(errs, fmt.Errorf("sink %d (s3): batch_size must be positive", i))
			}
		case "":
			errs = append(errs, fmt.Errorf("sink %d: type is required", i))
		default:
			errs = append(errs, fmt.Errorf("sink %d: unknown type %q", i, s.Type))
		}
	}

	return errs
}
