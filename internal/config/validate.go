package config

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors
// found. Dangerous zero/negative values that would cause panics downstream
// (a zero-duration ticker, a zero packet ceiling) are clamped to safe
// defaults; other validation errors are logged as warnings but do not
// prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.AuthKey != "" {
		for _, r := range c.AuthKey {
			if unicode.IsControl(r) {
				errs = append(errs, fmt.Errorf("auth_key contains control characters"))
				break
			}
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range, clamping to 8080", c.Port))
		c.Port = 8080
	}

	// Clamp to safe range to prevent a zero-size packet buffer or a
	// zero-duration watchdog ticker.
	if c.MaxPacketSize < 1024 {
		errs = append(errs, fmt.Errorf("max_packet_size %d is below minimum 1024, clamping", c.MaxPacketSize))
		c.MaxPacketSize = DefaultMaxPacketSize
	} else if c.MaxPacketSize > DefaultMaxPacketSize {
		errs = append(errs, fmt.Errorf("max_packet_size %d exceeds maximum %d, clamping", c.MaxPacketSize, DefaultMaxPacketSize))
		c.MaxPacketSize = DefaultMaxPacketSize
	}

	if c.ChunkWaitTimeout < 1 {
		errs = append(errs, fmt.Errorf("chunk_wait_timeout %d is below minimum 1, clamping", c.ChunkWaitTimeout))
		c.ChunkWaitTimeout = 10
	} else if c.ChunkWaitTimeout > 300 {
		errs = append(errs, fmt.Errorf("chunk_wait_timeout %d exceeds maximum 300, clamping", c.ChunkWaitTimeout))
		c.ChunkWaitTimeout = 300
	}

	if c.ChunkWaitCheckInterval < 1 {
		errs = append(errs, fmt.Errorf("chunk_wait_check_interval %d is below minimum 1, clamping", c.ChunkWaitCheckInterval))
		c.ChunkWaitCheckInterval = 1
	}
	if c.ChunkWaitCheckInterval > c.ChunkWaitTimeout {
		errs = append(errs, fmt.Errorf("chunk_wait_check_interval %d exceeds chunk_wait_timeout %d, clamping", c.ChunkWaitCheckInterval, c.ChunkWaitTimeout))
		c.ChunkWaitCheckInterval = c.ChunkWaitTimeout
	}

	if len(c.ICEServers) == 0 {
		errs = append(errs, fmt.Errorf("ice_servers is empty, falling back to public STUN"))
		c.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	for _, uri := range c.ICEServers {
		if !strings.HasPrefix(uri, "stun:") && !strings.HasPrefix(uri, "turn:") && !strings.HasPrefix(uri, "turns:") {
			errs = append(errs, fmt.Errorf("ice server %q does not use a stun:/turn:/turns: scheme", uri))
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
