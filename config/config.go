// Package config provides the bus-wide configuration: channel reconnect
// timing, wire-frame limits, and default request timeouts. These were
// hard-coded literals in the original source; here they are configuration,
// not magic numbers.
package config

import (
	"sync"
	"time"
)

// Config holds tunables shared by channel, componenthost, and hub.
type Config struct {
	// ReconnectInterval is the delay between PipeChannel reconnect attempts.
	ReconnectInterval time.Duration `json:"reconnect_interval_ms"`
	// MaxEnvelopeBytes is the largest encoded Message a MessageChannel will
	// accept before treating the frame as a protocol violation and closing.
	MaxEnvelopeBytes int `json:"max_envelope_bytes"`
	// DefaultQueryTimeout bounds ComponentHost.SendWithReply when the caller
	// does not specify one explicitly.
	DefaultQueryTimeout time.Duration `json:"default_query_timeout_ms"`
}

// DefaultConfig returns a Config with the values the original source wired
// in as literals.
func DefaultConfig() *Config {
	return &Config{
		ReconnectInterval:   100 * time.Millisecond,
		MaxEnvelopeBytes:    16 * 1024 * 1024,
		DefaultQueryTimeout: 5 * time.Second,
	}
}

// ConfigFromMap builds a Config from a generic map, defaulting any key
// that is absent or of an unexpected type. Durations are expressed in
// milliseconds, mirroring the *_ms JSON tags.
func ConfigFromMap(m map[string]any) *Config {
	c := DefaultConfig()

	if v, ok := m["reconnect_interval_ms"].(int); ok {
		c.ReconnectInterval = time.Duration(v) * time.Millisecond
	} else if v, ok := m["reconnect_interval_ms"].(float64); ok {
		c.ReconnectInterval = time.Duration(v) * time.Millisecond
	}

	if v, ok := m["max_envelope_bytes"].(int); ok {
		c.MaxEnvelopeBytes = v
	} else if v, ok := m["max_envelope_bytes"].(float64); ok {
		c.MaxEnvelopeBytes = int(v)
	}

	if v, ok := m["default_query_timeout_ms"].(int); ok {
		c.DefaultQueryTimeout = time.Duration(v) * time.Millisecond
	} else if v, ok := m["default_query_timeout_ms"].(float64); ok {
		c.DefaultQueryTimeout = time.Duration(v) * time.Millisecond
	}

	return c
}

// ToMap converts c back to the generic map shape ConfigFromMap accepts.
func (c *Config) ToMap() map[string]any {
	return map[string]any{
		"reconnect_interval_ms":    int(c.ReconnectInterval / time.Millisecond),
		"max_envelope_bytes":       c.MaxEnvelopeBytes,
		"default_query_timeout_ms": int(c.DefaultQueryTimeout / time.Millisecond),
	}
}

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// GetConfig returns the injected configuration, or defaults if none was set.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}
	return globalConfig
}

// SetConfig installs the process-wide configuration that GetConfig returns
// from then on.
func SetConfig(c *Config) {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = c
}

// ResetConfig clears the injected configuration so GetConfig resumes
// returning defaults; used by tests to avoid cross-test leakage.
func ResetConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	globalConfig = nil
}
