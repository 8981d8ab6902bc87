package sse

import "time"

// Config holds configuration for SSE connections
type Config struct {
	// KeepAliveInterval is how often to send keep-alive pings to prevent
	// proxy timeouts while the backend is thinking between tokens.
	KeepAliveInterval time.Duration
}

// DefaultConfig returns the default SSE configuration.
// 10 seconds is safe for most proxies and edge runtimes.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
	}
}
