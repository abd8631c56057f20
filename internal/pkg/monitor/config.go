package monitor

import (
	"fmt"
	"time"
)

const (
	// DefaultPollingInterval between state queries
	DefaultPollingInterval = 15 * time.Second
	// DefaultMaxDuration of monitoring
	DefaultMaxDuration = 1800 * time.Second
	// DefaultMaxErrors is the bound of consecutive failed state queries
	DefaultMaxErrors = 3
)

// Config of the monitor loop
type Config struct {
	PollingInterval time.Duration
	MaxDuration     time.Duration
	MaxErrors       int
}

// DefaultConfig returns config with default values
func DefaultConfig() Config {
	return Config{PollingInterval: DefaultPollingInterval, MaxDuration: DefaultMaxDuration, MaxErrors: DefaultMaxErrors}
}

func (c Config) withDefaults() Config {
	if c.PollingInterval <= 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = DefaultMaxErrors
	}
	return c
}

func (c Config) String() string {
	return fmt.Sprintf("interval: %s, max: %s, maxErrors: %d", c.PollingInterval, c.MaxDuration, c.MaxErrors)
}
