// internal/bridge/config.go
package bridge

import "time"

// Config carries every tunable of the bridge client. Zero values are
// filled from DefaultConfig by NewClient, so callers only set what they
// care about.
type Config struct {
	ConnectTimeout time.Duration
	IOTimeout      time.Duration

	KeepAliveIdle     time.Duration
	KeepAliveInterval time.Duration
	KeepAliveCount    int

	QueueSize       int
	CommandInterval time.Duration // minimum spacing between transmissions
	DefaultBaudRate int
	DefaultTimeout  time.Duration

	ReconnectAttempts   int
	ReconnectBackoff    time.Duration // multiplied by the attempt number
	ReconnectBackoffMax time.Duration
	WatchdogInterval    time.Duration

	SweepInterval time.Duration
	SweepGrace    time.Duration

	ReadPollInterval time.Duration
	ReadBufferSize   int

	HealthInterval time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:      5 * time.Second,
		IOTimeout:           5 * time.Second,
		KeepAliveIdle:       30 * time.Second,
		KeepAliveInterval:   5 * time.Second,
		KeepAliveCount:      3,
		QueueSize:           1000,
		CommandInterval:     time.Millisecond,
		DefaultBaudRate:     9600,
		DefaultTimeout:      5 * time.Second,
		ReconnectAttempts:   3,
		ReconnectBackoff:    5 * time.Second,
		ReconnectBackoffMax: 15 * time.Second,
		WatchdogInterval:    time.Second,
		SweepInterval:       500 * time.Millisecond,
		SweepGrace:          500 * time.Millisecond,
		ReadPollInterval:    10 * time.Millisecond,
		ReadBufferSize:      256,
		HealthInterval:      5 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	if out.IOTimeout == 0 {
		out.IOTimeout = def.IOTimeout
	}
	if out.KeepAliveIdle == 0 {
		out.KeepAliveIdle = def.KeepAliveIdle
	}
	if out.KeepAliveInterval == 0 {
		out.KeepAliveInterval = def.KeepAliveInterval
	}
	if out.KeepAliveCount == 0 {
		out.KeepAliveCount = def.KeepAliveCount
	}
	if out.QueueSize == 0 {
		out.QueueSize = def.QueueSize
	}
	if out.CommandInterval == 0 {
		out.CommandInterval = def.CommandInterval
	}
	if out.DefaultBaudRate == 0 {
		out.DefaultBaudRate = def.DefaultBaudRate
	}
	if out.DefaultTimeout == 0 {
		out.DefaultTimeout = def.DefaultTimeout
	}
	if out.ReconnectAttempts == 0 {
		out.ReconnectAttempts = def.ReconnectAttempts
	}
	if out.ReconnectBackoff == 0 {
		out.ReconnectBackoff = def.ReconnectBackoff
	}
	if out.ReconnectBackoffMax == 0 {
		out.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if out.WatchdogInterval == 0 {
		out.WatchdogInterval = def.WatchdogInterval
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = def.SweepInterval
	}
	if out.SweepGrace == 0 {
		out.SweepGrace = def.SweepGrace
	}
	if out.ReadPollInterval == 0 {
		out.ReadPollInterval = def.ReadPollInterval
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = def.ReadBufferSize
	}
	if out.HealthInterval == 0 {
		out.HealthInterval = def.HealthInterval
	}
	return &out
}
