// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bridge-service/internal/bridge"
)

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// BridgeConfig represents the bridge client configuration
type BridgeConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	IOTimeout      time.Duration `mapstructure:"io_timeout"`

	KeepAliveIdle     time.Duration `mapstructure:"keepalive_idle"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	KeepAliveCount    int           `mapstructure:"keepalive_count"`

	QueueSize       int           `mapstructure:"queue_size"`
	CommandInterval time.Duration `mapstructure:"command_interval"`
	DefaultBaudRate int           `mapstructure:"default_baud_rate"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	ReconnectAttempts   int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff    time.Duration `mapstructure:"reconnect_backoff"`
	ReconnectBackoffMax time.Duration `mapstructure:"reconnect_backoff_max"`
	WatchdogInterval    time.Duration `mapstructure:"watchdog_interval"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepGrace    time.Duration `mapstructure:"sweep_grace"`

	ReadPollInterval time.Duration `mapstructure:"read_poll_interval"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`

	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Environment variable support
	viper.SetEnvPrefix("BRIDGE_SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file; a missing file means defaults plus environment
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "bridge-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8086")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// Bridge defaults
	viper.SetDefault("bridge.host", "localhost")
	viper.SetDefault("bridge.port", 8888)
	viper.SetDefault("bridge.connect_timeout", "5s")
	viper.SetDefault("bridge.io_timeout", "5s")
	viper.SetDefault("bridge.keepalive_idle", "30s")
	viper.SetDefault("bridge.keepalive_interval", "5s")
	viper.SetDefault("bridge.keepalive_count", 3)
	viper.SetDefault("bridge.queue_size", 1000)
	viper.SetDefault("bridge.command_interval", "1ms")
	viper.SetDefault("bridge.default_baud_rate", 9600)
	viper.SetDefault("bridge.default_timeout", "5s")
	viper.SetDefault("bridge.reconnect_attempts", 3)
	viper.SetDefault("bridge.reconnect_backoff", "5s")
	viper.SetDefault("bridge.reconnect_backoff_max", "15s")
	viper.SetDefault("bridge.watchdog_interval", "1s")
	viper.SetDefault("bridge.sweep_interval", "500ms")
	viper.SetDefault("bridge.sweep_grace", "500ms")
	viper.SetDefault("bridge.read_poll_interval", "10ms")
	viper.SetDefault("bridge.read_buffer_size", 256)
	viper.SetDefault("bridge.health_interval", "5s")
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Bridge.Host == "" {
		return fmt.Errorf("bridge.host is required")
	}
	if config.Bridge.Port <= 0 || config.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be a valid TCP port")
	}
	if config.Bridge.QueueSize <= 0 {
		return fmt.Errorf("bridge.queue_size must be positive")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ClientConfig converts the bridge section into the client's tunables
func (c *Config) ClientConfig() *bridge.Config {
	return &bridge.Config{
		ConnectTimeout:      c.Bridge.ConnectTimeout,
		IOTimeout:           c.Bridge.IOTimeout,
		KeepAliveIdle:       c.Bridge.KeepAliveIdle,
		KeepAliveInterval:   c.Bridge.KeepAliveInterval,
		KeepAliveCount:      c.Bridge.KeepAliveCount,
		QueueSize:           c.Bridge.QueueSize,
		CommandInterval:     c.Bridge.CommandInterval,
		DefaultBaudRate:     c.Bridge.DefaultBaudRate,
		DefaultTimeout:      c.Bridge.DefaultTimeout,
		ReconnectAttempts:   c.Bridge.ReconnectAttempts,
		ReconnectBackoff:    c.Bridge.ReconnectBackoff,
		ReconnectBackoffMax: c.Bridge.ReconnectBackoffMax,
		WatchdogInterval:    c.Bridge.WatchdogInterval,
		SweepInterval:       c.Bridge.SweepInterval,
		SweepGrace:          c.Bridge.SweepGrace,
		ReadPollInterval:    c.Bridge.ReadPollInterval,
		ReadBufferSize:      c.Bridge.ReadBufferSize,
		HealthInterval:      c.Bridge.HealthInterval,
	}
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
