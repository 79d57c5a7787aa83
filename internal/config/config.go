package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the seqqueue tool configuration
type Config struct {
	// Queue
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Soak producer
	Soak SoakConfig `json:"soak" mapstructure:"soak"`

	// Lifecycle journal file, empty disables it
	JournalFile string `json:"journal_file" mapstructure:"journal_file"`
}

// QueueConfig holds queue construction settings
type QueueConfig struct {
	Name             string `json:"name" mapstructure:"name"`
	DefaultTimeoutMs int    `json:"default_timeout_ms" mapstructure:"default_timeout_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// SoakConfig drives the cron-scheduled synthetic producer
type SoakConfig struct {
	Schedule       string `json:"schedule" mapstructure:"schedule"` // robfig/cron spec, optional seconds field
	TaskDurationMs int    `json:"task_duration_ms" mapstructure:"task_duration_ms"`
	TaskTimeoutMs  int    `json:"task_timeout_ms" mapstructure:"task_timeout_ms"` // 0 means queue default
	DurationMs     int    `json:"duration_ms" mapstructure:"duration_ms"`         // 0 means until interrupted
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Name:             "default",
			DefaultTimeoutMs: 3000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "seqqueue",
		},
		Soak: SoakConfig{
			Schedule:       "@every 1s",
			TaskDurationMs: 200,
		},
	}
}

// DefaultTimeout returns the queue default timeout as a duration
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Queue.DefaultTimeoutMs) * time.Millisecond
}

// String returns a JSON rendering of the config
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
