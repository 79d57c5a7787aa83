package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON schema every config file must satisfy
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "queue": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "default_timeout_ms": {"type": "integer", "exclusiveMinimum": 0}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "pretty": {"type": "boolean"}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "addr": {"type": "string"}
      }
    },
    "tracing": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "service_name": {"type": "string"}
      }
    },
    "soak": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "schedule": {"type": "string"},
        "task_duration_ms": {"type": "integer", "minimum": 0},
        "task_timeout_ms": {"type": "integer", "minimum": 0},
        "duration_ms": {"type": "integer", "minimum": 0}
      }
    },
    "journal_file": {"type": "string"}
  }
}`

// CronParser accepts standard five-field specs, an optional leading seconds field and
// descriptors such as "@every 1s".
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validator validates configuration values
type Validator struct {
	schemaLoader gojsonschema.JSONLoader
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		schemaLoader: gojsonschema.NewStringLoader(Schema),
	}
}

// ValidateDocument checks a raw JSON config document against Schema
func (v *Validator) ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(v.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, err := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += err.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}

	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateTimeoutMs validates a default timeout, which must be positive
func (v *Validator) ValidateTimeoutMs(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("default timeout must be positive, got %d", ms)
	}
	return nil
}

// ValidateSchedule validates a soak producer schedule
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if _, err := CronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateAddr validates a host:port listen address
func (v *Validator) ValidateAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Queue.Name == "" {
		errors = append(errors, fmt.Errorf("queue name cannot be empty"))
	}
	if err := v.ValidateTimeoutMs(cfg.Queue.DefaultTimeoutMs); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Metrics.Enabled {
		if err := v.ValidateAddr(cfg.Metrics.Addr); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateSchedule(cfg.Soak.Schedule); err != nil {
		errors = append(errors, err)
	}
	if cfg.Soak.TaskDurationMs < 0 || cfg.Soak.TaskTimeoutMs < 0 || cfg.Soak.DurationMs < 0 {
		errors = append(errors, fmt.Errorf("soak durations cannot be negative"))
	}

	return errors
}
