package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	v := NewValidator()

	t.Run("valid document", func(t *testing.T) {
		doc := `{"queue": {"name": "orders", "default_timeout_ms": 500}, "logging": {"level": "debug"}}`
		assert.NoError(t, v.ValidateDocument([]byte(doc)))
	})

	t.Run("empty document", func(t *testing.T) {
		assert.NoError(t, v.ValidateDocument([]byte(`{}`)))
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		err := v.ValidateDocument([]byte(`{"queue": {"default_timeout_ms": 0}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation errors")
	})

	t.Run("unknown field", func(t *testing.T) {
		err := v.ValidateDocument([]byte(`{"workers": 4}`))
		assert.Error(t, err)
	})

	t.Run("bad log level", func(t *testing.T) {
		err := v.ValidateDocument([]byte(`{"logging": {"level": "verbose"}}`))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		err := v.ValidateDocument([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
	assert.Error(t, v.ValidateLogLevel(""))
}

func TestValidateTimeoutMs(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTimeoutMs(1))
	assert.Error(t, v.ValidateTimeoutMs(0))
	assert.Error(t, v.ValidateTimeoutMs(-5))
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"@every 1s", false},
		{"*/5 * * * * *", false},
		{"0 * * * *", false},
		{"", true},
		{"every second", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := v.ValidateSchedule(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Queue.Name = ""
		cfg.Queue.DefaultTimeoutMs = 0
		cfg.Logging.Level = "loud"
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = "nope"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 4)
	})

	t.Run("metrics address ignored when disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.Addr = "nope"
		assert.Empty(t, v.ValidateConfig(cfg))
	})
}
