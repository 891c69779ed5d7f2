package config

import (
	"github.com/kbukum/pipefy/errors"
	"github.com/kbukum/pipefy/logger"
	"github.com/kbukum/pipefy/observability"
	"github.com/kbukum/pipefy/validation"
)

// Defaults applied by PipelineConfig.ApplyDefaults.
const (
	DefaultBufferSize  = 16
	DefaultEventBuffer = 64
	DefaultMaxFailures = 5
)

// PipelineConfig configures one pipeline.
type PipelineConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// ID overrides the generated pipeline ID.
	ID string `yaml:"id" mapstructure:"id" validate:"omitempty,uuid"`
	// PropagateErrors selects reconnect-and-continue instead of fail-fast.
	PropagateErrors bool `yaml:"propagate_errors" mapstructure:"propagate_errors"`
	// BufferSize is the capacity of each connection.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"gte=0,lte=65536"`
	// EventBuffer is the capacity of the event channel.
	EventBuffer int `yaml:"event_buffer" mapstructure:"event_buffer" validate:"gte=0,lte=65536"`

	Breaker   BreakerConfig        `yaml:"breaker" mapstructure:"breaker"`
	Logging   logger.Config        `yaml:"logging" mapstructure:"logging"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// BreakerConfig configures the reconnect breaker. The run fails as soon as
// MaxFailures consecutive errors hit one connection.
type BreakerConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	MaxFailures int  `yaml:"max_failures" mapstructure:"max_failures" validate:"gte=0"`
}

// ApplyDefaults fills unset fields.
func (c *PipelineConfig) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Breaker.Enabled && c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = DefaultMaxFailures
	}
	c.Logging.ApplyDefaults()
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}
	c.Telemetry.ApplyDefaults()
}

// Validate checks the struct tags and the logging section.
func (c *PipelineConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.InvalidConfig(err.Error()).WithCause(err)
	}
	return nil
}

// LoadPipelineConfig loads, defaults and validates the pipeline config
// named name.
func LoadPipelineConfig(name string, opts ...LoaderOption) (PipelineConfig, error) {
	cfg := PipelineConfig{Name: name}
	if err := LoadConfig(name, &cfg, opts...); err != nil {
		return PipelineConfig{}, errors.InvalidConfig("failed to load config").WithCause(err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}
