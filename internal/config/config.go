package config

import (
	"time"

	"github.com/agentive-ai/fleet/internal/llm"
)

// Config is the top-level runtime configuration.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Bus          BusConfig          `mapstructure:"bus" yaml:"bus"`
	Protocol     ProtocolConfig     `mapstructure:"protocol" yaml:"protocol"`
	LLM          llm.ProviderConfig `mapstructure:"llm" yaml:"llm"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// OrchestratorConfig carries the execution loop tunables.
type OrchestratorConfig struct {
	// MaxTaskRetries is how many immediate retries a failed step gets.
	MaxTaskRetries int `mapstructure:"max_task_retries" yaml:"max_task_retries" validate:"min=0,max=10"`

	// MaxReplanAttempts bounds how many times a blocked run is replanned.
	MaxReplanAttempts int `mapstructure:"max_replan_attempts" yaml:"max_replan_attempts" validate:"min=0,max=10"`

	// ReflectionThreshold is the completion ratio below which failures
	// stop an execution attempt for replanning.
	ReflectionThreshold float64 `mapstructure:"reflection_threshold" yaml:"reflection_threshold" validate:"min=0,max=1"`

	// MaxParallel caps concurrent parallel-flagged steps.
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel" validate:"min=1"`
}

// BusConfig carries message bus tunables.
type BusConfig struct {
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"min=1"`
}

// ProtocolConfig carries send retry tunables.
type ProtocolConfig struct {
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts" validate:"min=1,max=10"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultConfig returns the built-in defaults, used when no config file
// exists and as the base for partial files.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxTaskRetries:      2,
			MaxReplanAttempts:   2,
			ReflectionThreshold: 0.7,
			MaxParallel:         5,
		},
		Bus: BusConfig{
			QueueSize: 256,
		},
		Protocol: ProtocolConfig{
			RetryAttempts: 3,
			RetryBackoff:  time.Second,
		},
		LLM: llm.ProviderConfig{
			Name:        "openai",
			Temperature: 0.2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
