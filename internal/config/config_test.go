package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithDefaults_MissingFileFallsBack(t *testing.T) {
	loader := NewLoader(NewValidator())

	cfg, err := loader.LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
orchestrator:
  max_task_retries: 4
  reflection_threshold: 0.5
bus:
  queue_size: 64
protocol:
  retry_attempts: 5
  retry_backoff: 250ms
llm:
  name: ollama
  default_model: llama3
`)

	loader := NewLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Orchestrator.MaxTaskRetries)
	assert.Equal(t, 0.5, cfg.Orchestrator.ReflectionThreshold)
	assert.Equal(t, 64, cfg.Bus.QueueSize)
	assert.Equal(t, 5, cfg.Protocol.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Protocol.RetryBackoff)
	assert.Equal(t, "ollama", cfg.LLM.Name)
	assert.Equal(t, "llama3", cfg.LLM.DefaultModel)

	// Untouched sections keep their defaults.
	assert.Equal(t, 2, cfg.Orchestrator.MaxReplanAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvironmentInterpolation(t *testing.T) {
	t.Setenv("FLEET_TEST_API_KEY", "sk-test-123")

	path := writeConfigFile(t, `
llm:
  name: openai
  api_key: ${FLEET_TEST_API_KEY}
  base_url: ${FLEET_TEST_UNSET_URL}
`)

	loader := NewLoader(NewValidator())
	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	// Unset variables keep the placeholder.
	assert.Equal(t, "${FLEET_TEST_UNSET_URL}", cfg.LLM.BaseURL)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "queue size below minimum",
			content: "bus:\n  queue_size: 0\n",
			want:    "bus.queue_size",
		},
		{
			name:    "reflection threshold above one",
			content: "orchestrator:\n  reflection_threshold: 1.5\n",
			want:    "orchestrator.reflection_threshold",
		},
		{
			name:    "unknown log level",
			content: "logging:\n  level: loud\n",
			want:    "logging.level",
		},
		{
			name:    "negative backoff",
			content: "protocol:\n  retry_backoff: -1s\n",
			want:    "protocol.retry_backoff",
		},
	}

	loader := NewLoader(NewValidator())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(writeConfigFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	loader := NewLoader(NewValidator())
	_, err := loader.Load(writeConfigFile(t, "orchestrator: [not, a, map\n"))
	assert.Error(t, err)
}

func TestValidate_NilConfig(t *testing.T) {
	err := NewValidator().Validate(nil)
	assert.Error(t, err)
}
