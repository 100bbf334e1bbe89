package types

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	config, err := ParseConfig([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, DefaultTolerance, config.Compiler.Tolerance)
	assert.Equal(t, DefaultMaxRepairRounds, config.Compiler.MaxRepairRounds)
	assert.Equal(t, DefaultAdvisoryTimeout, config.Compiler.AdvisoryTimeout)
	assert.Equal(t, DefaultAdvisoryRetries, config.Compiler.AdvisoryRetries)
	assert.True(t, config.Compiler.GeneratedAssetJobsRequired())
	assert.Equal(t, DefaultParallelism, config.Dispatch.Parallelism)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
}

func TestParseConfigExpandsEnv(t *testing.T) {
	t.Setenv("MANIFESTC_TEST_KEY", "sk-test")

	config, err := ParseConfig([]byte(`
compiler:
  tolerance: 0.05
  advisory_timeout: 2s
  require_generated_asset_jobs: false
llm:
  enabled: true
  provider: anthropic
  anthropic:
    api_key: ${MANIFESTC_TEST_KEY}
servers:
  media:
    url: http://localhost:8080/mcp
    routes:
      image_generation: generate_image
  voice:
    command: ["uvx", "voice-server"]
`))
	require.NoError(t, err)

	assert.Equal(t, 0.05, config.Compiler.Tolerance)
	assert.Equal(t, 2*time.Second, config.Compiler.AdvisoryTimeout)
	assert.False(t, config.Compiler.GeneratedAssetJobsRequired())
	assert.Equal(t, "sk-test", config.LLM.Anthropic.APIKey)

	media := config.Servers["media"]
	assert.Equal(t, "media", media.Name)
	assert.Equal(t, "http", media.Transport)
	assert.Equal(t, "generate_image", media.Routes["image_generation"])
	assert.Equal(t, DefaultServerTimeout, media.Timeout)
	assert.Equal(t, "stdio", config.Servers["voice"].Transport)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compiler: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config")
}
