package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/manifest"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const treatment = `Title: Morning Routine
Scene 1: Sunrise over the city skyline.
Scene 2: A cup of coffee steaming on the table.
Scene 3: Subscribe for more calm mornings.`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSchemaCommand(t *testing.T) {
	out, err := runCLI(t, "", "schema")
	require.NoError(t, err)
	assert.Equal(t, manifest.SchemaID, gjson.Get(out, "$id").String())
	assert.Equal(t, "ProductionManifest", gjson.Get(out, "title").String())
}

func TestCompileCommandJSON(t *testing.T) {
	path := writeFile(t, "treatment.txt", treatment)

	out, err := runCLI(t, "", "compile", path, "--duration", "15", "--platform", "tiktok")
	require.NoError(t, err)

	require.True(t, gjson.Valid(out))
	assert.True(t, gjson.Get(out, "success").Bool())
	assert.False(t, gjson.Get(out, "fallback").Bool())
	assert.Equal(t, 15.0, gjson.Get(out, "manifest.metadata.durationSeconds").Float())
	assert.Equal(t, "tiktok", gjson.Get(out, "manifest.metadata.platform").String())
	assert.Equal(t, "9:16", gjson.Get(out, "manifest.metadata.aspectRatio").String())
	assert.EqualValues(t, 3, gjson.Get(out, "manifest.scenes.#").Int())

	jobs := gjson.Get(out, "jobs").Array()
	require.NotEmpty(t, jobs)
	assert.Equal(t, "render_final", jobs[len(jobs)-1].Get("id").String())
}

func TestCompileCommandSummaryFromStdin(t *testing.T) {
	out, err := runCLI(t, treatment, "compile", "--summary", "--hint", `{"platform":"youtube"}`)
	require.NoError(t, err)

	assert.Contains(t, out, "scene_001")
	assert.Contains(t, out, "render_final")
	assert.Contains(t, out, "path: start -> ")
}

func TestCompileCommandRejectsBadFlags(t *testing.T) {
	path := writeFile(t, "treatment.txt", treatment)

	_, err := runCLI(t, "", "compile", path, "--platform", "myspace")
	assert.ErrorContains(t, err, `unknown platform "myspace"`)

	_, err = runCLI(t, "", "compile", path, "--hint", "{not json")
	assert.ErrorContains(t, err, "hint is not valid JSON")
}

func TestCompileThenValidate(t *testing.T) {
	path := writeFile(t, "treatment.txt", treatment)
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")

	_, err := runCLI(t, "", "compile", path, "--duration", "15", "--out", manifestPath)
	require.NoError(t, err)

	out, err := runCLI(t, "", "validate", manifestPath, "--final")
	require.NoError(t, err)
	assert.Contains(t, out, "manifest is valid")
}

func TestValidateCommandReportsAndRepairs(t *testing.T) {
	path := writeFile(t, "treatment.txt", treatment)
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	_, err := runCLI(t, "", "compile", path, "--duration", "15", "--out", manifestPath)
	require.NoError(t, err)

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	broken, err := sjson.SetBytes(data, "scenes.0.durationSeconds", 30)
	require.NoError(t, err)
	brokenPath := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(brokenPath, broken, 0o644))

	out, err := runCLI(t, "", "validate", brokenPath, "--json")
	assert.ErrorIs(t, err, errInvalidManifest)
	assert.False(t, gjson.Get(out, "valid").Bool())
	assert.Contains(t, gjson.Get(out, "violations.#.rule").String(), "duration.sum")

	fixedPath := filepath.Join(dir, "fixed.json")
	out, err = runCLI(t, "", "validate", brokenPath, "--repair", "--final", "--out", fixedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "fixed: rescaled 3 scenes to 15.00s")

	fixed, err := manifest.Load(fixedPath)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, fixed.TotalSceneDuration(), 0.01)
	assert.NotEmpty(t, fixed.Jobs)
}

func TestValidateCommandSchemaFailure(t *testing.T) {
	path := writeFile(t, "bad.json", `{"scenes": 3}`)

	out, err := runCLI(t, "", "validate", path)
	assert.ErrorIs(t, err, errInvalidManifest)
	assert.Contains(t, out, "field is required")
	assert.Contains(t, out, "expected array")
	assert.NotContains(t, out, "manifest is valid")
}

func TestRunCommandNeedsServers(t *testing.T) {
	path := writeFile(t, "treatment.txt", treatment)
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	_, err := runCLI(t, "", "compile", path, "--out", manifestPath)
	require.NoError(t, err)

	config := writeFile(t, "manifestc.yaml", "logging:\n  level: error\n")
	_, err = runCLI(t, "", "--config", config, "run", manifestPath)
	assert.EqualError(t, err, "no MCP servers configured")
}

func TestCreateLLMProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  types.LLMConfig
		want    string
		wantErr string
	}{
		{name: "anthropic alias", config: types.LLMConfig{Provider: "claude"}, want: "anthropic"},
		{name: "gemini alias", config: types.LLMConfig{Provider: "gemini"}, want: "gemini"},
		{name: "openai", config: types.LLMConfig{Provider: "openai"}, want: "openai"},
		{name: "openrouter", config: types.LLMConfig{Provider: "openrouter"}, want: "openrouter"},
		{name: "missing", config: types.LLMConfig{}, wantErr: "llm.provider not specified in config"},
		{name: "unknown", config: types.LLMConfig{Provider: "llama"}, wantErr: "unsupported LLM provider: llama"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := createLLMProvider(tt.config)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
			// No API keys are configured, so every provider stays disabled.
			assert.False(t, p.IsEnabled())
		})
	}
}

func TestCompilerOptionsWithoutKeysStayDeterministic(t *testing.T) {
	options, err := compilerOptions(types.LLMConfig{
		Enabled:  true,
		Provider: "openai",
		Extract:  true,
		Repair:   true,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, options, 1)

	_, err = compilerOptions(types.LLMConfig{Enabled: true, Provider: "llama"}, zap.NewNop())
	assert.Error(t, err)
}
