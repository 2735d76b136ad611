package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvGeminiKeys, "")
	t.Setenv(EnvGeminiKeysPrefix, "")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Empty(t, config.Gemini.APIKeys)
	assert.Equal(t, "gemini-2.0-flash", config.Gemini.Model)
	assert.Equal(t, 0.3, config.Gemini.Temperature)
	assert.Equal(t, 4096, config.Gemini.MaxOutputTokens)
	assert.Equal(t, 45, config.Gemini.RequestTimeout)
	assert.Equal(t, 5, config.Analysis.MinSuccesses)
	assert.Equal(t, 3000, config.Analysis.OverloadBackoff)
	assert.Equal(t, 1500, config.Analysis.TransportBackoff)
	assert.Equal(t, 60, config.Analysis.KeyResetMinutes)
	assert.Equal(t, []string{"json"}, config.Reporting.Formats)
	assert.Equal(t, "reports", config.Reporting.OutputDir)
	assert.Equal(t, 24, config.Cache.TTLHours)
}

func TestLoadConfig_FileValuesSurviveDefaults(t *testing.T) {
	t.Setenv(EnvGeminiKeys, "")
	t.Setenv(EnvGeminiKeysPrefix, "")

	path := writeTempConfig(t, `
gemini:
  api_keys:
    - file-key-1
    - file-key-2
  model: gemini-1.5-pro
  temperature: 0.7
analysis:
  min_successes: 7
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"file-key-1", "file-key-2"}, config.Gemini.APIKeys)
	assert.Equal(t, "gemini-1.5-pro", config.Gemini.Model)
	assert.Equal(t, 0.7, config.Gemini.Temperature)
	assert.Equal(t, 7, config.Analysis.MinSuccesses)
	// Untouched fields still get their defaults.
	assert.Equal(t, 4096, config.Gemini.MaxOutputTokens)
}

func TestLoadConfig_EnvCredentialsWinOverFile(t *testing.T) {
	t.Setenv(EnvGeminiKeys, "env-key-1 , env-key-2,,")
	t.Setenv(EnvGeminiKeysPrefix, "")

	path := writeTempConfig(t, `
gemini:
  api_keys:
    - file-key
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-key-1", "env-key-2"}, config.Gemini.APIKeys)
}

func TestLoadConfig_PrefixedEnvIsFallback(t *testing.T) {
	t.Setenv(EnvGeminiKeys, "")
	t.Setenv(EnvGeminiKeysPrefix, "alt-key")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"alt-key"}, config.Gemini.APIKeys)
}

func TestLoadConfig_PlaceholderCredentialsDropped(t *testing.T) {
	t.Setenv(EnvGeminiKeys, "your-api-key,changeme,real-key,XXX")
	t.Setenv(EnvGeminiKeysPrefix, "")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"real-key"}, config.Gemini.APIKeys)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "gemini: [not: valid")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestFilterCredentials(t *testing.T) {
	keys := FilterCredentials([]string{" k1 ", "", "your_api_key", "k2", "..."})
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

// A key listed twice must occupy one pool slot, not two.
func TestFilterCredentials_Dedupes(t *testing.T) {
	keys := FilterCredentials([]string{"k1", "k2", "k1", " k2 "})
	assert.Equal(t, []string{"k1", "k2"}, keys)

	assert.Nil(t, FilterCredentials([]string{"", "changeme"}))
}

func TestLoadConfig_EnvCredentialsDeduped(t *testing.T) {
	t.Setenv(EnvGeminiKeys, "k1,k1,k2,k1")
	t.Setenv(EnvGeminiKeysPrefix, "")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, config.Gemini.APIKeys)
}
