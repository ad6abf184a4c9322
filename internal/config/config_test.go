package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	assert.Equal(t, "gemini", cfg.GetLLM().Provider)
	assert.Equal(t, 60*time.Second, cfg.GetLLM().Timeout)
	assert.Equal(t, 70, cfg.GetDetection().Threshold)
	assert.False(t, cfg.GetExtractor().StripScriptContent)

	server := cfg.GetServer()
	assert.Equal(t, "X-Phishing-Score", server.Headers.Score)
	assert.Equal(t, 10026, server.PostfixPort)
	assert.True(t, server.HTTPEnabled)
	assert.True(t, server.MetricsEnabled)
	assert.Equal(t, "localhost:6379", cfg.GetString("cache.redis.address"))

	ttl, err := cfg.GetDuration("cache.ttl")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestGoogleEnvironmentVariables(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("GOOGLE_MODEL_NAME", "gemini-2.0-flash")

	gemini := NewFromViper(NewEmptyViper()).GetGemini()
	assert.Equal(t, "google-key", gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash", gemini.ModelName)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("PHISH_DETECTOR_GEMINI_API_KEY", "prefixed-key")
	t.Setenv("PHISH_DETECTOR_DETECTION_THRESHOLD", "55")

	cfg := NewFromViper(NewEmptyViper())
	assert.Equal(t, "prefixed-key", cfg.GetGemini().APIKey)
	assert.Equal(t, 55, cfg.GetDetection().Threshold)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phish.yaml")
	content := `
llm:
  provider: openai
openai:
  model_name: gpt-4o
detection:
  threshold: 80
  whitelisted_domains: [example.com, corp.example]
extractor:
  strip_script_content: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.GetLLM().Provider)
	assert.Equal(t, "gpt-4o", cfg.GetOpenAI().ModelName)
	assert.Equal(t, 80, cfg.GetDetection().Threshold)
	assert.Equal(t, []string{"example.com", "corp.example"}, cfg.GetDetection().WhitelistedDomains)
	assert.True(t, cfg.GetExtractor().StripScriptContent)
	// untouched keys keep their defaults
	assert.Equal(t, "us-east-1", cfg.GetBedrock().Region)
}

func TestNewFromFileMissing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
