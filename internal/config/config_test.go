package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWeights(t *testing.T) {
	weights := DefaultWeights()

	assert.InDelta(t, 0.4, weights["full_text"], 1e-9)
	assert.InDelta(t, 0.3, weights["skills"], 1e-9)
	assert.InDelta(t, 0.2, weights["experience"], 1e-9)
	assert.InDelta(t, 0.1, weights["education"], 1e-9)

	var total float64
	for _, w := range weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 7, cfg.Suggestion.MaxSuggestions)
	assert.Equal(t, "job_vectors", cfg.Qdrant.Collection)
	assert.NotEmpty(t, cfg.RabbitMQ.SuggestionQueue)
	assert.NotEmpty(t, cfg.Matching.Weights)
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
server:
  address: ":9090"
embedding:
  model: custom-embedding
matching:
  weights:
    full_text: 0.5
    skills: 0.5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "custom-embedding", cfg.Embedding.Model)
	assert.InDelta(t, 0.5, cfg.Matching.Weights["skills"], 1e-9)

	// Unset fields fall back to defaults.
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 7, cfg.Suggestion.MaxSuggestions)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test-override")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: from-file\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-override", cfg.LLM.APIKey)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("garbage", time.Minute))
}
