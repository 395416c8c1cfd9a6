package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, "https://ollama.com/api/chat", cfg.Completion.Endpoint)
	require.Equal(t, "deepseek-v3.1:671b-cloud", cfg.Completion.DefaultModel)
	require.Contains(t, cfg.Completion.Models, cfg.Completion.DefaultModel)
	require.Equal(t, 3, cfg.Transport.MaxAttempts)
	require.Equal(t, 1500, cfg.Transport.BackoffMS)
	require.Equal(t, 20, cfg.Search.MaxResults)
	require.Len(t, cfg.Search.Web.Relays, 3)
	require.False(t, cfg.Search.Cache.Enabled)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
completion:
  default_model: glm-4.6:cloud
search:
  max_results: 7
  web:
    relays:
      - https://relay.example/?u=
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("OLLAMA_CLOUD_API_KEY", "secret-key")
	t.Setenv("LORPH_TRANSPORT_MAX_ATTEMPTS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "glm-4.6:cloud", cfg.Completion.DefaultModel)
	require.Equal(t, 7, cfg.Search.MaxResults)
	require.Equal(t, []string{"https://relay.example/?u="}, cfg.Search.Web.Relays)
	require.Equal(t, "secret-key", cfg.Completion.APIKey)
	require.Equal(t, 5, cfg.Transport.MaxAttempts)
	// untouched keys keep their defaults
	require.Equal(t, 0.9, cfg.Completion.TopP)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
