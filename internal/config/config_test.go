package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versefinder/internal/oracle"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Oracle.APIKeyEnv)
	assert.Equal(t, 800, cfg.Oracle.DelayMillis)
	assert.Equal(t, 1, cfg.Search.FastAfter)
	assert.Equal(t, 3, cfg.Search.PreciseBefore)
	assert.Equal(t, 7, cfg.Ranking.HighThreshold)
	assert.Equal(t, oracle.DefaultPrices, cfg.Oracle.Prices)
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versefinder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
corpus:
  path: /data/kr38.json
oracle:
  provider: openai
search:
  fast_before: 0
  fast_after: 0
keywords:
  strategy: validate
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/kr38.json", cfg.Corpus.Path)
	assert.Equal(t, "fi", cfg.Corpus.Language)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Oracle.APIKeyEnv)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Oracle.BaseURL)
	assert.Equal(t, 0, cfg.Search.FastAfter, "explicit zero window is kept")
	assert.Equal(t, 3, cfg.Search.PreciseAfter)
	assert.Equal(t, "validate", cfg.Keywords.Strategy)
	assert.Equal(t, "fi", cfg.Keywords.SuffixPolicy)
	assert.Equal(t, 60, cfg.Relevance.BatchSize)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpus: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Report.Footer = "next steps"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "versefinder", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
}
