package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 400, cfg.Video.ChunkSize)
	assert.Equal(t, 80, cfg.Video.ChunkOverlap)
	assert.InDelta(t, 0.3, cfg.Search.VectorWeight, 1e-9)
	assert.InDelta(t, 0.7, cfg.Search.KeywordWeight, 1e-9)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  path: /tmp/custom.db
video:
  chunk_size: 600
  chunk_overlap: 120
search:
  vector_weight: 0.5
  keyword_weight: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 600, cfg.Video.ChunkSize)
	assert.InDelta(t, 0.5, cfg.Search.VectorWeight, 1e-9)
	// Untouched fields keep defaults.
	assert.Equal(t, "base", cfg.Video.WhisperModel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPIRALMEM_OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("YOUTUBE_API_KEY", "test-key")
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embeddings.OllamaHost)
	assert.Equal(t, "test-key", cfg.Platform.YouTubeAPIKey)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"vector weight out of range", func(c *Config) { c.Search.VectorWeight = 1.5 }},
		{"both weights zero", func(c *Config) { c.Search.VectorWeight = 0; c.Search.KeywordWeight = 0 }},
		{"overlap >= chunk size", func(c *Config) { c.Video.ChunkOverlap = 400 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDataDirs(t *testing.T) {
	cfg := Default()
	cfg.Video.OutputDirectory = "/data/spiralmem"

	assert.Equal(t, "/data/spiralmem/audio", cfg.AudioDir())
	assert.Equal(t, "/data/spiralmem/transcripts", cfg.TranscriptsDir())
	assert.Equal(t, "/data/spiralmem/temp", cfg.TempDir())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := Default()
	cfg.Video.ChunkSize = 512
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, loaded.Video.ChunkSize)
}
