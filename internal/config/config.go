// Package config loads and validates the spiralmem configuration.
//
// Configuration is resolved in priority order:
//  1. Environment variables (SPIRALMEM_*) - highest priority
//  2. Explicit config file passed via --config
//  3. ~/.spiralmem/config.yaml
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete spiralmem configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Video      VideoConfig      `yaml:"video" json:"video"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Platform   PlatformConfig   `yaml:"platform" json:"platform"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// DatabaseConfig configures the SQLite store and sibling data directories.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" json:"path"`
	// CacheMB is the SQLite page cache size in MB (default: 64).
	CacheMB int `yaml:"cache_mb" json:"cache_mb"`
}

// VideoConfig configures the ingestion pipeline and media tools.
type VideoConfig struct {
	// OutputDirectory is the root for audio/, transcripts/, frames/,
	// thumbnails/ and temp/ artifacts. Defaults to the database directory.
	OutputDirectory string `yaml:"output_directory" json:"output_directory"`
	// FFmpegPath overrides ffmpeg discovery on PATH.
	FFmpegPath string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	// FFprobePath overrides ffprobe discovery on PATH.
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path"`
	// WhisperPath overrides whisper discovery on PATH.
	WhisperPath string `yaml:"whisper_path" json:"whisper_path"`
	// WhisperModel selects the speech-recognition model (default: base).
	WhisperModel string `yaml:"whisper_model" json:"whisper_model"`
	// MaxConcurrentFFmpeg caps parallel ffmpeg invocations (default: 2).
	MaxConcurrentFFmpeg int `yaml:"max_concurrent_ffmpeg" json:"max_concurrent_ffmpeg"`
	// ChunkSize is the transcript chunk size in characters (default: 400).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap window in characters (default: 80).
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Enabled turns dense embeddings on (default: true, soft-fails when
	// the provider is unreachable).
	Enabled bool `yaml:"enabled" json:"enabled"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Model is the embedding model name (default: nomic-embed-text).
	Model string `yaml:"model" json:"model"`
	// Dimensions is the embedding dimension; 0 auto-detects.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request (default: 32).
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// SearchConfig configures hybrid search defaults.
type SearchConfig struct {
	// VectorWeight is the hybrid weight for vector similarity (default: 0.3).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// KeywordWeight is the hybrid weight for keyword scoring (default: 0.7).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	// SimilarityThreshold is the vector-only cutoff (default: 0.7).
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	// HybridThreshold is the vector cutoff inside hybrid search (default: 0.6).
	HybridThreshold float64 `yaml:"hybrid_threshold" json:"hybrid_threshold"`
	// MaxResults caps result counts (default: 100).
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// PlatformConfig configures platform downloaders.
type PlatformConfig struct {
	// YtDlpPath overrides yt-dlp discovery on PATH.
	YtDlpPath string `yaml:"ytdlp_path" json:"ytdlp_path"`
	// YouTubeAPIKey enables the YouTube Data API for channel discovery.
	// Usually supplied via the YOUTUBE_API_KEY environment variable.
	YouTubeAPIKey string `yaml:"youtube_api_key" json:"youtube_api_key"`
	// DownloadQuality is the preferred download height (default: 720).
	DownloadQuality int `yaml:"download_quality" json:"download_quality"`
	// MaxDownloadSizeMB caps single-video downloads (default: 500).
	MaxDownloadSizeMB int `yaml:"max_download_size_mb" json:"max_download_size_mb"`
	// MaxDownloadDuration caps single-video download length (default: 1h).
	MaxDownloadDuration time.Duration `yaml:"max_download_duration" json:"max_download_duration"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// DefaultDataDir returns the default data directory (~/.spiralmem).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".spiralmem")
	}
	return filepath.Join(home, ".spiralmem")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Default returns the built-in default configuration.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Version: 1,
		Database: DatabaseConfig{
			Path:    filepath.Join(dataDir, "spiralmem.db"),
			CacheMB: 64,
		},
		Video: VideoConfig{
			OutputDirectory:     dataDir,
			WhisperModel:        "base",
			MaxConcurrentFFmpeg: 2,
			ChunkSize:           400,
			ChunkOverlap:        80,
		},
		Embeddings: EmbeddingsConfig{
			Enabled:    true,
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			BatchSize:  32,
			Timeout:    60 * time.Second,
		},
		Search: SearchConfig{
			VectorWeight:        0.3,
			KeywordWeight:       0.7,
			SimilarityThreshold: 0.7,
			HybridThreshold:     0.6,
			MaxResults:          100,
		},
		Platform: PlatformConfig{
			DownloadQuality:     720,
			MaxDownloadSizeMB:   500,
			MaxDownloadDuration: time.Hour,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads the configuration from path, falling back to defaults for any
// unset field. An empty path tries the default location; a missing default
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPIRALMEM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SPIRALMEM_OUTPUT_DIR"); v != "" {
		cfg.Video.OutputDirectory = v
	}
	if v := os.Getenv("SPIRALMEM_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SPIRALMEM_EMBED_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("SPIRALMEM_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.VectorWeight = f
		}
	}
	if v := os.Getenv("SPIRALMEM_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.KeywordWeight = f
		}
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.Platform.YouTubeAPIKey = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be in [0,1], got %g", c.Search.VectorWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be in [0,1], got %g", c.Search.KeywordWeight)
	}
	if c.Search.VectorWeight == 0 && c.Search.KeywordWeight == 0 {
		return fmt.Errorf("search weights must not both be zero")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search.similarity_threshold must be in [0,1], got %g", c.Search.SimilarityThreshold)
	}
	if c.Video.ChunkOverlap >= c.Video.ChunkSize {
		return fmt.Errorf("video.chunk_overlap (%d) must be smaller than video.chunk_size (%d)",
			c.Video.ChunkOverlap, c.Video.ChunkSize)
	}
	if c.Video.MaxConcurrentFFmpeg <= 0 {
		c.Video.MaxConcurrentFFmpeg = 2
	}
	return nil
}

// DataDir returns the artifact root directory.
func (c *Config) DataDir() string {
	if c.Video.OutputDirectory != "" {
		return c.Video.OutputDirectory
	}
	return filepath.Dir(c.Database.Path)
}

// AudioDir returns the extracted-audio directory.
func (c *Config) AudioDir() string { return filepath.Join(c.DataDir(), "audio") }

// TranscriptsDir returns the transcript JSON directory.
func (c *Config) TranscriptsDir() string { return filepath.Join(c.DataDir(), "transcripts") }

// FramesDir returns the sampled-frames directory.
func (c *Config) FramesDir() string { return filepath.Join(c.DataDir(), "frames") }

// ThumbnailsDir returns the thumbnail directory.
func (c *Config) ThumbnailsDir() string { return filepath.Join(c.DataDir(), "thumbnails") }

// TempDir returns the scratch directory for downloads.
func (c *Config) TempDir() string { return filepath.Join(c.DataDir(), "temp") }

// EnsureDirs creates all artifact directories.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(c.Database.Path),
		c.AudioDir(), c.TranscriptsDir(), c.FramesDir(), c.ThumbnailsDir(), c.TempDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
