// Package config loads and validates filesense configuration.
//
// Configuration hierarchy, lowest priority first:
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (filesense.yaml in the data dir or an explicit path)
//  3. Environment variables (FILESENSE_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete filesense configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the WebSocket listener.
type ServerConfig struct {
	// ListenAddr is the host:port the WebSocket server binds to.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// SessionQueueSize is the per-session outbound event queue length.
	SessionQueueSize int `yaml:"session_queue_size" json:"session_queue_size"`
}

// PathsConfig configures data locations and initial watched folders.
type PathsConfig struct {
	// DataDir is where the catalog database and vector index live.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Folders are watched at startup, before any client connects.
	Folders []string `yaml:"folders" json:"folders"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name (ollama only).
	Model string `yaml:"model" json:"model"`
	// Dimensions is the fixed embedding dimensionality D.
	// 0 means use the provider's default.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Timeout bounds a single embedding call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CacheSize is the LRU embedding cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// WatchConfig configures filesystem watching.
type WatchConfig struct {
	// Debounce is the window within which events for one path coalesce.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
	// EventBufferSize is the watch event channel buffer.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`
	// MaxFileSize is the largest file the indexer will read, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// DefaultLimit is used when a query omits or zeroes the limit.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// MaxLimit caps the result count regardless of the requested limit.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// LoggingConfig configures the log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Defaults.
const (
	DefaultListenAddr       = "127.0.0.1:8765"
	DefaultSessionQueueSize = 64
	DefaultDebounce         = 200 * time.Millisecond
	DefaultEventBufferSize  = 1000
	DefaultMaxFileSize      = 10 * 1024 * 1024
	DefaultSearchLimit      = 20
	DefaultMaxSearchLimit   = 100
	DefaultEmbedTimeout     = 30 * time.Second
	DefaultEmbedCacheSize   = 1000
)

// CurrentVersion is the config schema version.
const CurrentVersion = 1

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			ListenAddr:       DefaultListenAddr,
			SessionQueueSize: DefaultSessionQueueSize,
		},
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			Timeout:   DefaultEmbedTimeout,
			CacheSize: DefaultEmbedCacheSize,
		},
		Watch: WatchConfig{
			Debounce:        DefaultDebounce,
			EventBufferSize: DefaultEventBufferSize,
			MaxFileSize:     DefaultMaxFileSize,
		},
		Search: SearchConfig{
			DefaultLimit: DefaultSearchLimit,
			MaxLimit:     DefaultMaxSearchLimit,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns ~/.filesense, falling back to the temp dir.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".filesense")
	}
	return filepath.Join(home, ".filesense")
}

// Load reads configuration from the given path (optional) and applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = filepath.Join(cfg.Paths.DataDir, "filesense.yaml")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies FILESENSE_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("FILESENSE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("FILESENSE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("FILESENSE_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("FILESENSE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("FILESENSE_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("FILESENSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Server.SessionQueueSize <= 0 {
		c.Server.SessionQueueSize = DefaultSessionQueueSize
	}
	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be \"ollama\" or \"static\", got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Timeout <= 0 {
		c.Embeddings.Timeout = DefaultEmbedTimeout
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}
	if c.Watch.EventBufferSize <= 0 {
		c.Watch.EventBufferSize = DefaultEventBufferSize
	}
	if c.Watch.MaxFileSize <= 0 {
		c.Watch.MaxFileSize = DefaultMaxFileSize
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = DefaultSearchLimit
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		c.Search.MaxLimit = DefaultMaxSearchLimit
	}
	return nil
}

// Save writes the config as YAML to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
