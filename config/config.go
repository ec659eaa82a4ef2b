package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"recall/internal/domain"
)

// Embedding modes. Manual only changes the index when a rebuild or
// update is explicitly triggered; automatic indexes every document save.
const (
	ModeManual    = "manual"
	ModeAutomatic = "automatic"
)

// Config holds all retrieval tunables. It is an immutable value object
// supplied wholesale by the caller on every operation; defaults are
// applied once at load time, never inside scoring code.
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	BM25      BM25Config      `yaml:"bm25"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig identifies the corpus and where its documents live.
type CorpusConfig struct {
	ID       string   `yaml:"id"`
	Path     string   `yaml:"path"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// ChunkingConfig bounds chunk sizes in characters.
type ChunkingConfig struct {
	MaxChars     int `yaml:"max_chars"`
	MinChars     int `yaml:"min_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// BM25Config holds the Okapi BM25 parameters.
type BM25Config struct {
	K1       float64 `yaml:"k1"`
	B        float64 `yaml:"b"`
	TopK     int     `yaml:"top_k"`
	Stemming bool    `yaml:"stemming"`
}

// EmbeddingConfig selects the embedding provider and semantic-search
// parameters. The API key is resolved from the named environment
// variable, never stored in the file.
type EmbeddingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Mode           string  `yaml:"mode"`        // "manual" or "automatic"
	Provider       string  `yaml:"provider"`    // "openai", "ollama", "groq", "custom", "mock"
	Model          string  `yaml:"model"`       // e.g. "text-embedding-3-small"
	BaseURL        string  `yaml:"base_url"`    // for ollama/custom providers
	APIKeyEnv      string  `yaml:"api_key_env"` // environment variable holding the key
	Dimension      int     `yaml:"dimension"`
	BatchSize      int     `yaml:"batch_size"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	TopK           int     `yaml:"top_k"`
	MinScore       float64 `yaml:"min_score"` // hard similarity threshold
}

// FusionConfig controls how lexical and semantic rankings combine.
type FusionConfig struct {
	BM25Weight float64 `yaml:"bm25_weight"` // 0..1; semantic weight is the complement
	FinalTopK  int     `yaml:"final_top_k"`
}

// CacheConfig holds query-cache settings.
type CacheConfig struct {
	Size       int `yaml:"size"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			ID:       "default",
			Includes: []string{"**/*.md", "**/*.txt"},
			Excludes: []string{"**/.recall/**", "**/.git/**"},
		},
		Chunking: ChunkingConfig{
			MaxChars:     1200,
			MinChars:     100,
			OverlapChars: 200,
		},
		BM25: BM25Config{
			K1:       1.2,
			B:        0.75,
			TopK:     50,
			Stemming: true,
		},
		Embedding: EmbeddingConfig{
			Enabled:        false,
			Mode:           ModeManual,
			Provider:       "openai",
			Model:          "text-embedding-3-small",
			APIKeyEnv:      "OPENAI_API_KEY",
			Dimension:      1536,
			BatchSize:      100,
			TimeoutSeconds: 60,
			TopK:           50,
			MinScore:       0.25,
		},
		Fusion: FusionConfig{
			BM25Weight: 0.5,
			FinalTopK:  10,
		},
		Cache: CacheConfig{
			Size:       100,
			TTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration at the boundary. It returns an
// *domain.InvalidConfigError describing the first rejected field;
// operations receiving an invalid config abort with no mutation.
func (c *Config) Validate() error {
	if c.Corpus.ID == "" {
		return &domain.InvalidConfigError{Field: "corpus.id", Reason: "must not be empty"}
	}
	if c.Chunking.MaxChars <= 0 {
		return &domain.InvalidConfigError{Field: "chunking.max_chars", Reason: "must be positive"}
	}
	if c.Chunking.MinChars < 0 {
		return &domain.InvalidConfigError{Field: "chunking.min_chars", Reason: "must not be negative"}
	}
	if c.Chunking.MinChars > c.Chunking.MaxChars {
		return &domain.InvalidConfigError{Field: "chunking.min_chars", Reason: "exceeds max_chars"}
	}
	if c.Chunking.OverlapChars < 0 {
		return &domain.InvalidConfigError{Field: "chunking.overlap_chars", Reason: "must not be negative"}
	}
	if c.Chunking.OverlapChars >= c.Chunking.MaxChars {
		return &domain.InvalidConfigError{Field: "chunking.overlap_chars", Reason: "must be smaller than max_chars"}
	}
	if c.BM25.K1 < 0 {
		return &domain.InvalidConfigError{Field: "bm25.k1", Reason: "must not be negative"}
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return &domain.InvalidConfigError{Field: "bm25.b", Reason: "must be in [0, 1]"}
	}
	if c.BM25.TopK <= 0 {
		return &domain.InvalidConfigError{Field: "bm25.top_k", Reason: "must be positive"}
	}
	if c.Fusion.BM25Weight < 0 || c.Fusion.BM25Weight > 1 {
		return &domain.InvalidConfigError{Field: "fusion.bm25_weight", Reason: "must be in [0, 1]"}
	}
	if c.Fusion.FinalTopK <= 0 {
		return &domain.InvalidConfigError{Field: "fusion.final_top_k", Reason: "must be positive"}
	}
	if c.Embedding.Enabled {
		if c.Embedding.Mode != ModeManual && c.Embedding.Mode != ModeAutomatic {
			return &domain.InvalidConfigError{Field: "embedding.mode", Reason: `must be "manual" or "automatic"`}
		}
		if c.Embedding.Dimension <= 0 {
			return &domain.InvalidConfigError{Field: "embedding.dimension", Reason: "must be positive"}
		}
		if c.Embedding.TopK <= 0 {
			return &domain.InvalidConfigError{Field: "embedding.top_k", Reason: "must be positive"}
		}
		if c.Embedding.MinScore < -1 || c.Embedding.MinScore > 1 {
			return &domain.InvalidConfigError{Field: "embedding.min_score", Reason: "must be in [-1, 1]"}
		}
	}
	return nil
}

// Load loads configuration from a YAML file, merged over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for
// recall.yaml, then .recall/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "recall.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".recall", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path of the lexical index database for the
// configured corpus. Index state is keyed by the stable corpus ID so it
// survives restarts.
func (c *Config) IndexDBPath(dir string) string {
	return filepath.Join(dir, ".recall", c.Corpus.ID+"-index.db")
}

// VectorDBPath returns the path of the vector store database. Vectors
// live in their own file: the two stores are independently owned and
// only eventually consistent with each other.
func (c *Config) VectorDBPath(dir string) string {
	return filepath.Join(dir, ".recall", c.Corpus.ID+"-vectors.db")
}

// EnsureDataDir ensures the .recall directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".recall"), 0755)
}
