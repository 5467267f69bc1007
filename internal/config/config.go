package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ProjectsRoot string `toml:"projects_root"`
	CatalogPath  string `toml:"catalog_path"`
	DatabaseURL  string `toml:"database_url"`
	LogLevel     string `toml:"log_level"`

	Embedding  Embedding  `toml:"embedding"`
	Summarizer Summarizer `toml:"summarizer"`
	Index      Index      `toml:"index"`
}

type Embedding struct {
	URL           string   `toml:"url"`
	Model         string   `toml:"model"`
	Dimensions    int      `toml:"dimensions"`
	Timeout       Duration `toml:"timeout"`
	RatePerMinute int      `toml:"rate_per_minute"`
}

type Summarizer struct {
	Backend       string   `toml:"backend"` // "anthropic", "cli" or "none"
	Model         string   `toml:"model"`
	APIKeyEnv     string   `toml:"api_key_env"`
	BaseURL       string   `toml:"base_url"`
	Command       string   `toml:"command"`
	MaxTokens     int      `toml:"max_tokens"`
	Timeout       Duration `toml:"timeout"`
	RatePerMinute int      `toml:"rate_per_minute"`
}

type Index struct {
	ChunkSize     int    `toml:"chunk_size"`
	MaxChunkText  int    `toml:"max_chunk_text"`
	ExcerptChars  int    `toml:"excerpt_chars"`
	MinIndexRows  int    `toml:"min_index_rows"`
	IndexLists    int    `toml:"index_lists"`
	MaxSessions   int    `toml:"max_sessions"`
	ExcludePrefix string `toml:"exclude_prefix"`
}

// Default returns the configuration used when no config file exists.
func Default(home string) *Config {
	return &Config{
		ProjectsRoot: filepath.Join(home, ".claude", "projects"),
		CatalogPath:  filepath.Join(home, ".config", "cse", "catalog.db"),
		LogLevel:     "info",
		Embedding: Embedding{
			URL:        "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    Duration{30 * second},
		},
		Summarizer: Summarizer{
			Backend:   "anthropic",
			Model:     "claude-3-5-haiku-latest",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			BaseURL:   "https://api.anthropic.com/v1",
			Command:   "claude",
			MaxTokens: 200,
			Timeout:   Duration{60 * second},
		},
		Index: Index{
			ChunkSize:     5,
			MaxChunkText:  3000,
			ExcerptChars:  1000,
			MinIndexRows:  100,
			IndexLists:    100,
			ExcludePrefix: "agent-",
		},
	}
}

// Path returns the location of the config file.
func Path(home string) string {
	return filepath.Join(home, ".config", "cse", "config.toml")
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(Path(home), home)
}

// LoadFrom reads cfgPath over the defaults. A missing file is not an error.
func LoadFrom(cfgPath, home string) (*Config, error) {
	cfg := Default(home)

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	if v := os.Getenv("CSE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	} else if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("CSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// expand ~ in paths
	cfg.ProjectsRoot = expandHome(cfg.ProjectsRoot, home)
	cfg.CatalogPath = expandHome(cfg.CatalogPath, home)

	return cfg, nil
}

// Validate checks the settings the indexing pipeline and query path depend on.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is not set (config or CSE_DATABASE_URL)"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.URL == "" {
		errs = append(errs, errors.New("embedding.url is not set"))
	}
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize))
	}
	if c.Index.MaxChunkText <= 0 {
		errs = append(errs, fmt.Errorf("index.max_chunk_text must be positive, got %d", c.Index.MaxChunkText))
	}
	switch c.Summarizer.Backend {
	case "anthropic", "cli", "none":
	default:
		errs = append(errs, fmt.Errorf("summarizer.backend %q is not one of anthropic, cli, none", c.Summarizer.Backend))
	}
	return errors.Join(errs...)
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
