package main

import (
	"context"
	"fmt"
	"os"

	"github.com/glebis/claude-session-explorer/internal/config"
	"github.com/glebis/claude-session-explorer/internal/llm"
	"github.com/glebis/claude-session-explorer/internal/logger"
	"github.com/glebis/claude-session-explorer/internal/vectorstore"
)

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return nil, herr
		}
		cfg, err = config.LoadFrom(configPath, home)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger.Configure(cfg.LogLevel)
	return cfg, nil
}

func newEmbedder(cfg *config.Config) *llm.OllamaEmbedder {
	return llm.NewOllamaEmbedder(llm.OllamaOptions{
		URL:           cfg.Embedding.URL,
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		Timeout:       cfg.Embedding.Timeout.Duration,
		RatePerMinute: cfg.Embedding.RatePerMinute,
	})
}

// newSummarizer builds the configured backend. A backend that cannot be set
// up yields NopSummarizer, so every chunk falls back to its truncated text.
func newSummarizer(cfg *config.Config) llm.Summarizer {
	sc := cfg.Summarizer
	switch sc.Backend {
	case "anthropic":
		key := os.Getenv(sc.APIKeyEnv)
		if key == "" {
			logger.Warnf("%s is not set, summaries will use truncated chunk text", sc.APIKeyEnv)
			return llm.NopSummarizer{}
		}
		return llm.NewAnthropicSummarizer(llm.AnthropicOptions{
			APIKey:        key,
			BaseURL:       sc.BaseURL,
			Model:         sc.Model,
			MaxTokens:     sc.MaxTokens,
			Timeout:       sc.Timeout.Duration,
			RatePerMinute: sc.RatePerMinute,
		})
	case "cli":
		// Run outside any project so the CLI does not load project instructions.
		ec := llm.ExecContext{Env: llm.IsolatedEnv(os.Environ()), Dir: os.TempDir()}
		return llm.NewClaudeCLISummarizer(sc.Command, sc.Model, ec, sc.Timeout.Duration)
	default:
		return llm.NopSummarizer{}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*vectorstore.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is not set (config or CSE_DATABASE_URL)")
	}
	return vectorstore.Open(ctx, cfg.DatabaseURL, vectorstore.Options{
		Dimensions:   cfg.Embedding.Dimensions,
		MinIndexRows: cfg.Index.MinIndexRows,
		MaxLists:     cfg.Index.IndexLists,
	})
}
