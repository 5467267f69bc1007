package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glebis/claude-session-explorer/internal/catalog"
	"github.com/glebis/claude-session-explorer/internal/chunk"
	"github.com/glebis/claude-session-explorer/internal/logger"
	"github.com/glebis/claude-session-explorer/internal/pipeline"
	"github.com/glebis/claude-session-explorer/internal/scan"
	"github.com/glebis/claude-session-explorer/internal/vectorstore"
)

func indexCmd() *cobra.Command {
	var maxSessions int
	var force, skipCatalog bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, summarize and embed sessions into the vector store",
		Long: `Index every session that has no chunk records yet. Each session is split
into chunks of consecutive turns; every chunk is summarized, embedded and
written to Postgres. Sessions that fail are counted and skipped.

Exit status is 2 when the embedding service or the database schema is
unusable, 1 on other failures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fatal(err)
			}
			if !cmd.Flags().Changed("max-sessions") {
				maxSessions = cfg.Index.MaxSessions
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return fatal(err)
			}
			defer store.Close()

			cat, err := catalog.Open(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer cat.Close()

			fmt.Fprintf(os.Stderr, "Projects: %s\n", cfg.ProjectsRoot)
			if !skipCatalog {
				bs, err := catalog.Build(ctx, cat, cfg.ProjectsRoot)
				if err != nil {
					logger.Warnf("catalog refresh: %v", err)
				} else {
					fmt.Fprintf(os.Stderr, "Catalog: %s\n", bs)
				}
			}

			logs, err := scan.Logs(cfg.ProjectsRoot)
			if err != nil {
				logger.Warnf("scan logs: %v", err)
				logs = map[string]string{}
			}

			ix := &pipeline.Indexer{
				Store:      store,
				Catalog:    cat,
				Logs:       logs,
				Summarizer: newSummarizer(cfg),
				Embedder:   newEmbedder(cfg),
			}
			stats, err := ix.Run(ctx, pipeline.Options{
				Force:         force,
				MaxSessions:   maxSessions,
				ExcludePrefix: cfg.Index.ExcludePrefix,
				Chunk:         chunk.Options{Size: cfg.Index.ChunkSize, MaxText: cfg.Index.MaxChunkText},
				ExcerptChars:  cfg.Index.ExcerptChars,
			})

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			if stats.IndexRebuilt {
				fmt.Fprintln(os.Stderr, "Similarity index rebuilt.")
			}

			switch {
			case err == nil:
				return nil
			case errors.Is(err, pipeline.ErrPreflight),
				errors.Is(err, pipeline.ErrSchema),
				errors.Is(err, vectorstore.ErrRunInProgress),
				errors.Is(err, vectorstore.ErrDimensionMismatch):
				return fatal(err)
			default:
				return err
			}
		},
	}

	cmd.Flags().IntVar(&maxSessions, "max-sessions", 0, "Stop after this many sessions (0 = no limit)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-index sessions that already have records (adds duplicates)")
	cmd.Flags().BoolVar(&skipCatalog, "skip-catalog", false, "Do not refresh the session catalog first")

	return cmd
}
