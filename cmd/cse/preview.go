package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glebis/claude-session-explorer/internal/chunk"
	"github.com/glebis/claude-session-explorer/internal/parse"
	"github.com/glebis/claude-session-explorer/internal/render"
	"github.com/glebis/claude-session-explorer/internal/scan"
)

func previewCmd() *cobra.Command {
	var hit int
	var query string

	cmd := &cobra.Command{
		Use:   "preview <session-id>",
		Short: "Show how a session is split into chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logs, err := scan.Logs(cfg.ProjectsRoot)
			if err != nil {
				return fmt.Errorf("scan logs: %w", err)
			}
			path, ok := logs[args[0]]
			if !ok {
				return fmt.Errorf("session not found: %s", args[0])
			}

			tr, err := parse.ParseFile(path)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			chunks := chunk.Build(tr.Messages, chunk.Options{Size: cfg.Index.ChunkSize, MaxText: cfg.Index.MaxChunkText})

			opts := render.Options{Hit: hit, Query: query}
			if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
				opts.Color = true
				if w, _, err := term.GetSize(fd); err == nil {
					opts.Width = w
				}
			}

			out, _ := render.Chunks(args[0], tr.Cwd, chunks, opts)
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().IntVar(&hit, "hit", -1, "Chunk index to highlight")
	cmd.Flags().StringVar(&query, "query", "", "Terms to highlight in chunk text")

	return cmd
}
