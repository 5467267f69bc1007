package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glebis/claude-session-explorer/internal/search"
)

func searchCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed session chunks",
		Long: `Embed the query and return the closest chunks by cosine similarity.
Prints a table on a terminal and JSON otherwise (or with --json). In JSON
mode a failure is printed as {"error": ..., "code": ...}.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")
			jsonOut := asJSON || !term.IsTerminal(int(os.Stdout.Fd()))

			fail := func(err error) error {
				if !jsonOut {
					return err
				}
				writeJSON(os.Stdout, search.NewErrorPayload(err))
				return &exitError{code: 1, err: err, printed: true}
			}

			cfg, err := loadConfig()
			if err != nil {
				return fail(err)
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			defer store.Close()

			s := search.NewSearcher(newEmbedder(cfg), store)
			results, err := s.Search(ctx, search.Options{Query: query, Limit: limit})
			if err != nil {
				return fail(err)
			}

			if jsonOut {
				writeJSON(os.Stdout, results)
				return nil
			}
			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}
			writeResultsTable(os.Stdout, results)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", search.DefaultLimit, fmt.Sprintf("Max results (at most %d)", search.MaxLimit))
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON even on a terminal")

	return cmd
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeResultsTable(w io.Writer, results []search.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignLeft},
		{Number: 5, Align: text.AlignLeft, WidthMax: 24},
		{Number: 6, Align: text.AlignLeft, WidthMax: 70},
	})
	tw.AppendHeader(table.Row{"Score", "Session", "Chunk", "Project", "Tools", "Summary"})

	for _, r := range results {
		tw.AppendRow(table.Row{
			r.Similarity,
			shortID(r.SessionID),
			r.ChunkIndex,
			shortPath(r.Project, 30),
			strings.Join(r.ToolsUsed, ", "),
			strings.ReplaceAll(r.Summary, "\n", " "),
		})
	}
	tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// shortPath keeps the tail of a path within width display columns.
func shortPath(p string, width int) string {
	if p == "" {
		return "-"
	}
	if runewidth.StringWidth(p) <= width {
		return p
	}
	runes := []rune(p)
	for i := range runes {
		tail := string(runes[i:])
		if runewidth.StringWidth(tail)+1 <= width {
			return "…" + tail
		}
	}
	return runewidth.Truncate(p, width, "…")
}
