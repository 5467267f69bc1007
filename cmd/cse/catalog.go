package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/glebis/claude-session-explorer/internal/catalog"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the per-session metadata catalog",
	}
	cmd.AddCommand(catalogBuildCmd())
	cmd.AddCommand(catalogListCmd())
	return cmd
}

func catalogBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Scan session logs and refresh catalog metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := catalog.Open(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer db.Close()

			fmt.Fprintf(os.Stderr, "Scanning %s...\n", cfg.ProjectsRoot)
			stats, err := catalog.Build(cmd.Context(), db, cfg.ProjectsRoot)
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}
}

func catalogListCmd() *cobra.Command {
	var limit int
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogued sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := catalog.Open(cfg.CatalogPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer db.Close()

			sessions, err := db.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			var shown []catalog.Session
			for _, s := range sessions {
				if project != "" && !strings.Contains(s.Project, project) {
					continue
				}
				shown = append(shown, s)
				if limit > 0 && len(shown) >= limit {
					break
				}
			}
			writeSessionsTable(os.Stdout, shown)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max sessions (0 = all)")
	cmd.Flags().StringVar(&project, "project", "", "Only sessions whose project path contains this")

	return cmd
}

func writeSessionsTable(w io.Writer, sessions []catalog.Session) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignLeft, WidthMax: 24},
		{Number: 7, Align: text.AlignLeft, WidthMax: 50},
	})
	tw.AppendHeader(table.Row{"Started", "Session", "Project", "Minutes", "Tokens", "Tools", "First prompt"})

	for _, s := range sessions {
		started := "-"
		if !s.StartTime.IsZero() {
			started = s.StartTime.Local().Format("2006-01-02 15:04")
		}
		tools := s.ToolNames()
		if len(tools) > 3 {
			tools = tools[:3]
		}
		tw.AppendRow(table.Row{
			started,
			shortID(s.ID),
			shortPath(s.Project, 30),
			fmt.Sprintf("%.0f", s.DurationMinutes),
			s.TotalTokens(),
			strings.Join(tools, ", "),
			s.FirstPrompt,
		})
	}
	if len(sessions) == 0 {
		tw.AppendRow(table.Row{"-", "(no sessions)", "-", "0", 0, "-", "-"})
	}
	tw.Render()
}
