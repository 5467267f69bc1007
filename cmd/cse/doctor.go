package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/glebis/claude-session-explorer/internal/catalog"
	"github.com/glebis/claude-session-explorer/internal/scan"
)

var (
	styleSection = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func section(title string) {
	fmt.Println(styleSection.Render("=== " + title + " ==="))
}

func status(ok bool, msg string) string {
	if ok {
		return styleOK.Render("OK") + " " + msg
	}
	return styleFail.Render("FAIL") + " " + msg
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: roots, catalog, embedding service and vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			section("Config")
			if err := cfg.Validate(); err != nil {
				fmt.Println("  " + status(false, err.Error()))
			} else {
				fmt.Println("  " + status(true, "valid"))
			}

			section("Logs")
			checkDir("Projects", cfg.ProjectsRoot)
			if files, err := scan.ScanRoot(cfg.ProjectsRoot); err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				fmt.Printf("  Session logs: %d\n", len(files))
			}

			section("Catalog")
			fmt.Printf("  Path: %s\n", cfg.CatalogPath)
			if _, err := os.Stat(cfg.CatalogPath); os.IsNotExist(err) {
				fmt.Println("  " + styleDim.Render("not built yet (run 'cse catalog build')"))
			} else if db, err := catalog.Open(cfg.CatalogPath); err != nil {
				fmt.Println("  " + status(false, err.Error()))
			} else {
				n, err := db.Count(ctx)
				db.Close()
				if err != nil {
					fmt.Println("  " + status(false, err.Error()))
				} else {
					fmt.Printf("  Sessions: %d\n", n)
				}
			}

			section("Embedding")
			fmt.Printf("  %s (%s, %d dims)\n", cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
			if err := newEmbedder(cfg).Ping(ctx); err != nil {
				fmt.Println("  " + status(false, err.Error()))
			} else {
				fmt.Println("  " + status(true, "reachable"))
			}

			section("Summarizer")
			fmt.Printf("  Backend: %s (%s)\n", cfg.Summarizer.Backend, cfg.Summarizer.Model)

			section("Vector store")
			store, err := openStore(ctx, cfg)
			if err != nil {
				fmt.Println("  " + status(false, err.Error()))
				return nil
			}
			defer store.Close()

			st, err := store.Stats(ctx)
			if err != nil {
				fmt.Println("  " + status(false, err.Error()+" (run 'cse index' first)"))
				return nil
			}
			fmt.Printf("  Rows:     %d (%d embedded)\n", st.Rows, st.Embedded)
			fmt.Printf("  Sessions: %d\n", st.Sessions)
			if st.IndexExists {
				fmt.Println("  " + status(true, "similarity index present"))
			} else {
				fmt.Println("  " + styleDim.Render(fmt.Sprintf("no similarity index yet (built at %d rows)", cfg.Index.MinIndexRows)))
			}
			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s %s\n", name, path, styleFail.Render("(NOT FOUND)"))
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s %s\n", name, path, styleFail.Render("(NOT A DIRECTORY)"))
	} else {
		fmt.Printf("  %s: %s %s\n", name, path, styleOK.Render("(OK)"))
	}
}
