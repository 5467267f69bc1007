package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/glebis/claude-session-explorer/internal/logger"
	"github.com/glebis/claude-session-explorer/internal/parse"
	"github.com/glebis/claude-session-explorer/internal/scan"
)

type BuildStats struct {
	Scanned int
	Updated int
	Skipped int
	Errors  int
}

func (s BuildStats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d errors=%d",
		s.Scanned, s.Updated, s.Skipped, s.Errors)
}

// Build refreshes the catalog from the session logs under root. Files whose
// mtime and size match the stored row are skipped. When a session ID has
// logs in two project directories only the newest is catalogued.
func Build(ctx context.Context, db *DB, root string) (BuildStats, error) {
	var stats BuildStats

	files, err := scan.ScanRoot(root)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Scanned = len(files)

	for _, fi := range scan.Newest(files) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		info, err := db.fileInfo(ctx, fi.SessionID)
		if err != nil {
			stats.Errors++
			continue
		}
		if info != nil && info.Mtime == fi.Mtime && info.Size == fi.Size {
			stats.Skipped++
			continue
		}

		tr, err := parse.ParseFile(fi.Path)
		if err != nil {
			stats.Errors++
			logger.Warnf("catalog: parse %s: %v", fi.Path, err)
			continue
		}
		if len(tr.Messages) == 0 {
			stats.Skipped++
			continue
		}

		if err := db.Upsert(ctx, FromTranscript(fi, tr)); err != nil {
			stats.Errors++
			logger.Warnf("catalog: store %s: %v", fi.SessionID, err)
			continue
		}
		stats.Updated++
	}

	return stats, nil
}

// FromTranscript derives catalog metadata from a parsed log.
func FromTranscript(fi scan.FileInfo, tr *parse.Transcript) Session {
	st := parse.Summarize(tr.Messages)

	project := tr.Cwd
	if project == "" {
		project = filepath.Base(filepath.Dir(fi.Path))
	}

	return Session{
		ID:              fi.SessionID,
		Project:         project,
		StartTime:       st.Start,
		DurationMinutes: st.Duration().Minutes(),
		InputTokens:     st.InputTokens,
		OutputTokens:    st.OutputTokens,
		ToolCounts:      st.ToolCounts,
		FirstPrompt:     st.FirstPrompt,
		Summary:         tr.Summary,
		FilePath:        fi.Path,
		Mtime:           fi.Mtime,
		Size:            fi.Size,
	}
}
