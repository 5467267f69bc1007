// Package catalog is the per-session metadata table the indexing pipeline
// reads: project, timing, token totals and tool usage for each session.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sessions (
    session_id       TEXT PRIMARY KEY,
    project          TEXT NOT NULL DEFAULT '',
    start_time       TEXT NOT NULL DEFAULT '',
    duration_minutes REAL NOT NULL DEFAULT 0,
    input_tokens     INTEGER NOT NULL DEFAULT 0,
    output_tokens    INTEGER NOT NULL DEFAULT 0,
    tool_counts      TEXT NOT NULL DEFAULT '{}',
    first_prompt     TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL DEFAULT '',
    classification   TEXT,
    file_path        TEXT NOT NULL DEFAULT '',
    mtime            INTEGER NOT NULL DEFAULT 0,
    size             INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS sessions_start_time ON sessions(start_time);
`

const timeLayout = "2006-01-02T15:04:05Z"

type Session struct {
	ID              string
	Project         string
	StartTime       time.Time
	DurationMinutes float64
	InputTokens     int64
	OutputTokens    int64
	ToolCounts      map[string]int
	FirstPrompt     string
	Summary         string
	Classification  string

	FilePath string
	Mtime    int64
	Size     int64
}

func (s Session) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens
}

// ToolNames lists tools by descending use count, ties broken by name.
func (s Session) ToolNames() []string {
	names := make([]string, 0, len(s.ToolCounts))
	for n := range s.ToolCounts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := s.ToolCounts[names[i]], s.ToolCounts[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	return names
}

type DB struct {
	db *sql.DB
}

func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

const sessionColumns = `session_id, project, start_time, duration_minutes, input_tokens, output_tokens,
	tool_counts, first_prompt, summary, COALESCE(classification, ''), file_path, mtime, size`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var s Session
	var start, tools string
	err := r.Scan(&s.ID, &s.Project, &start, &s.DurationMinutes, &s.InputTokens, &s.OutputTokens,
		&tools, &s.FirstPrompt, &s.Summary, &s.Classification, &s.FilePath, &s.Mtime, &s.Size)
	if err != nil {
		return s, err
	}
	if start != "" {
		s.StartTime, _ = time.Parse(timeLayout, start)
	}
	s.ToolCounts = map[string]int{}
	if tools != "" {
		if err := json.Unmarshal([]byte(tools), &s.ToolCounts); err != nil {
			return s, fmt.Errorf("session %s: decode tool_counts: %w", s.ID, err)
		}
	}
	return s, nil
}

// Sessions returns every session, newest first.
func (d *DB) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY start_time DESC, session_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns the session or nil when it is unknown.
func (d *DB) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(d.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) Upsert(ctx context.Context, s Session) error {
	tools, err := json.Marshal(s.ToolCounts)
	if err != nil {
		return fmt.Errorf("encode tool_counts: %w", err)
	}
	if s.ToolCounts == nil {
		tools = []byte("{}")
	}
	var start string
	if !s.StartTime.IsZero() {
		start = s.StartTime.UTC().Format(timeLayout)
	}
	var classification any
	if s.Classification != "" {
		classification = s.Classification
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project, start_time, duration_minutes, input_tokens, output_tokens,
		                      tool_counts, first_prompt, summary, classification, file_path, mtime, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			project = excluded.project,
			start_time = excluded.start_time,
			duration_minutes = excluded.duration_minutes,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			tool_counts = excluded.tool_counts,
			first_prompt = excluded.first_prompt,
			summary = excluded.summary,
			classification = COALESCE(excluded.classification, sessions.classification),
			file_path = excluded.file_path,
			mtime = excluded.mtime,
			size = excluded.size`,
		s.ID, s.Project, start, s.DurationMinutes, s.InputTokens, s.OutputTokens,
		string(tools), s.FirstPrompt, s.Summary, classification, s.FilePath, s.Mtime, s.Size,
	)
	return err
}

func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

type fileInfo struct {
	Mtime int64
	Size  int64
}

func (d *DB) fileInfo(ctx context.Context, id string) (*fileInfo, error) {
	var info fileInfo
	err := d.db.QueryRowContext(ctx,
		"SELECT mtime, size FROM sessions WHERE session_id = ?", id,
	).Scan(&info.Mtime, &info.Size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
