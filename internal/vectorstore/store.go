// Package vectorstore persists chunk records with their embeddings in
// Postgres (pgvector) and answers cosine-similarity queries over them.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/glebis/claude-session-explorer/internal/logger"
)

const DefaultTable = "session_chunks"

var (
	ErrRunInProgress     = errors.New("another indexing run holds the lock")
	ErrDimensionMismatch = errors.New("embedding dimension does not match the store")
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// runLockKey namespaces the advisory lock taken by indexing runs.
const runLockKey int64 = 0x63736531 // "cse1"

type Options struct {
	Table        string
	Dimensions   int
	MinIndexRows int // embedded rows needed before the ANN index is built
	MaxLists     int // upper bound for ivfflat lists
}

// Record is one persisted chunk.
type Record struct {
	RunID          uuid.UUID
	SessionID      string
	ChunkIndex     int
	Summary        string
	Excerpt        string
	Embedding      []float32
	StartTime      time.Time
	EndTime        time.Time
	ToolsUsed      []string
	Project        string
	Classification string
	TokenCount     int64
}

// Match is a query hit. Similarity is 1 - cosine distance.
type Match struct {
	SessionID      string
	ChunkIndex     int
	Summary        string
	Excerpt        string
	ToolsUsed      []string
	Project        string
	Classification string
	TokenCount     int64
	StartTime      time.Time
	EndTime        time.Time
	Distance       float64
	Similarity     float64
}

type Stats struct {
	Rows        int
	Embedded    int
	Sessions    int
	IndexExists bool
}

type Store struct {
	db    *sql.DB
	opts  Options
	index string
}

// Open connects to Postgres through the pgx driver.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := New(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB, opts Options) (*Store, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !identRe.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", opts.Dimensions)
	}
	if opts.MinIndexRows <= 0 {
		opts.MinIndexRows = 100
	}
	if opts.MaxLists <= 0 {
		opts.MaxLists = 100
	}
	return &Store{db: db, opts: opts, index: opts.Table + "_embedding_idx"}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Raw() *sql.DB {
	return s.db
}

// EnsureSchema creates the extension, table and lookup index if missing. The
// similarity index is only created once MinIndexRows embedded rows exist;
// until then queries scan exactly. A failed similarity index is logged and
// left for MaybeRebuildIndex.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id             BIGSERIAL PRIMARY KEY,
			run_id         UUID,
			session_id     TEXT NOT NULL,
			chunk_index    INTEGER NOT NULL,
			summary        TEXT NOT NULL DEFAULT '',
			excerpt        TEXT NOT NULL DEFAULT '',
			embedding      vector(%d),
			start_time     TIMESTAMPTZ,
			end_time       TIMESTAMPTZ,
			tools_used     TEXT[] NOT NULL DEFAULT '{}',
			project        TEXT NOT NULL DEFAULT '',
			classification TEXT,
			token_count    BIGINT NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.opts.Table, s.opts.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_session_idx ON %s (session_id)`, s.opts.Table, s.opts.Table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	if err := s.checkDimensions(ctx); err != nil {
		return err
	}

	n, err := s.embeddedRows(ctx)
	if err != nil {
		return err
	}
	if n < s.opts.MinIndexRows {
		logger.Logger.Info().Int("embedded", n).Int("threshold", s.opts.MinIndexRows).Str("index", s.index).Msg("similarity index deferred")
		return nil
	}
	if err := s.createIndex(ctx, listsFor(n, s.opts.MaxLists)); err != nil {
		logger.Logger.Info().Err(err).Str("index", s.index).Msg("similarity index deferred")
	}
	return nil
}

func (s *Store) embeddedRows(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE embedding IS NOT NULL`, s.opts.Table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embedded rows: %w", err)
	}
	return n, nil
}

// checkDimensions compares the existing column type with the configured size.
func (s *Store) checkDimensions(ctx context.Context) error {
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding' AND NOT a.attisdropped`,
		s.opts.Table,
	).Scan(&typ)
	if err != nil {
		return fmt.Errorf("inspect embedding column: %w", err)
	}
	want := fmt.Sprintf("vector(%d)", s.opts.Dimensions)
	if typ != want {
		return fmt.Errorf("%w: column is %s, configured %s", ErrDimensionMismatch, typ, want)
	}
	return nil
}

func (s *Store) createIndex(ctx context.Context, lists int) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`,
		s.index, s.opts.Table, lists))
	return err
}

// AlreadyIndexedSessions returns every session ID with at least one record.
func (s *Store) AlreadyIndexedSessions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT session_id FROM %s`, s.opts.Table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Insert appends r. There is no upsert: callers check AlreadyIndexedSessions
// first unless they mean to duplicate.
func (s *Store) Insert(ctx context.Context, r Record) error {
	if len(r.Embedding) != s.opts.Dimensions {
		return fmt.Errorf("%w: got %d values, store expects %d", ErrDimensionMismatch, len(r.Embedding), s.opts.Dimensions)
	}
	tools := r.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, session_id, chunk_index, summary, excerpt, embedding,
		                 start_time, end_time, tools_used, project, classification, token_count)
		 VALUES ($1, $2, $3, $4, $5, $6::vector, $7, $8, $9, $10, $11, $12)`, s.opts.Table),
		nilUUID(r.RunID), r.SessionID, r.ChunkIndex, r.Summary, r.Excerpt, vectorToString(r.Embedding),
		nilTime(r.StartTime), nilTime(r.EndTime), tools, r.Project, nilStr(r.Classification), r.TokenCount,
	)
	if err != nil {
		return fmt.Errorf("insert chunk %s#%d: %w", r.SessionID, r.ChunkIndex, err)
	}
	return nil
}

// MaybeRebuildIndex drops and recreates the similarity index once enough
// embedded rows exist. Below the threshold it does nothing. A failed rebuild
// is logged and reported as not rebuilt; it is never an error.
func (s *Store) MaybeRebuildIndex(ctx context.Context) (bool, error) {
	n, err := s.embeddedRows(ctx)
	if err != nil {
		return false, err
	}
	if n < s.opts.MinIndexRows {
		logger.Debugf("similarity index: %d/%d embedded rows, not building yet", n, s.opts.MinIndexRows)
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, s.index)); err != nil {
		logger.Warnf("similarity index: drop %s: %v", s.index, err)
		return false, nil
	}
	if err := s.createIndex(ctx, listsFor(n, s.opts.MaxLists)); err != nil {
		logger.Warnf("similarity index: create %s: %v", s.index, err)
		return false, nil
	}
	return true, nil
}

// listsFor picks ivfflat lists for n rows: roughly sqrt(n), within [1, max].
func listsFor(n, max int) int {
	lists := 1
	for (lists+1)*(lists+1) <= n {
		lists++
	}
	if lists > max {
		lists = max
	}
	return lists
}

// Query returns the limit nearest records by cosine distance. Rows without an
// embedding are never returned; an empty table yields no matches.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(embedding) != s.opts.Dimensions {
		return nil, fmt.Errorf("%w: query has %d values, store expects %d", ErrDimensionMismatch, len(embedding), s.opts.Dimensions)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT session_id, chunk_index, summary, excerpt,
		       COALESCE(array_to_json(tools_used)::text, '[]'),
		       project, COALESCE(classification, ''), token_count,
		       start_time, end_time,
		       embedding <=> $1::vector AS distance
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, s.opts.Table),
		vectorToString(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var tools string
		var start, end sql.NullTime
		if err := rows.Scan(&m.SessionID, &m.ChunkIndex, &m.Summary, &m.Excerpt, &tools,
			&m.Project, &m.Classification, &m.TokenCount, &start, &end, &m.Distance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tools), &m.ToolsUsed); err != nil {
			return nil, fmt.Errorf("decode tools_used: %w", err)
		}
		m.StartTime = start.Time
		m.EndTime = end.Time
		m.Similarity = 1 - m.Distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), COUNT(embedding), COUNT(DISTINCT session_id) FROM %s`, s.opts.Table),
	).Scan(&st.Rows, &st.Embedded, &st.Sessions)
	if err != nil {
		return st, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = $1)`, s.index,
	).Scan(&st.IndexExists)
	return st, err
}

// AcquireRunLock takes a session-level advisory lock on a dedicated
// connection so that two indexing runs never interleave. The returned func
// releases it.
func (s *Store) AcquireRunLock(ctx context.Context) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, runLockKey).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, ErrRunInProgress
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, runLockKey); err != nil {
			logger.Warnf("release run lock: %v", err)
		}
		conn.Close()
	}, nil
}

// vectorToString renders v as a pgvector literal.
func vectorToString(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(v)*10)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'g', -1, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nilUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
