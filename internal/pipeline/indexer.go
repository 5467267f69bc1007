// Package pipeline runs the batch that turns session logs into embedded,
// summarized chunk records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glebis/claude-session-explorer/internal/catalog"
	"github.com/glebis/claude-session-explorer/internal/chunk"
	"github.com/glebis/claude-session-explorer/internal/llm"
	"github.com/glebis/claude-session-explorer/internal/logger"
	"github.com/glebis/claude-session-explorer/internal/parse"
	"github.com/glebis/claude-session-explorer/internal/textutil"
	"github.com/glebis/claude-session-explorer/internal/vectorstore"
)

var (
	// ErrPreflight means the embedding service was unreachable before any
	// session was touched.
	ErrPreflight = errors.New("embedding service preflight failed")
	ErrSchema    = errors.New("vector store schema setup failed")

	errNoContent = errors.New("no log and no metadata")
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	AlreadyIndexedSessions(ctx context.Context) (map[string]struct{}, error)
	Insert(ctx context.Context, r vectorstore.Record) error
	MaybeRebuildIndex(ctx context.Context) (bool, error)
}

// Locker is implemented by stores that can keep two runs apart.
type Locker interface {
	AcquireRunLock(ctx context.Context) (func(), error)
}

type Catalog interface {
	Sessions(ctx context.Context) ([]catalog.Session, error)
}

type Options struct {
	Force         bool
	MaxSessions   int // 0 = no cap
	ExcludePrefix string
	Chunk         chunk.Options
	ExcerptChars  int
}

type Stats struct {
	RunID        uuid.UUID
	Candidates   int
	Processed    int
	Skipped      int
	Errors       int
	Chunks       int
	Fallbacks    int
	IndexRebuilt bool
}

func (s Stats) String() string {
	return fmt.Sprintf("processed=%d skipped=%d errors=%d chunks=%d fallback_summaries=%d",
		s.Processed, s.Skipped, s.Errors, s.Chunks, s.Fallbacks)
}

type Indexer struct {
	Store      Store
	Catalog    Catalog
	Logs       map[string]string // session ID -> log path
	Summarizer llm.Summarizer
	Embedder   llm.Embedder

	// ReadLog parses a session log; parse.ParseFile when nil.
	ReadLog func(path string) (*parse.Transcript, error)
}

type candidate struct {
	ID   string
	Meta *catalog.Session
}

// Run indexes every eligible session once. Per-session failures are counted
// in the returned Stats; only setup failures and cancellation return an error.
func (ix *Indexer) Run(ctx context.Context, opts Options) (Stats, error) {
	stats := Stats{RunID: uuid.New()}
	log := logger.Logger.With().Str("run", stats.RunID.String()).Logger()

	if err := ix.Store.EnsureSchema(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if l, ok := ix.Store.(Locker); ok {
		release, err := l.AcquireRunLock(ctx)
		if err != nil {
			return stats, err
		}
		defer release()
	}

	if err := ix.Embedder.Ping(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrPreflight, err)
	}

	indexed := map[string]struct{}{}
	if !opts.Force {
		var err error
		indexed, err = ix.Store.AlreadyIndexedSessions(ctx)
		if err != nil {
			return stats, fmt.Errorf("load indexed sessions: %w", err)
		}
	}

	candidates, err := ix.candidates(ctx)
	if err != nil {
		return stats, fmt.Errorf("enumerate sessions: %w", err)
	}
	stats.Candidates = len(candidates)
	log.Info().Int("candidates", len(candidates)).Int("already_indexed", len(indexed)).Bool("force", opts.Force).Msg("indexing run started")

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if opts.MaxSessions > 0 && stats.Processed+stats.Errors >= opts.MaxSessions {
			log.Info().Int("max_sessions", opts.MaxSessions).Msg("session cap reached")
			break
		}
		if opts.ExcludePrefix != "" && strings.HasPrefix(c.ID, opts.ExcludePrefix) {
			stats.Skipped++
			continue
		}
		if _, done := indexed[c.ID]; done {
			stats.Skipped++
			continue
		}

		n, err := ix.processSession(ctx, c, opts, stats.RunID, &stats)
		switch {
		case errors.Is(err, errNoContent):
			stats.Skipped++
		case err != nil && ctx.Err() != nil:
			return stats, ctx.Err()
		case err != nil:
			stats.Errors++
			log.Warn().Err(err).Str("session", c.ID).Int("chunks_written", n).Msg("session failed")
		default:
			stats.Processed++
			log.Debug().Str("session", c.ID).Int("chunks", n).Msg("session indexed")
		}
		if err == nil && ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	rebuilt, err := ix.Store.MaybeRebuildIndex(ctx)
	if err != nil {
		log.Info().Err(err).Msg("similarity index not rebuilt")
	}
	stats.IndexRebuilt = rebuilt

	log.Info().Str("stats", stats.String()).Msg("indexing run finished")
	return stats, nil
}

// candidates lists catalog sessions first, then sessions that only have a log.
func (ix *Indexer) candidates(ctx context.Context) ([]candidate, error) {
	var out []candidate
	seen := make(map[string]struct{})

	if ix.Catalog != nil {
		sessions, err := ix.Catalog.Sessions(ctx)
		if err != nil {
			return nil, err
		}
		for i := range sessions {
			s := sessions[i]
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, candidate{ID: s.ID, Meta: &s})
		}
	}

	var orphans []string
	for id := range ix.Logs {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		out = append(out, candidate{ID: id})
	}
	return out, nil
}

// processSession writes the chunk records for one session and returns how
// many were written. Cancellation is checked before every chunk, the first
// included; a chunk already started always completes.
func (ix *Indexer) processSession(ctx context.Context, c candidate, opts Options, runID uuid.UUID, stats *Stats) (int, error) {
	var (
		chunks  []chunk.Chunk
		project string
		tokens  int64
		label   string
	)
	if c.Meta != nil {
		project = c.Meta.Project
		tokens = c.Meta.TotalTokens()
		label = c.Meta.Classification
	}

	if path, ok := ix.Logs[c.ID]; ok {
		read := ix.ReadLog
		if read == nil {
			read = parse.ParseFile
		}
		tr, err := read(path)
		if err != nil {
			return 0, fmt.Errorf("read log %s: %w", path, err)
		}
		chunks = chunk.Build(tr.Messages, opts.Chunk)
		if project == "" {
			project = tr.Cwd
		}
		if tokens == 0 {
			st := parse.Summarize(tr.Messages)
			tokens = st.InputTokens + st.OutputTokens
		}
	}

	if len(chunks) == 0 {
		if c.Meta == nil {
			return 0, errNoContent
		}
		chunks = []chunk.Chunk{metadataChunk(*c.Meta)}
	}

	work := context.WithoutCancel(ctx)
	written := 0
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		sum := llm.SummarizeOr(work, ix.Summarizer, ch.Text, llm.Fallback)
		if sum.Degraded {
			stats.Fallbacks++
			logger.Logger.Warn().Err(sum.Err).Str("session", c.ID).Int("chunk", ch.Index).Msg("summarizer failed, using truncated text")
		}

		vec, err := ix.Embedder.Embed(work, ch.Text)
		if err != nil {
			return written, fmt.Errorf("embed chunk %d: %w", ch.Index, err)
		}

		rec := vectorstore.Record{
			RunID:          runID,
			SessionID:      c.ID,
			ChunkIndex:     ch.Index,
			Summary:        sum.Text,
			Excerpt:        textutil.Truncate(ch.Text, excerptChars(opts)),
			Embedding:      vec,
			StartTime:      ch.Start,
			EndTime:        ch.End,
			ToolsUsed:      ch.Tools,
			Project:        project,
			Classification: label,
			TokenCount:     tokens,
		}
		if err := ix.Store.Insert(work, rec); err != nil {
			return written, err
		}
		written++
		stats.Chunks++
	}
	return written, nil
}

func excerptChars(opts Options) int {
	if opts.ExcerptChars > 0 {
		return opts.ExcerptChars
	}
	return 1000
}

// metadataChunk stands in for a session whose log is gone or empty.
func metadataChunk(s catalog.Session) chunk.Chunk {
	tools := s.ToolNames()

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", s.Project)
	fmt.Fprintf(&b, "Duration: %.0f minutes\n", s.DurationMinutes)
	if len(tools) > 0 {
		fmt.Fprintf(&b, "Tools: %s\n", strings.Join(tools, ", "))
	} else {
		b.WriteString("Tools: none\n")
	}
	if s.FirstPrompt != "" {
		fmt.Fprintf(&b, "First prompt: %s\n", s.FirstPrompt)
	}
	if s.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", s.Summary)
	}

	c := chunk.Chunk{
		Index: 0,
		Text:  strings.TrimRight(b.String(), "\n"),
		Start: s.StartTime,
		Tools: tools,
	}
	if !s.StartTime.IsZero() {
		c.End = s.StartTime.Add(time.Duration(s.DurationMinutes * float64(time.Minute)))
	}
	return c
}
