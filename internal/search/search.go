// Package search answers free-text questions against the chunk store by
// embedding the question and ranking chunks by cosine similarity.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/glebis/claude-session-explorer/internal/llm"
	"github.com/glebis/claude-session-explorer/internal/textutil"
	"github.com/glebis/claude-session-explorer/internal/vectorstore"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50

	excerptChars = 300
	cacheSize    = 128
)

var ErrEmptyQuery = errors.New("query is empty")

// Error codes carried by ErrorPayload.
const (
	CodeInvalidQuery         = "invalid_query"
	CodeEmbeddingUnavailable = "embedding_unavailable"
	CodeMisconfigured        = "embedding_misconfigured"
	CodeQueryFailed          = "query_failed"
)

type Result struct {
	SessionID      string   `json:"session_id"`
	ChunkIndex     int      `json:"chunk_index"`
	Summary        string   `json:"summary"`
	Excerpt        string   `json:"excerpt"`
	ToolsUsed      []string `json:"tools_used"`
	Project        string   `json:"project"`
	Classification string   `json:"classification,omitempty"`
	Similarity     string   `json:"similarity"`
}

type Options struct {
	Query string
	Limit int // 0 = DefaultLimit, capped at MaxLimit
}

// Store is the read side of the vector store.
type Store interface {
	Query(ctx context.Context, embedding []float32, limit int) ([]vectorstore.Match, error)
}

type Searcher struct {
	embedder llm.Embedder
	store    Store
	cache    *lru.Cache[string, []float32]
}

func NewSearcher(embedder llm.Embedder, store Store) *Searcher {
	cache, _ := lru.New[string, []float32](cacheSize)
	return &Searcher{embedder: embedder, store: store, cache: cache}
}

// Search is safe for concurrent use. An embedding failure is returned
// wrapped in llm.ErrEmbeddingUnavailable, except a dimension mismatch, which
// is a configuration error and is returned as is.
func (s *Searcher) Search(ctx context.Context, opts Options) ([]Result, error) {
	q := strings.TrimSpace(opts.Query)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	vec, err := s.embed(ctx, q)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.Query(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, fromMatch(m))
	}
	return results, nil
}

func (s *Searcher) embed(ctx context.Context, q string) ([]float32, error) {
	if vec, ok := s.cache.Get(q); ok {
		return vec, nil
	}
	vec, err := s.embedder.Embed(ctx, q)
	if err != nil {
		if errors.Is(err, llm.ErrEmbeddingUnavailable) || errors.Is(err, llm.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", llm.ErrEmbeddingUnavailable, err)
	}
	s.cache.Add(q, vec)
	return vec, nil
}

func fromMatch(m vectorstore.Match) Result {
	tools := m.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	return Result{
		SessionID:      m.SessionID,
		ChunkIndex:     m.ChunkIndex,
		Summary:        m.Summary,
		Excerpt:        textutil.Truncate(m.Excerpt, excerptChars),
		ToolsUsed:      tools,
		Project:        m.Project,
		Classification: m.Classification,
		Similarity:     fmt.Sprintf("%.3f", m.Similarity),
	}
}

// ErrorPayload is the single structured error a failed query produces.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewErrorPayload(err error) ErrorPayload {
	code := CodeQueryFailed
	switch {
	case errors.Is(err, ErrEmptyQuery):
		code = CodeInvalidQuery
	case errors.Is(err, llm.ErrDimensionMismatch), errors.Is(err, vectorstore.ErrDimensionMismatch):
		code = CodeMisconfigured
	case errors.Is(err, llm.ErrEmbeddingUnavailable):
		code = CodeEmbeddingUnavailable
	}
	return ErrorPayload{Error: err.Error(), Code: code}
}
