package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebis/claude-session-explorer/internal/textutil"
)

// FallbackChars is how much of the input a degraded summary keeps.
const FallbackChars = 200

// Summarizer produces a short digest of a chunk of conversation text in one
// request/response exchange.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Summary is the outcome of a summarization call site: either the service's
// digest, or a fallback together with the error that forced it.
type Summary struct {
	Text     string
	Degraded bool
	Err      error
}

// Fallback is the deterministic digest used when the service fails.
func Fallback(text string) string {
	return textutil.Truncate(text, FallbackChars)
}

// SummarizeOr calls s and substitutes fallback(text) on any failure, including
// an empty answer. It never returns an error; callers inspect Degraded.
func SummarizeOr(ctx context.Context, s Summarizer, text string, fallback func(string) string) Summary {
	if s == nil {
		return Summary{Text: fallback(text), Degraded: true, Err: errors.New("no summarizer configured")}
	}
	out, err := s.Summarize(ctx, text)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		return Summary{Text: fallback(text), Degraded: true, Err: err}
	}
	return Summary{Text: strings.TrimSpace(out)}
}

func summaryPrompt(text string) string {
	return fmt.Sprintf(`Summarize this excerpt of a coding assistant session in 2-3 sentences.
Say what the user was trying to do and what was done. Reply with the summary only.

%s`, text)
}

// NopSummarizer always fails, so every chunk gets the fallback digest.
type NopSummarizer struct{}

func (NopSummarizer) Summarize(context.Context, string) (string, error) {
	return "", errors.New("summarizer disabled")
}
