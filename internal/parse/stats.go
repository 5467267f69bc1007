package parse

import (
	"strings"
	"time"

	"github.com/glebis/claude-session-explorer/internal/textutil"
)

const maxPromptChars = 200

// Stats are the session-level aggregates the metadata catalog stores.
type Stats struct {
	Messages     int
	InputTokens  int64
	OutputTokens int64
	ToolCounts   map[string]int
	FirstPrompt  string
	Start        time.Time
	End          time.Time
}

func (s Stats) Duration() time.Duration {
	if s.Start.IsZero() || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

func Summarize(msgs []Message) Stats {
	st := Stats{Messages: len(msgs), ToolCounts: make(map[string]int)}
	for _, m := range msgs {
		if !m.Timestamp.IsZero() {
			if st.Start.IsZero() || m.Timestamp.Before(st.Start) {
				st.Start = m.Timestamp
			}
			if m.Timestamp.After(st.End) {
				st.End = m.Timestamp
			}
		}
		if m.Usage != nil {
			st.InputTokens += m.Usage.InputTokens + m.Usage.CacheReadTokens + m.Usage.CacheCreationTokens
			st.OutputTokens += m.Usage.OutputTokens
		}
		for _, t := range m.Tools {
			st.ToolCounts[t.Name]++
		}
		if st.FirstPrompt == "" && m.Role == RoleUser {
			if text := strings.TrimSpace(m.Text); text != "" {
				st.FirstPrompt = textutil.Truncate(strings.ReplaceAll(text, "\n", " "), maxPromptChars)
			}
		}
	}
	return st
}
