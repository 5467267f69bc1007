package parse

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolInvocation is a tool call made by the assistant. It stays unresolved
// until a tool_result with the same ID shows up later in the log, which may
// never happen for truncated sessions.
type ToolInvocation struct {
	ID       string
	Name     string
	Input    json.RawMessage
	Result   string
	IsError  bool
	Resolved bool
}

type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

type Message struct {
	Role      Role
	Text      string
	Timestamp time.Time
	Tools     []*ToolInvocation // assistant only
	Usage     *Usage            // assistant only
}

// ToolNames returns the names of the tools invoked in m, in call order.
func (m Message) ToolNames() []string {
	if len(m.Tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(m.Tools))
	for _, t := range m.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Transcript is a parsed session log plus the session-level fields that ride
// along on individual events.
type Transcript struct {
	Messages []Message
	Cwd      string
	Summary  string // from a type="summary" record, if any
}
