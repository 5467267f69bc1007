// Package chunk groups parsed messages into turns and packs turns into
// bounded chunks for summarization and embedding.
package chunk

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebis/claude-session-explorer/internal/parse"
	"github.com/glebis/claude-session-explorer/internal/textutil"
)

const (
	DefaultSize    = 5
	DefaultMaxText = 3000

	// maxMessageText caps each message body inside a chunk's text projection.
	maxMessageText = 600
)

type Options struct {
	Size    int // turns per chunk
	MaxText int // characters of formatted text per chunk
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.MaxText <= 0 {
		o.MaxText = DefaultMaxText
	}
	return o
}

// Turn is a run of messages that starts at a user message. A log that opens
// with assistant output yields a leading turn without one.
type Turn struct {
	Messages []parse.Message
}

type Chunk struct {
	Index int
	Turns []Turn
	Text  string
	Start time.Time
	End   time.Time
	Tools []string
}

// Messages returns the chunk's messages in order.
func (c Chunk) Messages() []parse.Message {
	var out []parse.Message
	for _, t := range c.Turns {
		out = append(out, t.Messages...)
	}
	return out
}

func GroupTurns(msgs []parse.Message) []Turn {
	var turns []Turn
	var cur []parse.Message
	for _, m := range msgs {
		if m.Role == parse.RoleUser && len(cur) > 0 {
			turns = append(turns, Turn{Messages: cur})
			cur = nil
		}
		cur = append(cur, m)
	}
	if len(cur) > 0 {
		turns = append(turns, Turn{Messages: cur})
	}
	return turns
}

// Split packs turns into chunks of opts.Size turns. Any non-empty input
// yields at least one chunk.
func Split(turns []Turn, opts Options) []Chunk {
	opts = opts.withDefaults()
	if len(turns) == 0 {
		return nil
	}

	var chunks []Chunk
	for start := 0; start < len(turns); start += opts.Size {
		end := start + opts.Size
		if end > len(turns) {
			end = len(turns)
		}
		chunks = append(chunks, newChunk(len(chunks), turns[start:end], opts.MaxText))
	}
	return chunks
}

func Build(msgs []parse.Message, opts Options) []Chunk {
	return Split(GroupTurns(msgs), opts)
}

func newChunk(index int, turns []Turn, maxText int) Chunk {
	c := Chunk{Index: index, Turns: turns}

	var lines []string
	seen := make(map[string]struct{})
	for _, t := range turns {
		for _, m := range t.Messages {
			if c.Start.IsZero() {
				c.Start = m.Timestamp
			}
			c.End = m.Timestamp
			lines = append(lines, FormatMessage(m))
			for _, name := range m.ToolNames() {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				c.Tools = append(c.Tools, name)
			}
		}
	}

	// The whole projection is cut after assembly, so trailing messages of a
	// long chunk can drop out entirely.
	c.Text = textutil.Truncate(strings.Join(lines, "\n"), maxText)
	return c
}

// FormatMessage renders "<Role>: <body> [Tools: a, b]".
func FormatMessage(m parse.Message) string {
	line := fmt.Sprintf("%s: %s", roleLabel(m.Role), textutil.Truncate(m.Text, maxMessageText))
	if names := m.ToolNames(); len(names) > 0 {
		line += " [Tools: " + strings.Join(names, ", ") + "]"
	}
	return line
}

func roleLabel(r parse.Role) string {
	switch r {
	case parse.RoleUser:
		return "User"
	case parse.RoleAssistant:
		return "Assistant"
	default:
		s := string(r)
		if s == "" {
			return "Unknown"
		}
		return strings.ToUpper(s[:1]) + s[1:]
	}
}
