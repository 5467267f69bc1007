package parse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/glebis/claude-session-explorer/internal/textutil"
)

// maxLineSize bounds one log line; longer lines are dropped.
const maxLineSize = 10 * 1024 * 1024 // 10MB

// MaxToolResult caps the stored text of a resolved tool result.
const MaxToolResult = 500

type rawEvent struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Cwd       string          `json:"cwd"`
	Message   json.RawMessage `json:"message"`
	Summary   string          `json:"summary"` // for type="summary" records
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   *Usage          `json:"usage"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`

	// tool_use
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`

	// tool_result
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// Parse reads a session log and returns its messages in log order.
// Malformed lines and events that are not user/assistant messages are skipped;
// the only error is a failure to read r.
func Parse(r io.Reader) ([]Message, error) {
	t, err := ParseTranscript(r)
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}

func ParseBytes(data []byte) []Message {
	msgs, _ := Parse(bytes.NewReader(data))
	return msgs
}

func ParseFile(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTranscript(f)
}

// ParseTranscript reads a whole log. Lines longer than maxLineSize are
// skipped like any other malformed line.
func ParseTranscript(r io.Reader) (*Transcript, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	t := &Transcript{}
	pending := make(map[string]*ToolInvocation)

	var buf []byte
	for {
		line, tooLong, err := readLine(br, buf)
		buf = line
		if !tooLong {
			t.consume(bytes.TrimSpace(line), pending)
		}
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return t, err
		}
	}
}

// readLine reads up to the next newline, reusing buf. A line over
// maxLineSize is drained from br and reported as tooLong.
func readLine(br *bufio.Reader, buf []byte) (line []byte, tooLong bool, err error) {
	buf = buf[:0]
	for {
		frag, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(frag) > maxLineSize {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, frag...)
			}
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		return buf, tooLong, rerr
	}
}

// consume applies one log line to t.
func (t *Transcript) consume(line []byte, pending map[string]*ToolInvocation) {
	if len(line) == 0 {
		return
	}

	var ev rawEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return
	}

	if ev.Type == "summary" && ev.Summary != "" {
		t.Summary = ev.Summary
		return
	}
	if ev.Cwd != "" && t.Cwd == "" {
		t.Cwd = ev.Cwd
	}
	if ev.Type != string(RoleUser) && ev.Type != string(RoleAssistant) {
		return
	}

	var raw rawMessage
	if len(ev.Message) == 0 || json.Unmarshal(ev.Message, &raw) != nil {
		return
	}
	if raw.Role != string(RoleUser) && raw.Role != string(RoleAssistant) {
		return
	}

	msg := Message{
		Role:      Role(raw.Role),
		Timestamp: parseTimestamp(ev.Timestamp),
	}

	items, isArray := decodeItems(raw.Content)
	if !isArray {
		msg.Text = stringify(raw.Content)
	} else {
		var texts []string
		for _, it := range items {
			switch it.Type {
			case "text":
				texts = append(texts, it.Text)
			case "tool_use":
				if msg.Role != RoleAssistant {
					continue
				}
				inv := &ToolInvocation{ID: it.ID, Name: it.Name, Input: it.Input}
				msg.Tools = append(msg.Tools, inv)
				if it.ID != "" {
					pending[it.ID] = inv
				}
			case "tool_result":
				if msg.Role != RoleUser {
					continue
				}
				inv, ok := pending[it.ToolUseID]
				if !ok {
					continue
				}
				inv.Result = textutil.Truncate(stringifyContent(it.Content), MaxToolResult)
				inv.IsError = it.IsError
				inv.Resolved = true
				delete(pending, it.ToolUseID)
			}
		}
		msg.Text = strings.Join(texts, " ")
	}

	if msg.Role == RoleAssistant && raw.Usage != nil {
		u := *raw.Usage
		msg.Usage = &u
	}

	t.Messages = append(t.Messages, msg)
}

// decodeItems reports whether raw is a JSON array and, if so, its items.
// Items that are not objects are dropped.
func decodeItems(raw json.RawMessage) ([]contentItem, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, false
	}
	items := make([]contentItem, 0, len(elems))
	for _, e := range elems {
		var it contentItem
		if err := json.Unmarshal(e, &it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, true
}

// stringify renders non-array content: strings verbatim, null as empty,
// anything else as its JSON text.
func stringify(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// stringifyContent renders a tool_result payload, which is either a string
// or a list of typed items.
func stringifyContent(raw json.RawMessage) string {
	items, isArray := decodeItems(raw)
	if !isArray {
		return stringify(raw)
	}
	var texts []string
	for _, it := range items {
		if it.Type == "text" {
			texts = append(texts, it.Text)
		}
	}
	return strings.Join(texts, " ")
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// try RFC3339
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// try RFC3339Nano
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// try ISO8601 without timezone
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t
	}
	return time.Time{}
}
