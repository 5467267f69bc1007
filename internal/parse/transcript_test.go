package parse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func TestParseToolResultResolution(t *testing.T) {
	log := lines(
		`{"type":"assistant","timestamp":"2025-01-05T10:00:00Z","message":{"role":"assistant","content":[{"type":"text","text":"Reading it."},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/a.go"}}],"usage":{"input_tokens":10,"output_tokens":5}}}`,
		`{"type":"user","timestamp":"2025-01-05T10:00:01Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"ok","is_error":false}]}}`,
	)

	msgs, err := Parse(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	a := msgs[0]
	assert.Equal(t, RoleAssistant, a.Role)
	assert.Equal(t, "Reading it.", a.Text)
	require.Len(t, a.Tools, 1)
	assert.Equal(t, "Read", a.Tools[0].Name)
	assert.True(t, a.Tools[0].Resolved)
	assert.Equal(t, "ok", a.Tools[0].Result)
	assert.False(t, a.Tools[0].IsError)
	assert.JSONEq(t, `{"file_path":"/a.go"}`, string(a.Tools[0].Input))
	require.NotNil(t, a.Usage)
	assert.Equal(t, int64(10), a.Usage.InputTokens)
	assert.Equal(t, time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC), a.Timestamp)

	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Empty(t, msgs[1].Tools)
	assert.Nil(t, msgs[1].Usage)
}

func TestParseToolResultTruncatedAndErrorFlag(t *testing.T) {
	long := strings.Repeat("x", 800)
	log := lines(
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"b1","name":"Bash","input":{}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"b1","content":[{"type":"text","text":"`+long+`"}],"is_error":true}]}}`,
	)

	msgs := ParseBytes([]byte(log))
	require.Len(t, msgs, 2)
	inv := msgs[0].Tools[0]
	assert.True(t, inv.Resolved)
	assert.True(t, inv.IsError)
	assert.Len(t, inv.Result, MaxToolResult)
}

func TestParseUnmatchedAndDuplicateResults(t *testing.T) {
	log := lines(
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"ghost","content":"nobody asked"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"g1","name":"Grep","input":{}},{"type":"tool_use","id":"w1","name":"Write","input":{}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"g1","content":"first"}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"g1","content":"replayed"}]}}`,
	)

	msgs := ParseBytes([]byte(log))
	require.Len(t, msgs, 4)

	tools := msgs[1].Tools
	require.Len(t, tools, 2)
	assert.Equal(t, "first", tools[0].Result, "second result for a resolved id is dropped")
	assert.True(t, tools[0].Resolved)
	assert.False(t, tools[1].Resolved, "tool_use without a result stays unresolved")
	assert.Empty(t, tools[1].Result)
}

func TestParseSkipsMalformedAndForeignLines(t *testing.T) {
	log := lines(
		`not json at all`,
		`{"type":"system","message":{"role":"system","content":"boot"}}`,
		`{"type":"user","message":{"content":"no role"}}`,
		`{"type":"user"}`,
		`{"type":"summary","summary":"Fixing the build"}`,
		`{"type":"user","cwd":"/work/app","message":{"role":"user","content":"hello there"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"thinking","thinking":"hm"},{"type":"text","text":"b"}]}}`,
		``,
		`{"type":"user","message":{"role":"user","content":42}}`,
	)

	tr, err := ParseTranscript(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, "hello there", tr.Messages[0].Text)
	assert.Equal(t, "a b", tr.Messages[1].Text)
	assert.Equal(t, "42", tr.Messages[2].Text)
	assert.Equal(t, "/work/app", tr.Cwd)
	assert.Equal(t, "Fixing the build", tr.Summary)
}

func TestParseSkipsOversizedLine(t *testing.T) {
	huge := `{"type":"user","message":{"role":"user","content":"` + strings.Repeat("x", maxLineSize+1024) + `"}}`
	log := lines(
		`{"type":"user","message":{"role":"user","content":"before"}}`,
		huge,
		`{"type":"assistant","message":{"role":"assistant","content":"after"}}`,
	)

	msgs, err := Parse(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "before", msgs[0].Text)
	assert.Equal(t, "after", msgs[1].Text)

	// an oversized last line without a trailing newline
	msgs, err = Parse(strings.NewReader(lines(`{"type":"user","message":{"role":"user","content":"only"}}`) + huge))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "only", msgs[0].Text)
}

func TestParseLastLineWithoutNewline(t *testing.T) {
	log := `{"type":"user","message":{"role":"user","content":"one"}}` + "\n" +
		`{"type":"assistant","message":{"role":"assistant","content":"two"}}`

	msgs, err := Parse(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestParseTimestampFormats(t *testing.T) {
	assert.False(t, parseTimestamp("2025-01-05T10:00:00.123Z").IsZero())
	assert.False(t, parseTimestamp("2025-01-05T10:00:00").IsZero())
	assert.True(t, parseTimestamp("yesterday").IsZero())
	assert.True(t, parseTimestamp("").IsZero())
}

func TestSummarize(t *testing.T) {
	log := lines(
		`{"type":"user","timestamp":"2025-01-05T10:00:00Z","message":{"role":"user","content":"Fix the\nlogin bug"}}`,
		`{"type":"assistant","timestamp":"2025-01-05T10:30:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"1","name":"Read","input":{}},{"type":"tool_use","id":"2","name":"Read","input":{}}],"usage":{"input_tokens":100,"output_tokens":20,"cache_read_input_tokens":5}}}`,
	)
	st := Summarize(ParseBytes([]byte(log)))

	assert.Equal(t, 2, st.Messages)
	assert.Equal(t, int64(105), st.InputTokens)
	assert.Equal(t, int64(20), st.OutputTokens)
	assert.Equal(t, 2, st.ToolCounts["Read"])
	assert.Equal(t, "Fix the login bug", st.FirstPrompt)
	assert.Equal(t, 30*time.Minute, st.Duration())
}
