package chunk

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebis/claude-session-explorer/internal/parse"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// conversation builds n turns of user prompt + assistant reply.
func conversation(n int) []parse.Message {
	var msgs []parse.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			parse.Message{Role: parse.RoleUser, Text: fmt.Sprintf("question %d", i), Timestamp: base.Add(time.Duration(2*i) * time.Minute)},
			parse.Message{Role: parse.RoleAssistant, Text: fmt.Sprintf("answer %d", i), Timestamp: base.Add(time.Duration(2*i+1) * time.Minute)},
		)
	}
	return msgs
}

func flatten(turns []Turn) []parse.Message {
	var out []parse.Message
	for _, t := range turns {
		out = append(out, t.Messages...)
	}
	return out
}

func TestGroupTurnsPartition(t *testing.T) {
	msgs := []parse.Message{
		{Role: parse.RoleAssistant, Text: "resumed"},
		{Role: parse.RoleUser, Text: "u1"},
		{Role: parse.RoleAssistant, Text: "a1"},
		{Role: parse.RoleAssistant, Text: "a1b"},
		{Role: parse.RoleUser, Text: "u2"},
		{Role: parse.RoleUser, Text: "u3"},
		{Role: parse.RoleAssistant, Text: "a3"},
	}

	turns := GroupTurns(msgs)
	require.Len(t, turns, 4)
	assert.Equal(t, "resumed", turns[0].Messages[0].Text)
	assert.Len(t, turns[1].Messages, 3)
	assert.Len(t, turns[2].Messages, 1)
	assert.Equal(t, msgs, flatten(turns))
	assert.Empty(t, GroupTurns(nil))
}

func TestSplitCounts(t *testing.T) {
	cases := []struct {
		turns  int
		chunks []int
	}{
		{1, []int{1}},
		{5, []int{5}},
		{6, []int{5, 1}},
		{10, []int{5, 5}},
		{12, []int{5, 5, 2}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_turns", tc.turns), func(t *testing.T) {
			chunks := Build(conversation(tc.turns), Options{})
			require.Len(t, chunks, len(tc.chunks))
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Len(t, c.Turns, tc.chunks[i])
			}
		})
	}
	assert.Empty(t, Build(nil, Options{}))
}

func TestTwelveTurnSession(t *testing.T) {
	msgs := conversation(12)
	chunks := Build(msgs, Options{Size: 5, MaxText: 3000})
	require.Len(t, chunks, 3)

	var all []parse.Message
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 3000)
		all = append(all, c.Messages()...)
	}
	assert.Equal(t, msgs, all)

	assert.Equal(t, base, chunks[0].Start)
	assert.Equal(t, base.Add(9*time.Minute), chunks[0].End)
	assert.Equal(t, base.Add(23*time.Minute), chunks[2].End)
}

func TestChunkTextProjection(t *testing.T) {
	msgs := []parse.Message{
		{Role: parse.RoleUser, Text: "read main.go"},
		{Role: parse.RoleAssistant, Text: "done", Tools: []*parse.ToolInvocation{{Name: "Read"}, {Name: "Grep"}}},
		{Role: parse.RoleAssistant, Text: "again", Tools: []*parse.ToolInvocation{{Name: "Read"}, {Name: "Edit"}}},
	}
	chunks := Build(msgs, Options{})
	require.Len(t, chunks, 1)

	want := "User: read main.go\nAssistant: done [Tools: Read, Grep]\nAssistant: again [Tools: Read, Edit]"
	assert.Equal(t, want, chunks[0].Text)
	assert.Equal(t, []string{"Read", "Grep", "Edit"}, chunks[0].Tools)
}

func TestChunkTextTruncation(t *testing.T) {
	long := strings.Repeat("y", 2000)
	msgs := []parse.Message{
		{Role: parse.RoleUser, Text: long},
		{Role: parse.RoleAssistant, Text: long},
		{Role: parse.RoleUser, Text: long},
		{Role: parse.RoleAssistant, Text: long},
		{Role: parse.RoleUser, Text: long},
		{Role: parse.RoleAssistant, Text: "tail that never makes it"},
	}

	line := FormatMessage(msgs[0])
	assert.Equal(t, "User: "+strings.Repeat("y", 600), line)

	chunks := Build(msgs, Options{Size: 5, MaxText: 1000})
	require.Len(t, chunks, 1)
	assert.Len(t, []rune(chunks[0].Text), 1000)
	assert.NotContains(t, chunks[0].Text, "tail")
}
