package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/glebis/claude-session-explorer/internal/search"
)

func TestShortPath(t *testing.T) {
	assert.Equal(t, "-", shortPath("", 10))
	assert.Equal(t, "/a/b", shortPath("/a/b", 10))
	assert.Equal(t, "…/project", shortPath("/home/me/project", 9))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", shortID("0123abcd-9999"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestWriteResultsTable(t *testing.T) {
	var buf bytes.Buffer
	writeResultsTable(&buf, []search.Result{{
		SessionID: "0123456789", ChunkIndex: 1, Summary: "Fixed\nlogin", Project: "/w/app",
		ToolsUsed: []string{"Edit", "Bash"}, Similarity: "0.873",
	}})
	out := buf.String()
	assert.Contains(t, out, "0.873")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "Fixed login")
	assert.Contains(t, out, "Edit, Bash")
}

func TestWriteJSONErrorPayload(t *testing.T) {
	var buf bytes.Buffer
	writeJSON(&buf, search.NewErrorPayload(search.ErrEmptyQuery))
	assert.JSONEq(t, `{"error":"query is empty","code":"invalid_query"}`, buf.String())
}

func TestExitErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := fatal(base)
	assert.ErrorIs(t, err, base)

	var ee *exitError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.code)
}
