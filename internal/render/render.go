// Package render prints a session the way the indexer sees it: one block per
// chunk, with the messages that went into it.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/glebis/claude-session-explorer/internal/chunk"
	"github.com/glebis/claude-session-explorer/internal/parse"
)

const (
	colorReset   = "\033[0m"
	colorUser    = "\033[1;34m" // bold blue
	colorAssist  = "\033[1;32m" // bold green
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // keyword highlight
)

type Options struct {
	Hit   int    // chunk index to mark, -1 for none
	Width int    // wrap width (0 = no wrap)
	Query string // terms to highlight
	Color bool
}

type palette struct {
	reset, user, assist, dim, hit, keyword string
}

func newPalette(color bool) palette {
	if !color {
		return palette{}
	}
	return palette{colorReset, colorUser, colorAssist, colorDim, colorHit, colorBoldRed}
}

// highlightKeywords wraps case-insensitive matches of each query term.
func highlightKeywords(text, query string, p palette) string {
	if query == "" || p.keyword == "" {
		return text
	}
	for _, term := range strings.Fields(query) {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			replacement := p.keyword + text[pos:pos+len(term)] + p.reset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// wrapLine breaks a line into pieces of at most maxWidth visible columns.
// ANSI escape sequences take no width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)
		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}
		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}
	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// Chunks renders the chunks of one session. The returned line number points
// at the header of the Hit chunk, or is -1.
func Chunks(sessionID, project string, chunks []chunk.Chunk, opts Options) (string, int) {
	p := newPalette(opts.Color)

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	writeLine(fmt.Sprintf("%s--- %s %s (%d chunks) ---%s", p.dim, sessionID, project, len(chunks), p.reset))
	if len(chunks) == 0 {
		writeLine("(empty session)")
		return b.String(), hitLine
	}

	for _, c := range chunks {
		header := fmt.Sprintf("chunk %d  %s", c.Index, timeRange(c))
		if len(c.Tools) > 0 {
			header += "  [" + strings.Join(c.Tools, ", ") + "]"
		}
		if c.Index == opts.Hit {
			hitLine = lineCount
			writeLine(fmt.Sprintf("%s>> %s <<%s", p.hit, header, p.reset))
		} else {
			writeLine(p.dim + header + p.reset)
		}

		for _, m := range c.Messages() {
			label, color := "USER", p.user
			if m.Role == parse.RoleAssistant {
				label, color = "ASST", p.assist
			}
			writeLine(fmt.Sprintf("  %s%s >%s %s", color, label, p.reset, firstLine(m.Text)))
			if names := m.ToolNames(); len(names) > 0 {
				writeLine(fmt.Sprintf("    %stools: %s%s", p.dim, strings.Join(names, ", "), p.reset))
			}
		}

		text := highlightKeywords(c.Text, opts.Query, p)
		writeLine(p.dim + "  text:" + p.reset)
		for _, tl := range strings.Split(text, "\n") {
			writeLine("    " + tl)
		}
		writeLine("")
	}

	return b.String(), hitLine
}

func timeRange(c chunk.Chunk) string {
	if c.Start.IsZero() {
		return "-"
	}
	const layout = "2006-01-02 15:04"
	if c.End.IsZero() || c.End.Equal(c.Start) {
		return c.Start.Format(layout)
	}
	return c.Start.Format(layout) + " -> " + c.End.Format("15:04")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
