package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// recursionMarkers are set by an agent CLI for its own children. Launching the
// CLI with them present makes it treat the summarizer as a nested session.
var recursionMarkers = []string{"CLAUDECODE", "CLAUDE_CODE_ENTRYPOINT"}

// ExecContext is everything a launched summarizer process inherits.
type ExecContext struct {
	Env []string
	Dir string
}

// IsolatedEnv copies environ without the named variables and without the
// agent recursion markers. environ itself is not modified.
func IsolatedEnv(environ []string, drop ...string) []string {
	skip := make(map[string]struct{}, len(drop)+len(recursionMarkers))
	for _, k := range recursionMarkers {
		skip[k] = struct{}{}
	}
	for _, k := range drop {
		skip[k] = struct{}{}
	}

	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := skip[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// CommandSummarizer runs an agent CLI in print mode and reads the digest from
// stdout. The prompt is written to stdin.
type CommandSummarizer struct {
	Path    string
	Args    []string
	Exec    ExecContext
	Timeout time.Duration
}

// NewClaudeCLISummarizer builds the default `claude -p` launcher.
func NewClaudeCLISummarizer(path, model string, ec ExecContext, timeout time.Duration) *CommandSummarizer {
	if path == "" {
		path = "claude"
	}
	args := []string{"-p", "--output-format", "text"}
	if model != "" {
		args = append(args, "--model", model)
	}
	return &CommandSummarizer{Path: path, Args: args, Exec: ec, Timeout: timeout}
}

func (c *CommandSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Exec.Env
	cmd.Dir = c.Exec.Dir
	cmd.Stdin = strings.NewReader(summaryPrompt(text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s: %w", c.Path, err)
		}
		return "", fmt.Errorf("%s: %w: %s", c.Path, err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
