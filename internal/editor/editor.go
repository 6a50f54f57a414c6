// Package editor applies styling edits to project source files by
// driving a code-editing agent CLI as a subprocess. Each edit runs in
// the project's working directory and commits its own changes, so
// changed files can be recovered from git afterwards.
package editor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kurtnissen/ai-swarm/internal/config"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

const promptTemplate = `Apply the following visual styling change to the file %s:

%s

Rules:
- Only change styling (CSS, class names, inline styles, style props). Do not change component logic, data flow, or behavior.
- Keep the change scoped to %s; only touch other files if the styling genuinely lives there (shared stylesheet, theme file).
- Commit the change with git when you are done, using a short descriptive message.`

const feedbackTemplate = `

A previous attempt at this change did not pass visual verification. Feedback from earlier attempts:

%s

Address the feedback above in this attempt.`

type Editor struct {
	command string
	model   string
	timeout time.Duration
	apiKey  string
}

func New(cfg config.EditorConfig) *Editor {
	return &Editor{
		command: cfg.Command,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		apiKey:  cfg.APIKey,
	}
}

// ApplyEdit invokes the agent CLI in the project directory and returns
// the files the resulting commit touched.
func (e *Editor) ApplyEdit(ctx context.Context, req swarm.EditRequest) (*swarm.EditResult, error) {
	if req.ProjectDir == "" {
		return nil, fmt.Errorf("project directory is required")
	}
	if _, err := os.Stat(req.ProjectDir); err != nil {
		return nil, fmt.Errorf("project directory: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(promptTemplate, req.FilePath, req.Instruction, req.FilePath)
	if req.PreviousFeedback != "" {
		prompt += fmt.Sprintf(feedbackTemplate, req.PreviousFeedback)
	}

	args := []string{"-p", "--dangerously-skip-permissions"}
	if e.model != "" {
		args = append(args, "--model", e.model)
	}

	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Dir = req.ProjectDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = os.Environ()
	if e.apiKey != "" {
		cmd.Env = append(cmd.Env, "ANTHROPIC_API_KEY="+e.apiKey)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("edit agent timed out after %s", e.timeout)
		}
		return nil, fmt.Errorf("edit agent failed: %w (stderr: %s)", err, truncateOutput(stderr.String()))
	}

	changed := changedFiles(ctx, req.ProjectDir, req.FilePath)
	slog.Debug("edit applied",
		"file", req.FilePath,
		"changed", len(changed),
		"duration", time.Since(start).Round(time.Millisecond))

	return &swarm.EditResult{
		ChangedFiles: changed,
		Transcript:   stdout.String(),
	}, nil
}

// changedFiles asks git which files the agent's commit touched. The
// agent is told to commit, but if it staged without committing the
// cached diff still names the files. When both probes come back empty
// the requested file is reported as a best guess.
func changedFiles(ctx context.Context, projectDir, filePath string) []string {
	for _, probe := range [][]string{
		{"diff", "--name-only", "HEAD~1", "HEAD"},
		{"diff", "--cached", "--name-only"},
	} {
		cmd := exec.CommandContext(ctx, "git", probe...)
		cmd.Dir = projectDir
		out, err := cmd.Output()
		if err != nil {
			continue
		}
		if files := splitLines(string(out)); len(files) > 0 {
			return files
		}
	}
	return []string{filePath}
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func truncateOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
