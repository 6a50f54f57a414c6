// Package swarm drives visual edits across many target pages: each
// target runs an edit → render → judge loop until it passes or exhausts
// its retry budget, with the coordinator bounding how many targets run
// at once.
package swarm

import (
	"context"
	"fmt"
	"time"
)

// TargetPage identifies one unit of work: a reachable URL rendered from
// a source file under the project root. Immutable once dispatched.
type TargetPage struct {
	URL           string `json:"url"`
	FilePath      string `json:"filePath"`
	ComponentName string `json:"componentName,omitempty"`
}

// SwarmRequest is the dispatch input. Never mutated after creation.
type SwarmRequest struct {
	ID                 string       `json:"id"`
	ProjectID          string       `json:"project_id"`
	ProjectDir         string       `json:"project_dir"`
	StylingInstruction string       `json:"styling_instruction"`
	Targets            []TargetPage `json:"targets"`
	MaxRetries         int          `json:"max_retries"`
	Concurrency        int          `json:"concurrency"`
	Authenticated      bool         `json:"authenticated"`
}

const (
	DefaultMaxRetries  = 3
	DefaultConcurrency = 4
)

// ApplyDefaults fills MaxRetries and Concurrency when unset.
func (r *SwarmRequest) ApplyDefaults() {
	if r.MaxRetries < 1 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.Concurrency < 1 {
		r.Concurrency = DefaultConcurrency
	}
}

// Validate rejects malformed requests before any work starts.
func (r *SwarmRequest) Validate() error {
	if r.StylingInstruction == "" {
		return fmt.Errorf("styling instruction must not be empty")
	}
	if r.ProjectID == "" {
		return fmt.Errorf("project id must not be empty")
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for i, t := range r.Targets {
		if t.URL == "" {
			return fmt.Errorf("target %d: url must not be empty", i)
		}
		if t.FilePath == "" {
			return fmt.Errorf("target %d: filePath must not be empty", i)
		}
	}
	return nil
}

// VerificationResult is one judge verdict. Produced once per attempt and
// accumulated, in order, into a target's history.
type VerificationResult struct {
	Passed      bool     `json:"passed"`
	Confidence  float64  `json:"confidence"`
	Observation string   `json:"observation"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// TargetResult is the terminal state of one target's control loop.
// Success is true iff the last history entry passed; Attempts always
// equals len(VerificationHistory) because edit and render failures are
// recorded as synthetic failing verifications.
type TargetResult struct {
	URL                 string               `json:"url"`
	FilePath            string               `json:"filePath"`
	Success             bool                 `json:"success"`
	Attempts            int                  `json:"attempts"`
	FinalScreenshot     []byte               `json:"-"`
	ScreenshotKey       string               `json:"screenshot_key,omitempty"`
	Error               string               `json:"error,omitempty"`
	VerificationHistory []VerificationResult `json:"verification_history"`
}

// SwarmResult aggregates all target results for one run.
type SwarmResult struct {
	RunID     string         `json:"run_id"`
	Results   []TargetResult `json:"results"`
	Duration  time.Duration  `json:"duration"`
	AllPassed bool           `json:"all_passed"`
	Summary   string         `json:"summary"`
}

// EditRequest asks the editing agent for a styling-only change to one file.
type EditRequest struct {
	FilePath         string
	Instruction      string
	ProjectDir       string
	PreviousFeedback string
}

// EditResult reports which files the agent's commit touched.
type EditResult struct {
	ChangedFiles []string
	Transcript   string
}

// Editor applies one edit. Agent errors and timeouts surface as a
// returned error, never a panic.
type Editor interface {
	ApplyEdit(ctx context.Context, req EditRequest) (*EditResult, error)
}

// Snapshot is an encoded page image plus its title.
type Snapshot struct {
	Image []byte
	Title string
}

// Renderer captures a visual snapshot of a target URL.
type Renderer interface {
	Snapshot(ctx context.Context, url string, authenticated bool) (*Snapshot, error)
}

// Verifier judges whether a snapshot satisfies the instruction. It never
// fails: judge outages degrade to a heuristic verdict internally.
type Verifier interface {
	Verify(ctx context.Context, screenshot []byte, instruction string) VerificationResult
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notifier delivers best-effort, fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, subject, body string, priority Priority) error
}
