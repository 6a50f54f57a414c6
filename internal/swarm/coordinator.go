package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kurtnissen/ai-swarm/internal/artifacts"
	"github.com/kurtnissen/ai-swarm/internal/natsbus"
	"github.com/kurtnissen/ai-swarm/internal/store"
)

// CancelFlag is a one-shot cooperative cancellation signal, polled by
// the coordinator only at wave boundaries. A controller already running
// is never interrupted by it.
type CancelFlag struct {
	mu  sync.Mutex
	set bool
}

func (f *CancelFlag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = true
}

func (f *CancelFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

type runHandle struct {
	cancel *CancelFlag
	stop   context.CancelFunc
	done   chan struct{}
}

// Coordinator fans a styling instruction out across targets in
// concurrency-bounded waves and fans results back into one SwarmResult.
type Coordinator struct {
	controller *Controller
	notifier   Notifier
	store      *store.Store
	events     *natsbus.Client
	archive    *artifacts.Archive
	baseDir    string

	runsMu sync.RWMutex
	runs   map[string]*runHandle
}

// NewCoordinator wires the per-target controller with persistence,
// eventing, artifact storage, and notification. Store, events, archive,
// and notifier may each be nil; the coordinator degrades to the pure
// in-memory loop, which is how tests drive it.
func NewCoordinator(controller *Controller, notifier Notifier, s *store.Store, events *natsbus.Client, archive *artifacts.Archive, baseDir string) *Coordinator {
	return &Coordinator{
		controller: controller,
		notifier:   notifier,
		store:      s,
		events:     events,
		archive:    archive,
		baseDir:    baseDir,
		runs:       make(map[string]*runHandle),
	}
}

// Dispatch validates the request, persists the run, and starts executing
// it in the background. The returned run reflects the initial state.
func (c *Coordinator) Dispatch(ctx context.Context, req SwarmRequest) (*store.SwarmRun, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid swarm request: %w", err)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.ProjectDir == "" {
		req.ProjectDir = defaultProjectDir(c.baseDir, req.ProjectID)
	}

	targetsJSON, _ := json.Marshal(req.Targets)
	run := &store.SwarmRun{
		ID:          req.ID,
		ProjectID:   req.ProjectID,
		ProjectDir:  req.ProjectDir,
		Instruction: req.StylingInstruction,
		Status:      store.StatusRunning,
		Targets:     targetsJSON,
	}
	if c.store != nil {
		if err := c.store.SaveRun(run); err != nil {
			return nil, fmt.Errorf("save swarm run: %w", err)
		}
	}

	// Use a background context so the run outlives the HTTP request.
	runCtx, stop := context.WithCancel(context.Background())
	handle := &runHandle{
		cancel: &CancelFlag{},
		stop:   stop,
		done:   make(chan struct{}),
	}
	c.runsMu.Lock()
	c.runs[req.ID] = handle
	c.runsMu.Unlock()

	c.publishEvent(req.ID, "swarm_started", map[string]any{
		"project_id": req.ProjectID,
		"targets":    len(req.Targets),
	})

	go c.executeRun(runCtx, req, handle)

	return run, nil
}

func (c *Coordinator) executeRun(ctx context.Context, req SwarmRequest, handle *runHandle) {
	defer close(handle.done)
	defer func() {
		c.runsMu.Lock()
		delete(c.runs, req.ID)
		c.runsMu.Unlock()
	}()

	res := c.Execute(ctx, req, handle.cancel)

	c.archiveScreenshots(req.ID, res)

	status := store.StatusCompleted
	if handle.cancel.IsSet() || ctx.Err() != nil {
		status = store.StatusCancelled
	}

	if c.store != nil {
		resultsJSON, _ := json.Marshal(res.Results)
		if err := c.store.CompleteRun(req.ID, status, res.Summary, res.AllPassed, resultsJSON); err != nil {
			slog.Error("failed to persist swarm result", "id", req.ID, "error", err)
		}
	}

	c.publishEvent(req.ID, "swarm_"+status, map[string]any{
		"summary":    res.Summary,
		"all_passed": res.AllPassed,
		"results":    len(res.Results),
	})

	if !res.AllPassed && len(res.Results) > 0 {
		c.notifyFailures(req, res)
	}

	slog.Info("swarm finished", "id", req.ID, "status", status, "summary", res.Summary)
}

// Execute runs the whole batch synchronously and returns the aggregate.
// Targets are partitioned into consecutive waves of at most
// min(concurrency, len(targets)) controllers; each wave is joined before
// the next starts, and the cancel flag is polled only at that barrier.
func (c *Coordinator) Execute(ctx context.Context, req SwarmRequest, cancel *CancelFlag) *SwarmResult {
	started := time.Now()
	res := &SwarmResult{RunID: req.ID}

	if len(req.Targets) == 0 {
		res.Summary = "no targets to process"
		res.Duration = time.Since(started)
		return res
	}

	req.ApplyDefaults()
	batchSize := min(req.Concurrency, len(req.Targets))

	for start := 0; start < len(req.Targets); start += batchSize {
		if cancel != nil && cancel.IsSet() {
			slog.Info("swarm cancelled, skipping remaining targets",
				"id", req.ID, "completed", len(res.Results), "remaining", len(req.Targets)-start)
			break
		}
		if ctx.Err() != nil {
			break
		}

		end := min(start+batchSize, len(req.Targets))
		batch := req.Targets[start:end]
		slog.Info("executing wave", "id", req.ID, "from", start, "size", len(batch))

		// Each controller writes only its own slot; no shared state
		// between targets in flight.
		waveResults := make([]TargetResult, len(batch))
		var wg sync.WaitGroup
		for i, target := range batch {
			wg.Add(1)
			go func(i int, target TargetPage) {
				defer wg.Done()
				waveResults[i] = c.controller.Run(ctx, target, req.StylingInstruction, req.ProjectDir, req.MaxRetries, req.Authenticated)
			}(i, target)
		}
		wg.Wait()

		for _, tr := range waveResults {
			res.Results = append(res.Results, tr)
			c.publishEvent(req.ID, "target_completed", map[string]any{
				"url":      tr.URL,
				"success":  tr.Success,
				"attempts": tr.Attempts,
			})
			if c.events != nil {
				// Full result on the per-target subject for point subscribers.
				if err := c.events.PublishJSON(natsbus.TopicSwarmTarget(req.ID, tr.URL), tr); err != nil {
					slog.Debug("target result publish failed", "id", req.ID, "url", tr.URL, "error", err)
				}
			}
		}
		c.publishEvent(req.ID, "wave_completed", map[string]any{
			"completed": len(res.Results),
			"total":     len(req.Targets),
		})
	}

	res.AllPassed = len(res.Results) > 0
	passed := 0
	for _, tr := range res.Results {
		if tr.Success {
			passed++
		} else {
			res.AllPassed = false
		}
	}
	res.Summary = buildSummary(passed, len(res.Results), len(req.Targets))
	res.Duration = time.Since(started)
	return res
}

func buildSummary(passed, completed, total int) string {
	if completed == 0 {
		return "no targets to process"
	}
	if passed == completed && completed == total {
		return fmt.Sprintf("All %d targets passed", total)
	}
	s := fmt.Sprintf("%d/%d targets passed, %d failed", passed, completed, completed-passed)
	if completed < total {
		s += fmt.Sprintf("; %d not started", total-completed)
	}
	return s
}

// Status reports the state of a run: running, completed, failed,
// cancelled, or unknown, with the stored run when one exists.
func (c *Coordinator) Status(id string) (string, *store.SwarmRun, error) {
	c.runsMu.RLock()
	_, running := c.runs[id]
	c.runsMu.RUnlock()

	var run *store.SwarmRun
	var err error
	if c.store != nil {
		run, err = c.store.GetRun(id)
		if err != nil {
			return "", nil, err
		}
	}
	if running {
		return store.StatusRunning, run, nil
	}
	if run == nil {
		return "unknown", nil, nil
	}
	return run.Status, run, nil
}

// Cancel requests a cooperative stop of a running swarm. With hard set,
// the underlying execution context is cancelled as well, so in-flight
// controllers are terminated rather than run to completion.
func (c *Coordinator) Cancel(id string, hard bool) error {
	c.runsMu.RLock()
	handle, ok := c.runs[id]
	c.runsMu.RUnlock()
	if !ok {
		return fmt.Errorf("swarm %s is not running", id)
	}

	handle.cancel.Set()
	if hard {
		handle.stop()
	}
	slog.Info("swarm cancellation requested", "id", id, "hard", hard)
	return nil
}

// ActiveRuns returns the number of runs currently executing.
func (c *Coordinator) ActiveRuns() int {
	c.runsMu.RLock()
	defer c.runsMu.RUnlock()
	return len(c.runs)
}

func (c *Coordinator) archiveScreenshots(runID string, res *SwarmResult) {
	if c.archive == nil {
		return
	}
	for i := range res.Results {
		tr := &res.Results[i]
		if len(tr.FinalScreenshot) == 0 {
			continue
		}
		key, err := c.archive.Save(runID, i, tr.Attempts, tr.FinalScreenshot)
		if err != nil {
			slog.Warn("failed to archive screenshot", "id", runID, "url", tr.URL, "error", err)
			continue
		}
		tr.ScreenshotKey = key
	}
}

func (c *Coordinator) notifyFailures(req SwarmRequest, res *SwarmResult) {
	if c.notifier == nil {
		return
	}

	var failed []TargetResult
	for _, tr := range res.Results {
		if !tr.Success {
			failed = append(failed, tr)
		}
	}
	if len(failed) == 0 {
		return
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Swarm %s: %s\n\nFailed targets:\n", req.ID, res.Summary)
	for _, tr := range failed {
		fmt.Fprintf(&body, "- %s (%s): %s\n", tr.URL, tr.FilePath, tr.Error)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	subject := fmt.Sprintf("Visual edit swarm: %d target(s) failed", len(failed))
	if err := c.notifier.Notify(ctx, subject, body.String(), PriorityHigh); err != nil {
		// Notification failure never changes the run outcome.
		slog.Warn("failure notification not delivered", "id", req.ID, "error", err)
	}
}

func (c *Coordinator) publishEvent(runID, eventType string, data map[string]any) {
	if c.events == nil {
		return
	}
	event := map[string]any{
		"type":      eventType,
		"swarm_id":  runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	if err := c.events.PublishJSON(natsbus.TopicSwarmEvents(runID), event); err != nil {
		slog.Debug("event publish failed", "id", runID, "type", eventType, "error", err)
	}
}

func defaultProjectDir(baseDir, projectID string) string {
	if baseDir == "" {
		baseDir = "projects"
	}
	return baseDir + "/" + projectID
}

// Wait blocks until the given run finishes, for callers that need the
// hard-cancel path to observe termination.
func (c *Coordinator) Wait(id string, timeout time.Duration) bool {
	c.runsMu.RLock()
	handle, ok := c.runs[id]
	c.runsMu.RUnlock()
	if !ok {
		return true
	}
	select {
	case <-handle.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
