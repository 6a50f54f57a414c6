package swarm

import (
	"context"
	"fmt"
	"log/slog"
)

// Controller runs the per-target retry loop. All failure modes are
// captured into the returned TargetResult; nothing escapes its boundary.
type Controller struct {
	editor   Editor
	renderer Renderer
	verifier Verifier
}

func NewController(editor Editor, renderer Renderer, verifier Verifier) *Controller {
	return &Controller{
		editor:   editor,
		renderer: renderer,
		verifier: verifier,
	}
}

// Run drives one target through edit → render → verify until the judge
// passes it or the retry budget is spent. A failed edit or render counts
// as a full attempt and is recorded as a synthetic failing verification;
// the loop never spends more than maxRetries attempts regardless of
// which stage failed.
func (c *Controller) Run(ctx context.Context, target TargetPage, instruction, projectDir string, maxRetries int, authenticated bool) TargetResult {
	result := TargetResult{
		URL:      target.URL,
		FilePath: target.FilePath,
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt
		feedback := buildFeedback(result.VerificationHistory)

		edit, err := c.editor.ApplyEdit(ctx, EditRequest{
			FilePath:         target.FilePath,
			Instruction:      instruction,
			ProjectDir:       projectDir,
			PreviousFeedback: feedback,
		})
		if err != nil {
			slog.Warn("edit failed", "url", target.URL, "attempt", attempt, "error", err)
			result.VerificationHistory = append(result.VerificationHistory, VerificationResult{
				Passed:      false,
				Confidence:  0,
				Observation: fmt.Sprintf("edit failed: %v", err),
			})
			continue
		}
		slog.Debug("edit applied", "url", target.URL, "attempt", attempt, "changed", len(edit.ChangedFiles))

		snap, err := c.renderer.Snapshot(ctx, target.URL, authenticated)
		if err != nil || snap == nil || len(snap.Image) == 0 {
			if err == nil {
				err = fmt.Errorf("renderer returned no image")
			}
			slog.Warn("render failed", "url", target.URL, "attempt", attempt, "error", err)
			result.VerificationHistory = append(result.VerificationHistory, VerificationResult{
				Passed:      false,
				Confidence:  0,
				Observation: fmt.Sprintf("render failed: %v", err),
			})
			continue
		}
		// Keep the latest capture even if this attempt ends up failing,
		// so callers always have visual evidence of the final state.
		result.FinalScreenshot = snap.Image

		verification := c.verifier.Verify(ctx, snap.Image, instruction)
		result.VerificationHistory = append(result.VerificationHistory, verification)

		if verification.Passed {
			result.Success = true
			return result
		}
	}

	result.Success = false
	result.Error = failureSummary(result.VerificationHistory)
	return result
}
