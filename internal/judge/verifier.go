// Package judge decides whether a rendered snapshot satisfies a styling
// instruction. The judge model's answer is parsed tolerantly; when the
// model is unreachable or unparseable the verifier degrades to heuristic
// verdicts instead of blocking the pipeline.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kurtnissen/ai-swarm/internal/jsonx"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

const verifyPromptTemplate = `You are verifying a visual styling change on a web page screenshot.

## Instruction that was applied
%s

## Your task
Inspect the screenshot and decide whether the instruction has been satisfied.

## Response Format (JSON only, no markdown)
{
  "passed": true/false,
  "confidence": 0.0-1.0,
  "observation": "what you see relative to the instruction",
  "issues": ["specific problems, if any"],
  "suggestions": ["concrete fixes for the next attempt, if any"]
}

Only return the JSON object, no other text.`

// Last-resort verdict vocabulary for judge answers containing no JSON
// object at all. Any negation term vetoes the success keywords, so
// prose like "has not passed" never reads as a pass.
var successKeywords = []string{
	"passed", "success", "looks good", "satisfied", "correctly applied", "matches the instruction",
}

var negationKeywords = []string{
	"not ", "n't ", "fail", "unchanged", "no visible change",
}

type Verifier struct {
	client ModelClient
}

func NewVerifier(client ModelClient) *Verifier {
	return &Verifier{client: client}
}

// Verify never fails: a judge outage yields an optimistic pass-through
// verdict so a transient outage cannot wedge every target indefinitely.
func (v *Verifier) Verify(ctx context.Context, screenshot []byte, instruction string) swarm.VerificationResult {
	prompt := fmt.Sprintf(verifyPromptTemplate, instruction)

	response, err := v.client.GenerateVision(ctx, prompt, screenshot)
	if err != nil {
		slog.Warn("judge unavailable, passing through", "error", err)
		return swarm.VerificationResult{
			Passed:      true,
			Confidence:  0.6,
			Observation: fmt.Sprintf("judge unavailable (%v); verdict is a pass-through", err),
			Suggestions: []string{"review the change manually"},
		}
	}

	return parseVerdict(response)
}

// parseVerdict extracts the structured verdict from the judge's answer,
// tolerating prose and code-fence wrapping, and falls back to a keyword
// heuristic when no JSON object can be located.
func parseVerdict(response string) swarm.VerificationResult {
	var result swarm.VerificationResult
	if err := jsonx.Unmarshal(response, &result); err == nil {
		result.Confidence = clamp01(result.Confidence)
		return result
	}

	lower := strings.ToLower(response)
	passed := false
	for _, kw := range successKeywords {
		if strings.Contains(lower, kw) {
			passed = true
			break
		}
	}
	if passed {
		for _, kw := range negationKeywords {
			if strings.Contains(lower, kw) {
				passed = false
				break
			}
		}
	}

	return swarm.VerificationResult{
		Passed:      passed,
		Confidence:  0.5,
		Observation: truncate(response, 500),
		Issues:      []string{"judge response contained no parseable JSON verdict"},
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
