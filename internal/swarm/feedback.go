package swarm

import (
	"fmt"
	"strings"
)

// buildFeedback renders the verification history as a structured
// transcript for the next edit attempt. Empty when there is no history.
func buildFeedback(history []VerificationResult) string {
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, v := range history {
		verdict := "FAILED"
		if v.Passed {
			verdict = "PASSED"
		}
		fmt.Fprintf(&sb, "Attempt %d: %s\n", i+1, verdict)
		if v.Observation != "" {
			fmt.Fprintf(&sb, "Observation: %s\n", v.Observation)
		}
		if len(v.Issues) > 0 {
			sb.WriteString("Issues:\n")
			for _, issue := range v.Issues {
				fmt.Fprintf(&sb, "- %s\n", issue)
			}
		}
		if len(v.Suggestions) > 0 {
			sb.WriteString("Suggestions:\n")
			for _, s := range v.Suggestions {
				fmt.Fprintf(&sb, "- %s\n", s)
			}
		}
		if i < len(history)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// failureSummary derives the per-target error string from the most
// recent failing verification.
func failureSummary(history []VerificationResult) string {
	if len(history) == 0 {
		return "no attempts recorded"
	}
	last := history[len(history)-1]
	if len(last.Issues) > 0 {
		return fmt.Sprintf("%s (%s)", last.Observation, strings.Join(last.Issues, "; "))
	}
	return last.Observation
}
