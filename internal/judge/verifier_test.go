package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) GenerateText(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

func (f *fakeModel) GenerateVision(_ context.Context, _ string, _ []byte) (string, error) {
	return f.response, f.err
}

func TestVerifyParsesCleanJSON(t *testing.T) {
	v := NewVerifier(&fakeModel{response: `{"passed": true, "confidence": 0.92, "observation": "corners are rounded", "issues": [], "suggestions": []}`})

	res := v.Verify(context.Background(), []byte("png"), "round the corners")
	if !res.Passed {
		t.Error("expected passed")
	}
	if res.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", res.Confidence)
	}
	if res.Observation != "corners are rounded" {
		t.Errorf("unexpected observation %q", res.Observation)
	}
}

func TestVerifyParsesFencedJSONWithProse(t *testing.T) {
	response := "Sure, here is my verdict:\n```json\n" +
		`{"passed": false, "confidence": 0.85, "observation": "buttons unchanged", "issues": ["no border-radius visible"], "suggestions": ["target the .btn class"]}` +
		"\n```\nLet me know if you need anything else."
	v := NewVerifier(&fakeModel{response: response})

	res := v.Verify(context.Background(), []byte("png"), "round the corners")
	if res.Passed {
		t.Error("expected failed verdict")
	}
	if len(res.Issues) != 1 || res.Issues[0] != "no border-radius visible" {
		t.Errorf("unexpected issues %v", res.Issues)
	}
	if len(res.Suggestions) != 1 {
		t.Errorf("unexpected suggestions %v", res.Suggestions)
	}
}

func TestVerifyClampsConfidence(t *testing.T) {
	v := NewVerifier(&fakeModel{response: `{"passed": true, "confidence": 3.5, "observation": "ok"}`})
	if res := v.Verify(context.Background(), []byte("png"), "x"); res.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %f", res.Confidence)
	}

	v = NewVerifier(&fakeModel{response: `{"passed": true, "confidence": -0.2, "observation": "ok"}`})
	if res := v.Verify(context.Background(), []byte("png"), "x"); res.Confidence != 0 {
		t.Errorf("expected confidence clamped to 0, got %f", res.Confidence)
	}
}

func TestVerifyOutageDegradesToPass(t *testing.T) {
	// A judge outage must not fail the target: the verdict passes with
	// reduced confidence and flags the change for manual review.
	v := NewVerifier(&fakeModel{err: errors.New("rpc error: unavailable")})

	res := v.Verify(context.Background(), []byte("png"), "round the corners")
	if !res.Passed {
		t.Error("judge outage should degrade to a pass")
	}
	if res.Confidence != 0.6 {
		t.Errorf("expected confidence 0.6, got %f", res.Confidence)
	}
	if !strings.Contains(res.Observation, "judge unavailable") {
		t.Errorf("observation should note the outage, got %q", res.Observation)
	}
	if len(res.Suggestions) == 0 || !strings.Contains(res.Suggestions[0], "manual") {
		t.Errorf("expected a manual-review suggestion, got %v", res.Suggestions)
	}
}

func TestVerifyKeywordFallback(t *testing.T) {
	v := NewVerifier(&fakeModel{response: "The change looks good, the corners are rounded as requested."})
	res := v.Verify(context.Background(), []byte("png"), "round the corners")
	if !res.Passed {
		t.Error("keyword heuristic should pass on success language")
	}
	if res.Confidence != 0.5 {
		t.Errorf("expected heuristic confidence 0.5, got %f", res.Confidence)
	}
	if len(res.Issues) == 0 || !strings.Contains(res.Issues[0], "no parseable JSON") {
		t.Errorf("heuristic verdict should flag the parse failure, got %v", res.Issues)
	}

	v = NewVerifier(&fakeModel{response: "The buttons remain square and nothing changed."})
	if res := v.Verify(context.Background(), []byte("png"), "round the corners"); res.Passed {
		t.Error("keyword heuristic should fail without success language")
	}
}

func TestVerifyKeywordFallbackNegation(t *testing.T) {
	// A success keyword inside a negated sentence must not count.
	for _, response := range []string{
		"The change has not passed verification.",
		"This hasn't passed, the corners are still square.",
		"Verification failed, no success here.",
	} {
		v := NewVerifier(&fakeModel{response: response})
		if res := v.Verify(context.Background(), []byte("png"), "round the corners"); res.Passed {
			t.Errorf("negated response should fail the heuristic: %q", response)
		}
	}
}

type stubEditor struct{}

func (stubEditor) ApplyEdit(_ context.Context, req swarm.EditRequest) (*swarm.EditResult, error) {
	return &swarm.EditResult{ChangedFiles: []string{req.FilePath}}, nil
}

type stubRenderer struct{}

func (stubRenderer) Snapshot(_ context.Context, _ string, _ bool) (*swarm.Snapshot, error) {
	return &swarm.Snapshot{Image: []byte("png"), Title: "ok"}, nil
}

func TestJudgeOutageShortCircuitsTarget(t *testing.T) {
	// With the judge down on every attempt, the pass-through verdict
	// makes the target succeed on attempt 1 instead of burning retries.
	verifier := NewVerifier(&fakeModel{err: errors.New("connection refused")})
	controller := swarm.NewController(stubEditor{}, stubRenderer{}, verifier)

	res := controller.Run(context.Background(),
		swarm.TargetPage{URL: "http://localhost:3000/", FilePath: "src/Home.tsx"},
		"round the corners", "/tmp/proj", 3, false)

	if !res.Success {
		t.Fatal("target should succeed via pass-through")
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if len(res.VerificationHistory) != 1 || res.VerificationHistory[0].Confidence != 0.6 {
		t.Errorf("unexpected history %+v", res.VerificationHistory)
	}
}

func TestVerifySkipsMalformedObjectBeforeValid(t *testing.T) {
	response := `{"broken": } preamble {"passed": true, "confidence": 0.7, "observation": "fine"}`
	v := NewVerifier(&fakeModel{response: response})

	res := v.Verify(context.Background(), []byte("png"), "x")
	if !res.Passed || res.Confidence != 0.7 {
		t.Errorf("expected the valid trailing object to win, got %+v", res)
	}
}
