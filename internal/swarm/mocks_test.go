package swarm

import (
	"context"
	"fmt"
	"sync"
)

// fakeEditor scripts edit outcomes and records the feedback it was given.
type fakeEditor struct {
	mu        sync.Mutex
	err       error
	calls     int
	feedbacks []string
	onApply   func(req EditRequest)
}

func (f *fakeEditor) ApplyEdit(_ context.Context, req EditRequest) (*EditResult, error) {
	f.mu.Lock()
	f.calls++
	f.feedbacks = append(f.feedbacks, req.PreviousFeedback)
	fn := f.onApply
	err := f.err
	f.mu.Unlock()

	if fn != nil {
		fn(req)
	}
	if err != nil {
		return nil, err
	}
	return &EditResult{ChangedFiles: []string{req.FilePath}}, nil
}

func (f *fakeEditor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeRenderer) Snapshot(_ context.Context, url string, _ bool) (*Snapshot, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &Snapshot{Image: []byte("png:" + url), Title: "Test Page"}, nil
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeVerifier returns scripted verdicts per URL; verdicts are consumed
// in order and the last one repeats.
type fakeVerifier struct {
	mu       sync.Mutex
	verdicts map[string][]VerificationResult
	seen     map[string]int
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		verdicts: make(map[string][]VerificationResult),
		seen:     make(map[string]int),
	}
}

func (f *fakeVerifier) script(url string, results ...VerificationResult) {
	f.verdicts[url] = results
}

func (f *fakeVerifier) Verify(_ context.Context, screenshot []byte, _ string) VerificationResult {
	url := string(screenshot[len("png:"):])

	f.mu.Lock()
	defer f.mu.Unlock()
	scripted, ok := f.verdicts[url]
	if !ok || len(scripted) == 0 {
		return VerificationResult{Passed: false, Confidence: 0.9, Observation: "unscripted target"}
	}
	idx := f.seen[url]
	if idx >= len(scripted) {
		idx = len(scripted) - 1
	}
	f.seen[url]++
	return scripted[idx]
}

func pass() VerificationResult {
	return VerificationResult{Passed: true, Confidence: 0.95, Observation: "change applied"}
}

func fail(issues ...string) VerificationResult {
	return VerificationResult{
		Passed:      false,
		Confidence:  0.8,
		Observation: "change not visible",
		Issues:      issues,
		Suggestions: []string{"increase specificity"},
	}
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	subjects []string
	bodies   []string
}

func (f *fakeNotifier) Notify(_ context.Context, subject, body string, _ Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeNotifier) sent() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...), append([]string(nil), f.bodies...)
}

func targetsN(n int) []TargetPage {
	out := make([]TargetPage, n)
	for i := range out {
		out[i] = TargetPage{
			URL:      fmt.Sprintf("http://localhost:3000/page-%d", i+1),
			FilePath: fmt.Sprintf("src/pages/Page%d.tsx", i+1),
		}
	}
	return out
}
