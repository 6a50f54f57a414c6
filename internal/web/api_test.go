package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kurtnissen/ai-swarm/internal/config"
	"github.com/kurtnissen/ai-swarm/internal/store"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

type stubEditor struct{}

func (stubEditor) ApplyEdit(_ context.Context, req swarm.EditRequest) (*swarm.EditResult, error) {
	return &swarm.EditResult{ChangedFiles: []string{req.FilePath}}, nil
}

type stubRenderer struct{}

func (stubRenderer) Snapshot(_ context.Context, _ string, _ bool) (*swarm.Snapshot, error) {
	return &swarm.Snapshot{Image: []byte("png"), Title: "ok"}, nil
}

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, _ []byte, _ string) swarm.VerificationResult {
	return swarm.VerificationResult{Passed: true, Confidence: 0.9, Observation: "fine"}
}

func newTestServer(t *testing.T, auth string) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	controller := swarm.NewController(stubEditor{}, stubRenderer{}, stubVerifier{})
	coord := swarm.NewCoordinator(controller, nil, st, nil, nil, t.TempDir())

	cfg := config.WebConfig{Port: 0, Auth: auth}
	return NewServer(st, nil, coord, nil, nil, cfg, t.TempDir(), "test"), st
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateSwarmAccepted(t *testing.T) {
	srv, _ := newTestServer(t, "")
	handler := srv.routes()

	rec := postJSON(t, handler, "/api/swarms", swarm.SwarmRequest{
		ProjectID:          "shop",
		StylingInstruction: "dark mode",
		Targets: []swarm.TargetPage{
			{URL: "http://localhost:3000/", FilePath: "src/Home.tsx"},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var run store.SwarmRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.ID == "" {
		t.Error("response should carry the assigned run id")
	}
	if run.Status != store.StatusRunning {
		t.Errorf("expected running status, got %q", run.Status)
	}
}

func TestCreateSwarmRejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t, "")
	handler := srv.routes()

	rec := postJSON(t, handler, "/api/swarms", swarm.SwarmRequest{
		ProjectID: "shop",
		// no instruction, no targets
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/swarms", bytes.NewReader([]byte("not json")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestGetSwarmNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	handler := srv.routes()

	req := httptest.NewRequest("GET", "/api/swarms/no-such-run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetSwarmAfterCompletion(t *testing.T) {
	srv, _ := newTestServer(t, "")
	handler := srv.routes()

	rec := postJSON(t, handler, "/api/swarms", swarm.SwarmRequest{
		ProjectID:          "shop",
		StylingInstruction: "dark mode",
		Targets: []swarm.TargetPage{
			{URL: "http://localhost:3000/", FilePath: "src/Home.tsx"},
		},
	})
	var run store.SwarmRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}

	// Wait for the background run to finish, then the API reflects the
	// stored terminal state.
	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest("GET", "/api/swarms/"+run.ID, nil)
		get := httptest.NewRecorder()
		handler.ServeHTTP(get, req)
		if get.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", get.Code)
		}
		var out struct {
			Status string         `json:"status"`
			Run    *store.SwarmRun `json:"run"`
		}
		if err := json.Unmarshal(get.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		if out.Status == store.StatusCompleted {
			if out.Run == nil || !out.Run.AllPassed {
				t.Errorf("completed run should report all_passed, got %+v", out.Run)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never completed, last status %q", out.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancelUnknownSwarmConflicts(t *testing.T) {
	srv, _ := newTestServer(t, "")
	handler := srv.routes()

	rec := postJSON(t, handler, "/api/swarms/no-such-run/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")
	handler := srv.routes()

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "ok" || out["version"] != "test" {
		t.Errorf("unexpected status payload %v", out)
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "hunter2")
	handler := srv.routes()

	// Protected route without credentials
	req := httptest.NewRequest("GET", "/api/swarms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	// Basic auth with the configured password
	req = httptest.NewRequest("GET", "/api/swarms", nil)
	req.SetBasicAuth("api", "hunter2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with basic auth, got %d", rec.Code)
	}

	// Login issues a session cookie
	login := postJSON(t, handler, "/api/login", map[string]string{"password": "hunter2"})
	if login.Code != http.StatusOK {
		t.Fatalf("login failed: %d", login.Code)
	}
	cookies := login.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login should set a session cookie")
	}

	req = httptest.NewRequest("GET", "/api/swarms", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with session cookie, got %d", rec.Code)
	}

	// Wrong password is rejected
	if bad := postJSON(t, handler, "/api/login", map[string]string{"password": "nope"}); bad.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", bad.Code)
	}
}
