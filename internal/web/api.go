package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kurtnissen/ai-swarm/internal/store"
	"github.com/kurtnissen/ai-swarm/internal/swarm"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Swarm runs
	mux.HandleFunc("GET /api/swarms", s.listSwarms)
	mux.HandleFunc("POST /api/swarms", s.createSwarm)
	mux.HandleFunc("GET /api/swarms/{id}", s.getSwarm)
	mux.HandleFunc("POST /api/swarms/{id}/cancel", s.cancelSwarm)
	mux.HandleFunc("DELETE /api/swarms/{id}", s.deleteSwarm)
	mux.HandleFunc("GET /api/swarms/{id}/screenshots/{key}", s.getScreenshot)

	// Request planning
	mux.HandleFunc("POST /api/parse", s.parseRequest)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listSwarms(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, runs)
}

func (s *Server) createSwarm(w http.ResponseWriter, r *http.Request) {
	var req swarm.SwarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// The coordinator assigns run IDs.
	req.ID = ""

	run, err := s.coord.Dispatch(r.Context(), req)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

func (s *Server) getSwarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, run, err := s.coord.Status(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status == "unknown" {
		jsonError(w, "swarm not found", http.StatusNotFound)
		return
	}

	out := map[string]any{
		"id":     id,
		"status": status,
	}
	if run != nil {
		out["run"] = run
	}
	jsonResponse(w, out)
}

func (s *Server) cancelSwarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hard := r.URL.Query().Get("hard") == "true"

	if err := s.coord.Cancel(id, hard); err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	jsonResponse(w, map[string]any{"status": "cancelling", "hard": hard})
}

func (s *Server) deleteSwarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, _, err := s.coord.Status(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status == store.StatusRunning {
		jsonError(w, "swarm is still running", http.StatusConflict)
		return
	}

	if err := s.store.DeleteRun(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		jsonError(w, "artifact storage not configured", http.StatusNotFound)
		return
	}
	key := r.PathValue("key")
	png, err := s.archive.Load(key)
	if err != nil {
		jsonError(w, "screenshot not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Request   string `json:"request"`
		ProjectID string `json:"project_id"`
		BaseURL   string `json:"base_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Request == "" || body.ProjectID == "" || body.BaseURL == "" {
		jsonError(w, "request, project_id and base_url are required", http.StatusBadRequest)
		return
	}

	projectDir := filepath.Join(s.projectsDir, body.ProjectID)
	result, err := s.parser.Parse(r.Context(), body.Request, projectDir, body.BaseURL)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, result)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	runs, _ := s.store.ListRuns()

	completed := 0
	for _, run := range runs {
		if run.Status == store.StatusCompleted {
			completed++
		}
	}

	jsonResponse(w, map[string]any{
		"status":         "ok",
		"active_swarms":  s.coord.ActiveRuns(),
		"total_runs":     len(runs),
		"completed_runs": completed,
		"ws_clients":     s.hub.clientCount(),
		"uptime":         formatUptime(time.Since(s.startedAt)),
		"timestamp":      time.Now().UTC(),
		"version":        s.version,
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
