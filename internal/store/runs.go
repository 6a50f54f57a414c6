package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run statuses persisted in swarm_runs.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type SwarmRun struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	ProjectDir  string          `json:"project_dir"`
	Instruction string          `json:"instruction"`
	Status      string          `json:"status"`
	Targets     json.RawMessage `json:"targets"`
	Results     json.RawMessage `json:"results,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	AllPassed   bool            `json:"all_passed"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

const runColumns = `id, project_id, project_dir, instruction, status, targets, results, summary, all_passed, started_at, completed_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*SwarmRun, error) {
	r := &SwarmRun{}
	var targets string
	var results, summary *string
	err := scanner.Scan(&r.ID, &r.ProjectID, &r.ProjectDir, &r.Instruction, &r.Status,
		&targets, &results, &summary, &r.AllPassed, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Targets = json.RawMessage(targets)
	if results != nil {
		r.Results = json.RawMessage(*results)
	}
	if summary != nil {
		r.Summary = *summary
	}
	return r, nil
}

func (s *Store) SaveRun(r *SwarmRun) error {
	_, err := s.db.Exec(`
		INSERT INTO swarm_runs (id, project_id, project_dir, instruction, status, targets, results, summary, all_passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			results = excluded.results,
			summary = excluded.summary,
			all_passed = excluded.all_passed,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed', 'cancelled') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.ProjectID, r.ProjectDir, r.Instruction, r.Status, string(r.Targets), nullableJSON(r.Results), r.Summary, r.AllPassed)
	if err != nil {
		return fmt.Errorf("save swarm run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*SwarmRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM swarm_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns() ([]SwarmRun, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM swarm_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list swarm runs: %w", err)
	}
	defer rows.Close()

	var runs []SwarmRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// CompleteRun records the terminal state of a run together with its
// aggregated results.
func (s *Store) CompleteRun(id, status, summary string, allPassed bool, results json.RawMessage) error {
	_, err := s.db.Exec(`
		UPDATE swarm_runs
		SET status = ?, summary = ?, all_passed = ?, results = ?,
		    completed_at = CASE WHEN ? IN ('completed', 'failed', 'cancelled') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?`, status, summary, allPassed, nullableJSON(results), status, id)
	if err != nil {
		return fmt.Errorf("complete swarm run: %w", err)
	}
	return nil
}

func (s *Store) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM swarm_runs WHERE id = ?`, id)
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
