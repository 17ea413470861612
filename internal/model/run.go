// Package model holds the records shared by the stores, the CLI and the
// HTTP server.
package model

import "time"

// RunStatus represents the state of a boundary run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// Run is one invocation of the boundary pipeline.
type Run struct {
	ID        string     `json:"id"`
	Census    string     `json:"census"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the outcome of a completed run.
type RunResult struct {
	Records    int      `json:"records"`
	Points     int      `json:"points"`
	Districts  int      `json:"districts"`
	Skipped    int      `json:"skipped"`
	Unresolved int      `json:"unresolved"`
	Passes     int      `json:"passes"`
	CapReached bool     `json:"cap_reached,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms"`
	Outputs    []string `json:"outputs,omitempty"`
}

// Elapsed returns the run duration.
func (r *RunResult) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMS) * time.Millisecond
}
