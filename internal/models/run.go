package models

import "time"

// RunInfo identifies one monitoring run.
type RunInfo struct {
	ID        string    `json:"id"`
	CheckedAt time.Time `json:"checked_at"`
}

// RunStatus is the state exposed by the status API.
type RunStatus struct {
	Running      bool                   `json:"running"`
	LastRunID    string                 `json:"last_run_id,omitempty"`
	LastRunAt    time.Time              `json:"last_run_at"`
	LastError    string                 `json:"last_error,omitempty"`
	TotalRuns    int                    `json:"total_runs"`
	TotalChanges int                    `json:"total_changes"`
	LastChanges  map[ChangeCategory]int `json:"last_changes"`
}
