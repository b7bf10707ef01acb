package model

import "time"

// RunSummary represents the outcome of one evaluation pass over all resources
type RunSummary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Resource counts. Listed equals the sum of the other counts; Skipped
	// holds scheduled resources left out because the pass was cancelled.
	Listed      int `json:"listed"`
	Ignored     int `json:"ignored"`
	Unscheduled int `json:"unscheduled"`
	Invalid     int `json:"invalid"`
	Unchanged   int `json:"unchanged"`
	Started     int `json:"started"`
	Stopped     int `json:"stopped"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`

	ListerErrors int `json:"lister_errors"`
}
