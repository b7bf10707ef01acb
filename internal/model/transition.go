package model

import "time"

// TransitionResult represents the outcome of a power transition
type TransitionResult string

const (
	TransitionResultSucceeded TransitionResult = "succeeded"
	TransitionResultFailed    TransitionResult = "failed"
	TransitionResultDryRun    TransitionResult = "dry_run"

	// TransitionResultInvalidSchedule marks a resource skipped because its
	// schedule could not be parsed; no transition was attempted
	TransitionResultInvalidSchedule TransitionResult = "invalid_schedule"
)

// Transition represents one attempt to change the power state of a resource
type Transition struct {
	ID              string           `json:"id"`
	RunID           string           `json:"run_id"`
	ResourceID      string           `json:"resource_id"`
	Provider        string           `json:"provider"`
	Target          string           `json:"target"`
	PreviousRunning bool             `json:"previous_running"`
	Result          TransitionResult `json:"result"`
	Error           string           `json:"error,omitempty"`
	Schedule        string           `json:"schedule"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
}
