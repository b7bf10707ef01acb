package scheduler

import "errors"

var (
	// ErrNoListers is returned when a runner is built without any lister
	ErrNoListers = errors.New("no resource listers configured")

	// ErrMaxRetriesExceeded is returned when max retries are exceeded
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// ErrInvalidCronSpec is returned when a cron expression cannot be parsed
	ErrInvalidCronSpec = errors.New("invalid cron expression")

	// ErrDuplicateJob is returned when a job name is scheduled twice
	ErrDuplicateJob = errors.New("duplicate job")
)
