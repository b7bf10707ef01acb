package scheduler

import "time"

const (
	// DefaultCronSpec runs a pass every five minutes
	DefaultCronSpec = "0 */5 * * * *"

	// DefaultWorkers bounds the number of resources reconciled in parallel
	DefaultWorkers = 8

	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0

	// DefaultResourceTimeout bounds one resource's reconcile, retries included
	DefaultResourceTimeout = 2 * time.Minute
)
