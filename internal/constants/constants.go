// Package constants provides shared constants used by the CLI and server wiring.
package constants

import "time"

// Processing constants
const (
	// WorkerPoolSize is the default number of days swept in parallel by a backfill
	WorkerPoolSize = 4

	// MaxBackfillDays caps a single sweep --from/--to range
	MaxBackfillDays = 366
)

// Timeouts
const (
	// ShutdownTimeout bounds graceful shutdown of the web server
	ShutdownTimeout = 30 * time.Second

	// CommandTimeout bounds one-shot CLI commands
	CommandTimeout = 5 * time.Minute
)
