package telemetry

import (
	"context"
	"time"
)

// Collector records controller observations for later inspection.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot is one poll tick as seen by the auto-switch controller.
// Switched is true only on ticks where a profile was actually applied.
type Snapshot struct {
	Timestamp    time.Time
	Source       string
	Capacity     int
	Mode         string
	Phase        string
	Candidate    string
	PendingCount int
	Profile      string
	Switched     bool
	Error        string
}
