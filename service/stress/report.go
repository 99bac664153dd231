package stress

import (
	"time"

	"treiber/domain/stack"
)

// Report is the outcome of one run.
type Report struct {
	RunID     uint64
	Scenario  Scenario
	StartedAt time.Time

	PushDuration time.Duration
	PopDuration  time.Duration

	Pushed     uint64
	Popped     uint64
	PushSum    uint64 // wrapping
	PopSum     uint64 // wrapping
	Duplicates uint64 // values popped more than once
	Missing    uint64 // values never popped
	Leftover   uint64 // values found after the drain finished

	Stats      stack.Stats
	Violations []string
}

// OK reports whether the run found no violation.
func (r Report) OK() bool {
	return len(r.Violations) == 0
}
