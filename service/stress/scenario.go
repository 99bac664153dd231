package stress

import (
	"errors"
	"fmt"

	"treiber/domain/stack"
)

// Scenario describes one conservation run.
type Scenario struct {
	Variant         stack.Variant
	Pushers         int
	PushesPerPusher int
	Poppers         int
	Seed            int64
	PoisonCheck     bool
}

// Total is the number of values pushed over the whole run.
func (s Scenario) Total() int {
	return s.Pushers * s.PushesPerPusher
}

func (s Scenario) Validate() error {
	var errs []error
	if s.Pushers <= 0 {
		errs = append(errs, fmt.Errorf("pushers must be positive, got %d", s.Pushers))
	}
	if s.PushesPerPusher <= 0 {
		errs = append(errs, fmt.Errorf("pushes per pusher must be positive, got %d", s.PushesPerPusher))
	}
	if s.Poppers <= 0 {
		errs = append(errs, fmt.Errorf("poppers must be positive, got %d", s.Poppers))
	}
	if s.Variant != stack.Reclaiming && s.Variant != stack.Leaking {
		errs = append(errs, fmt.Errorf("unknown variant %d", s.Variant))
	}
	return errors.Join(errs...)
}
