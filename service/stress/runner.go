package stress

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"treiber/domain/stack"
	"treiber/infra/sequence"
)

// ErrConservation is returned, wrapped, when a run loses, duplicates or
// leaks values or nodes.
var ErrConservation = errors.New("stress: conservation violated")

// Sample is the value pushed by the scenario. ID is unique per run.
type Sample struct {
	ID    uint64
	Value uint64
}

// Runner executes scenarios. It is safe for concurrent use.
type Runner struct {
	log logrus.FieldLogger
	ids *sequence.Sequencer
}

func NewRunner(log logrus.FieldLogger, ids *sequence.Sequencer) *Runner {
	if ids == nil {
		ids = sequence.New(0)
	}
	return &Runner{
		log: log.WithField("component", "stress"),
		ids: ids,
	}
}

// cancelCheckEvery is how many operations a goroutine performs between
// looks at the context.
const cancelCheckEvery = 1024

// Run executes sc on a fresh stack. The returned Report is filled in
// even when err wraps ErrConservation. Cancelling ctx stops the run
// mid-phase.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Report, error) {
	if err := sc.Validate(); err != nil {
		return Report{}, fmt.Errorf("stress: invalid scenario: %w", err)
	}

	var opts []stack.Option
	if sc.PoisonCheck {
		opts = append(opts, stack.WithPoisonCheck())
	}
	s, err := stack.NewVariant[Sample](sc.Variant, opts...)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		RunID:     r.ids.Next(),
		Scenario:  sc,
		StartedAt: time.Now(),
	}
	log := r.log.WithFields(logrus.Fields{
		"run_id":  rep.RunID,
		"variant": sc.Variant.String(),
	})
	log.WithFields(logrus.Fields{
		"pushers": sc.Pushers,
		"pushes":  sc.PushesPerPusher,
		"poppers": sc.Poppers,
	}).Debug("run started")

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	// ---------------- push phase ----------------

	var pushSum atomic.Uint64
	begin := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < sc.Pushers; p++ {
		p := p
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(sc.Seed + int64(rep.RunID)*int64(sc.Pushers) + int64(p)))
			var sum uint64
			base := uint64(p * sc.PushesPerPusher)
			for i := 0; i < sc.PushesPerPusher; i++ {
				if i%cancelCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				v := rnd.Uint64()
				sum += v
				s.Push(Sample{ID: base + uint64(i), Value: v})
			}
			pushSum.Add(sum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.PushDuration = time.Since(begin)
	rep.Pushed = uint64(sc.Total())
	rep.PushSum = pushSum.Load()

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	// ---------------- pop phase ----------------

	seen := make([]atomic.Uint32, sc.Total())
	var popSum, popped, dups, foreign atomic.Uint64
	begin = time.Now()
	g, gctx = errgroup.WithContext(ctx)
	for c := 0; c < sc.Poppers; c++ {
		g.Go(func() error {
			var sum, n uint64
			for {
				if n%cancelCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				v, ok := s.Pop()
				if !ok {
					break
				}
				sum += v.Value
				n++
				if v.ID >= uint64(len(seen)) {
					foreign.Add(1)
					continue
				}
				if seen[v.ID].Add(1) > 1 {
					dups.Add(1)
				}
			}
			popSum.Add(sum)
			popped.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.PopDuration = time.Since(begin)
	rep.Popped = popped.Load()
	rep.PopSum = popSum.Load()
	rep.Duplicates = dups.Load()
	for i := range seen {
		if seen[i].Load() == 0 {
			rep.Missing++
		}
	}
	for {
		if _, ok := s.Pop(); !ok {
			break
		}
		rep.Leftover++
	}

	// One solitary push/pop after the drain is a quiescent point: it
	// drains whatever the racing pops left parked.
	if sc.Variant == stack.Reclaiming {
		s.Push(Sample{})
		s.Pop()
	}
	rep.Stats = s.Stats()
	rep.Violations = check(rep, foreign.Load())

	log = log.WithFields(logrus.Fields{
		"push_duration": rep.PushDuration,
		"pop_duration":  rep.PopDuration,
		"allocs":        rep.Stats.Allocs,
		"frees":         rep.Stats.Frees,
		"deferred":      rep.Stats.Deferred,
		"drains":        rep.Stats.Drains,
	})
	if !rep.OK() {
		log.WithField("violations", rep.Violations).Error("run failed")
		return rep, fmt.Errorf("%w: run %d: %v", ErrConservation, rep.RunID, rep.Violations)
	}
	log.Info("run passed")
	return rep, nil
}

func check(rep Report, foreign uint64) []string {
	var v []string
	if rep.PopSum != rep.PushSum {
		v = append(v, fmt.Sprintf("pop sum %d != push sum %d", rep.PopSum, rep.PushSum))
	}
	if rep.Popped != rep.Pushed {
		v = append(v, fmt.Sprintf("popped %d values, pushed %d", rep.Popped, rep.Pushed))
	}
	if rep.Duplicates > 0 {
		v = append(v, fmt.Sprintf("%d values popped more than once", rep.Duplicates))
	}
	if rep.Missing > 0 {
		v = append(v, fmt.Sprintf("%d values never popped", rep.Missing))
	}
	if foreign > 0 {
		v = append(v, fmt.Sprintf("%d popped values were never pushed", foreign))
	}
	if rep.Leftover > 0 {
		v = append(v, fmt.Sprintf("%d values left after drain", rep.Leftover))
	}

	st := rep.Stats
	if st.ActivePops != 0 {
		v = append(v, fmt.Sprintf("%d pops still inside the gate", st.ActivePops))
	}
	switch rep.Scenario.Variant {
	case stack.Reclaiming:
		if st.Allocs != st.Frees {
			v = append(v, fmt.Sprintf("allocs %d != frees %d", st.Allocs, st.Frees))
		}
		if st.Garbage != 0 {
			v = append(v, fmt.Sprintf("%d nodes still parked", st.Garbage))
		}
	case stack.Leaking:
		if st.Frees != 0 {
			v = append(v, fmt.Sprintf("leaking stack freed %d nodes", st.Frees))
		}
	}
	return v
}
