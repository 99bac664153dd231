package stress

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treiber/domain/stack"
	"treiber/infra/sequence"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRunConservation(t *testing.T) {
	r := NewRunner(quietLogger(), sequence.New(0))

	for _, v := range []stack.Variant{stack.Reclaiming, stack.Leaking} {
		t.Run(v.String(), func(t *testing.T) {
			rep, err := r.Run(context.Background(), Scenario{
				Variant:         v,
				Pushers:         10,
				PushesPerPusher: 10,
				Poppers:         10,
				Seed:            1,
				PoisonCheck:     true,
			})
			require.NoError(t, err)
			assert.True(t, rep.OK(), rep.Violations)
			assert.Equal(t, uint64(100), rep.Pushed)
			assert.Equal(t, uint64(100), rep.Popped)
			assert.Equal(t, rep.PushSum, rep.PopSum)
			assert.Zero(t, rep.Missing)
			assert.Zero(t, rep.Duplicates)
			assert.Zero(t, rep.Leftover)
			if v == stack.Leaking {
				assert.Zero(t, rep.Stats.Frees)
			} else {
				assert.Equal(t, rep.Stats.Allocs, rep.Stats.Frees)
			}
		})
	}
}

func TestRunHeavy(t *testing.T) {
	if testing.Short() {
		t.Skip("heavy contention run")
	}
	r := NewRunner(quietLogger(), nil)
	rep, err := r.Run(context.Background(), Scenario{
		Variant:         stack.Reclaiming,
		Pushers:         200,
		PushesPerPusher: 2000,
		Poppers:         200,
		PoisonCheck:     true,
	})
	require.NoError(t, err)
	assert.True(t, rep.OK())
}

func TestRunAssignsIncreasingIDs(t *testing.T) {
	r := NewRunner(quietLogger(), sequence.New(41))
	sc := Scenario{Pushers: 1, PushesPerPusher: 1, Poppers: 1}

	a, err := r.Run(context.Background(), sc)
	require.NoError(t, err)
	b, err := r.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), a.RunID)
	assert.Equal(t, uint64(43), b.RunID)
}

func TestRunRejectsInvalidScenario(t *testing.T) {
	r := NewRunner(quietLogger(), nil)
	_, err := r.Run(context.Background(), Scenario{Pushers: 0, PushesPerPusher: 1, Poppers: 1})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConservation))
}

func TestRunCancelled(t *testing.T) {
	r := NewRunner(quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, Scenario{Pushers: 1, PushesPerPusher: 1, Poppers: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStopsMidPhaseOnCancel(t *testing.T) {
	r := NewRunner(quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(time.Millisecond, cancel)
	defer timer.Stop()

	rep, err := r.Run(ctx, Scenario{Pushers: 4, PushesPerPusher: 1 << 20, Poppers: 4})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.PushDuration, "push phase should not have completed")
}

func TestCheckFlagsViolations(t *testing.T) {
	ok := Report{
		Scenario: Scenario{Variant: stack.Reclaiming},
		Pushed:   3,
		Popped:   3,
		PushSum:  9,
		PopSum:   9,
		Stats:    stack.Stats{Allocs: 4, Frees: 4},
	}
	assert.Empty(t, check(ok, 0))

	bad := ok
	bad.Popped = 4
	bad.PopSum = 12
	bad.Duplicates = 1
	bad.Stats = stack.Stats{Allocs: 4, Frees: 3, Garbage: 1}
	v := check(bad, 0)
	assert.Len(t, v, 5)

	leak := Report{
		Scenario: Scenario{Variant: stack.Leaking},
		Stats:    stack.Stats{Allocs: 2, Frees: 1},
	}
	assert.Len(t, check(leak, 0), 1)

	assert.Len(t, check(ok, 2), 1)
}

func TestScenarioValidate(t *testing.T) {
	assert.NoError(t, Scenario{Pushers: 1, PushesPerPusher: 1, Poppers: 1}.Validate())
	err := Scenario{Variant: stack.Variant(9)}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pushers")
	assert.Contains(t, err.Error(), "poppers")
	assert.Contains(t, err.Error(), "variant")
}
