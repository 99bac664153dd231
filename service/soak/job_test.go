package soak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treiber/domain/stack"
	"treiber/infra/metrics"
	"treiber/service/stress"
)

type memRecorder struct {
	mu   sync.Mutex
	reps []stress.Report
	err  error
}

func (r *memRecorder) Append(rep stress.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reps = append(r.reps, rep)
	return r.err
}

func (r *memRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reps)
}

type fakeHealth struct {
	mu      sync.Mutex
	serving []bool
}

func (h *fakeHealth) SetServing(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.serving = append(h.serving, ok)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newJob(rec Recorder, h Health) *Job {
	return New(Config{
		Runner: stress.NewRunner(quietLogger(), nil),
		Scenario: stress.Scenario{
			Variant:         stack.Reclaiming,
			Pushers:         4,
			PushesPerPusher: 50,
			Poppers:         4,
			PoisonCheck:     true,
		},
		Interval: 5 * time.Millisecond,
		Recorder: rec,
		Health:   h,
		Metrics:  metrics.NewRunMetrics(prometheus.NewRegistry()),
		Log:      quietLogger(),
	})
}

func TestRunOnceRecords(t *testing.T) {
	rec := &memRecorder{}
	h := &fakeHealth{}
	j := newJob(rec, h)

	rep, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 1, rec.len())
	assert.Equal(t, uint64(1), j.Runs())
	assert.Zero(t, j.Failures())
	assert.Empty(t, h.serving)

	st := j.LastStats()
	assert.Equal(t, st.Allocs, st.Frees)
	assert.NotZero(t, st.Allocs)
}

func TestRecorderErrorDoesNotFailRun(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	j := newJob(rec, nil)
	_, err := j.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunLoopsUntilCancel(t *testing.T) {
	rec := &memRecorder{}
	j := newJob(rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.len() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunOnceCancelled(t *testing.T) {
	rec := &memRecorder{}
	j := newJob(rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := j.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rec.len())
	assert.Zero(t, j.Runs())
	assert.Equal(t, stack.Stats{}, j.LastStats())
}

type failingRunner struct{}

func (failingRunner) Run(_ context.Context, sc stress.Scenario) (stress.Report, error) {
	rep := stress.Report{RunID: 1, Scenario: sc, Violations: []string{"allocs 3 != frees 2"}}
	return rep, fmt.Errorf("%w: run 1", stress.ErrConservation)
}

func TestFailureLatchesHealth(t *testing.T) {
	rec := &memRecorder{}
	h := &fakeHealth{}
	j := New(Config{
		Runner:   failingRunner{},
		Scenario: stress.Scenario{Variant: stack.Reclaiming},
		Recorder: rec,
		Health:   h,
		Log:      quietLogger(),
	})

	_, err := j.RunOnce(context.Background())
	assert.ErrorIs(t, err, stress.ErrConservation)
	assert.Equal(t, 1, rec.len(), "failed runs are recorded too")
	assert.Equal(t, uint64(1), j.Failures())
	assert.Equal(t, []bool{false}, h.serving)
}
