// Package soak repeats a stress scenario on an interval, records every
// report and reports health once a run fails.
package soak

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"treiber/domain/stack"
	"treiber/infra/metrics"
	"treiber/service/stress"
)

// Runner executes one scenario; *stress.Runner implements it.
type Runner interface {
	Run(ctx context.Context, sc stress.Scenario) (stress.Report, error)
}

// Recorder stores finished reports.
type Recorder interface {
	Append(stress.Report) error
}

// Health receives the job's verdict.
type Health interface {
	SetServing(ok bool)
}

type Job struct {
	runner   Runner
	scenario stress.Scenario
	interval time.Duration

	recorder Recorder
	health   Health
	metrics  *metrics.RunMetrics
	log      logrus.FieldLogger

	last     atomic.Pointer[stress.Report]
	runs     atomic.Uint64
	failures atomic.Uint64
}

// Config wires a Job. Recorder, Health and Metrics are optional.
type Config struct {
	Runner   Runner
	Scenario stress.Scenario
	Interval time.Duration
	Recorder Recorder
	Health   Health
	Metrics  *metrics.RunMetrics
	Log      logrus.FieldLogger
}

func New(cfg Config) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Job{
		runner:   cfg.Runner,
		scenario: cfg.Scenario,
		interval: cfg.Interval,
		recorder: cfg.Recorder,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		log:      cfg.Log.WithField("component", "soak"),
	}
}

// Run executes the scenario immediately and then on every tick until
// ctx is done.
func (j *Job) Run(ctx context.Context) {
	j.log.WithFields(logrus.Fields{
		"interval": j.interval,
		"variant":  j.scenario.Variant.String(),
	}).Info("started")

	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		_, _ = j.RunOnce(ctx)

		select {
		case <-ctx.Done():
			j.log.WithField("runs", j.runs.Load()).Info("stopped")
			return
		case <-t.C:
		}
	}
}

// RunOnce executes one scenario and records the outcome. A
// conservation failure latches health to NOT_SERVING.
func (j *Job) RunOnce(ctx context.Context) (stress.Report, error) {
	rep, err := j.runner.Run(ctx, j.scenario)
	if err != nil && !errors.Is(err, stress.ErrConservation) {
		if ctx.Err() == nil {
			j.log.WithError(err).Warn("run aborted")
		}
		return rep, err
	}

	j.runs.Add(1)
	j.last.Store(&rep)
	j.metrics.Observe(j.scenario.Variant.String(), rep.OK(), rep.PushDuration, rep.PopDuration)

	if j.recorder != nil {
		if rerr := j.recorder.Append(rep); rerr != nil {
			j.log.WithError(rerr).WithField("run_id", rep.RunID).Error("record failed")
		}
	}

	if !rep.OK() {
		j.failures.Add(1)
		if j.health != nil {
			j.health.SetServing(false)
		}
	}
	return rep, err
}

// LastStats returns the node stats of the latest finished run.
func (j *Job) LastStats() stack.Stats {
	if rep := j.last.Load(); rep != nil {
		return rep.Stats
	}
	return stack.Stats{}
}

// Runs and Failures count finished runs.
func (j *Job) Runs() uint64     { return j.runs.Load() }
func (j *Job) Failures() uint64 { return j.failures.Load() }
