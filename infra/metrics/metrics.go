// Package metrics exports stack reclamation counters and stress run
// outcomes to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"treiber/domain/stack"
)

const namespace = "treiber"

// StatsFunc returns the stats to export at scrape time.
type StatsFunc func() stack.Stats

// RegisterStackStats exports the fields of the stats returned by fn as
// gauges, read at every scrape.
func RegisterStackStats(reg prometheus.Registerer, fn StatsFunc) {
	if reg == nil {
		return
	}
	f := promauto.With(reg)
	gauge := func(name, help string, get func(stack.Stats) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stack",
			Name:      name,
			Help:      help,
		}, func() float64 { return get(fn()) })
	}

	gauge("allocs", "Nodes taken from the pool by push", func(s stack.Stats) float64 { return float64(s.Allocs) })
	gauge("frees", "Nodes returned to the pool", func(s stack.Stats) float64 { return float64(s.Frees) })
	gauge("created", "Nodes built by the pool constructor", func(s stack.Stats) float64 { return float64(s.Created) })
	gauge("deferred", "Popped nodes parked on the garbage chain", func(s stack.Stats) float64 { return float64(s.Deferred) })
	gauge("drains", "Garbage chains freed as a whole", func(s stack.Stats) float64 { return float64(s.Drains) })
	gauge("reattached", "Captured garbage chains tied back", func(s stack.Stats) float64 { return float64(s.Reattached) })
	gauge("garbage", "Nodes currently parked", func(s stack.Stats) float64 { return float64(s.Garbage) })
	gauge("active_pops", "Pops currently inside the gate", func(s stack.Stats) float64 { return float64(s.ActivePops) })
	gauge("live", "Nodes allocated and not yet freed", func(s stack.Stats) float64 { return float64(s.Live()) })
}

// RunMetrics records stress run outcomes.
type RunMetrics struct {
	OnRun func(variant string, ok bool, push, pop time.Duration)
}

// NewRunMetrics returns nil if reg is nil; a nil *RunMetrics is a no-op.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	if reg == nil {
		return nil
	}

	runs := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stress_runs_total",
		Help:      "Stress runs by variant and result",
	}, []string{"variant", "result"})

	phase := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stress_phase_duration_seconds",
		Help:      "Duration of the push and pop phases of a stress run",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"variant", "phase"})

	return &RunMetrics{
		OnRun: func(variant string, ok bool, push, pop time.Duration) {
			result := "pass"
			if !ok {
				result = "fail"
			}
			runs.WithLabelValues(variant, result).Inc()
			phase.WithLabelValues(variant, "push").Observe(push.Seconds())
			phase.WithLabelValues(variant, "pop").Observe(pop.Seconds())
		},
	}
}

func (m *RunMetrics) Observe(variant string, ok bool, push, pop time.Duration) {
	if m == nil {
		return
	}
	m.OnRun(variant, ok, push, pop)
}
