package broadcaster

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"treiber/infra/ledger"
	"treiber/service/stress"
)

// Outbox is the part of the ledger the broadcaster needs.
type Outbox interface {
	ScanByState(state ledger.State, fn func(ledger.Entry) error) error
	MarkPublished(runID uint64) error
}

type Broadcaster struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	log       logrus.FieldLogger
}

// Event is the published form of a run report.
type Event struct {
	V          int      `json:"v"`
	Type       string   `json:"type"`
	RunID      uint64   `json:"run_id"`
	Variant    string   `json:"variant"`
	OK         bool     `json:"ok"`
	StartedAt  int64    `json:"started_at"`
	Pushed     uint64   `json:"pushed"`
	Popped     uint64   `json:"popped"`
	Allocs     uint64   `json:"allocs"`
	Frees      uint64   `json:"frees"`
	Deferred   uint64   `json:"deferred"`
	Drains     uint64   `json:"drains"`
	Reattached uint64   `json:"reattached"`
	PushNanos  int64    `json:"push_ns"`
	PopNanos   int64    `json:"pop_ns"`
	Violations []string `json:"violations,omitempty"`
}

func NewEvent(rep stress.Report) Event {
	return Event{
		V:          1,
		Type:       "stress.report",
		RunID:      rep.RunID,
		Variant:    rep.Scenario.Variant.String(),
		OK:         rep.OK(),
		StartedAt:  rep.StartedAt.UnixNano(),
		Pushed:     rep.Pushed,
		Popped:     rep.Popped,
		Allocs:     rep.Stats.Allocs,
		Frees:      rep.Stats.Frees,
		Deferred:   rep.Stats.Deferred,
		Drains:     rep.Stats.Drains,
		Reattached: rep.Stats.Reattached,
		PushNanos:  rep.PushDuration.Nanoseconds(),
		PopNanos:   rep.PopDuration.Nanoseconds(),
		Violations: rep.Violations,
	}
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	outbox Outbox,
	publisher Publisher,
	interval time.Duration,
	log logrus.FieldLogger,
) *Broadcaster {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Broadcaster{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		log:       log.WithField("component", "broadcaster"),
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run flushes the outbox every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped")
			return

		case <-ticker.C:
			if _, err := b.Flush(ctx); err != nil {
				b.log.WithError(err).Warn("flush failed")
			}
		}
	}
}

// Flush publishes every unpublished report once and returns how many
// were acknowledged. A report whose publish fails stays NEW and is
// retried on the next flush.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	sent := 0
	err := b.outbox.ScanByState(ledger.StateNew, func(e ledger.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := json.Marshal(NewEvent(e.Report))
		if err != nil {
			return err
		}
		key := []byte(strconv.FormatUint(e.Report.RunID, 10))

		if err := b.publisher.Publish(ctx, key, payload); err != nil {
			b.log.WithError(err).WithField("run_id", e.Report.RunID).Debug("publish failed, will retry")
			return nil
		}
		if err := b.outbox.MarkPublished(e.Report.RunID); err != nil {
			return err
		}
		sent++
		return nil
	})
	return sent, err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
