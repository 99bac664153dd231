package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"treiber/domain/stack"
	"treiber/infra/ledger"
	"treiber/service/stress"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, stress.Report{
		RunID:      3,
		Scenario:   stress.Scenario{Variant: stack.Leaking, Pushers: 2, PushesPerPusher: 5, Poppers: 2},
		Pushed:     10,
		Popped:     9,
		Violations: []string{"1 values never popped"},
	})
	out := buf.String()
	assert.Contains(t, out, "run 3  FAIL  variant=leaking")
	assert.Contains(t, out, "violation: 1 values never popped")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, ledger.Entry{
		State: ledger.StatePublished,
		Report: stress.Report{
			RunID:     12,
			StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Scenario:  stress.Scenario{Variant: stack.Reclaiming},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "PUBLISHED")
	assert.Contains(t, out, "PASS")
}
