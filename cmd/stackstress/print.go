package main

import (
	"fmt"
	"io"
	"time"

	"treiber/infra/ledger"
	"treiber/service/stress"
)

func printReport(w io.Writer, rep stress.Report) {
	sc, st := rep.Scenario, rep.Stats
	result := "PASS"
	if !rep.OK() {
		result = "FAIL"
	}
	fmt.Fprintf(w, "run %d  %s  variant=%s\n", rep.RunID, result, sc.Variant)
	fmt.Fprintf(w, "  pushers=%d x %d  poppers=%d  seed=%d  poison=%t\n",
		sc.Pushers, sc.PushesPerPusher, sc.Poppers, sc.Seed, sc.PoisonCheck)
	fmt.Fprintf(w, "  pushed=%d popped=%d duplicates=%d missing=%d leftover=%d\n",
		rep.Pushed, rep.Popped, rep.Duplicates, rep.Missing, rep.Leftover)
	fmt.Fprintf(w, "  push_sum=%d pop_sum=%d\n", rep.PushSum, rep.PopSum)
	fmt.Fprintf(w, "  allocs=%d frees=%d created=%d deferred=%d drains=%d reattached=%d garbage=%d\n",
		st.Allocs, st.Frees, st.Created, st.Deferred, st.Drains, st.Reattached, st.Garbage)
	fmt.Fprintf(w, "  push=%s pop=%s\n",
		rep.PushDuration.Round(time.Microsecond), rep.PopDuration.Round(time.Microsecond))
	for _, v := range rep.Violations {
		fmt.Fprintf(w, "  violation: %s\n", v)
	}
}

func printSummary(w io.Writer, e ledger.Entry) {
	rep := e.Report
	result := "PASS"
	if !rep.OK() {
		result = "FAIL"
	}
	fmt.Fprintf(w, "%6d  %s  %-10s  %-9s  %s  allocs=%d frees=%d deferred=%d\n",
		rep.RunID,
		rep.StartedAt.Format(time.RFC3339),
		rep.Scenario.Variant,
		e.State,
		result,
		rep.Stats.Allocs,
		rep.Stats.Frees,
		rep.Stats.Deferred,
	)
}
