package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing run IDs.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first ID is start+1.
// A fresh ledger starts at 0; a reopened one at its last recorded ID.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next run ID.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued ID.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Advance moves the sequencer forward to at least v. It never moves
// backwards, so concurrent callers cannot reissue an ID.
func (s *Sequencer) Advance(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
