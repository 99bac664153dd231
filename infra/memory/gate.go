package memory

import "sync/atomic"

// Gate counts the operations currently inside a read section.
//
// It is the counterpart of a reader epoch for structures whose readers
// are anonymous: instead of tracking which epoch each reader entered,
// it only tracks how many are inside. A writer that observes itself as
// the last one inside, and whose Leave confirms nobody entered in the
// meantime, is at a quiescent point.
type Gate struct {
	active atomic.Int64
}

// Enter marks one more operation as active and returns the new count.
func (g *Gate) Enter() int64 {
	return g.active.Add(1)
}

// Leave marks one operation as finished and returns the count observed
// before the decrement.
func (g *Gate) Leave() int64 {
	prev := g.active.Add(-1) + 1
	if prev <= 0 {
		panic("memory.Gate: Leave without matching Enter")
	}
	return prev
}

// Active returns the number of operations currently inside.
func (g *Gate) Active() int64 {
	return g.active.Load()
}
