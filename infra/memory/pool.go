package memory

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed object pool.
// Every Get is counted as an allocation and every Put as a free, so
// callers can check that the two balance once the owner is quiescent.
type Pool[T any] struct {
	p *sync.Pool

	created atomic.Uint64
	allocs  atomic.Uint64
	frees   atomic.Uint64
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	pool := &Pool[T]{}
	pool.p = &sync.Pool{
		New: func() any {
			pool.created.Add(1)
			return ctor()
		},
	}
	return pool
}

func (p *Pool[T]) Get() *T {
	p.allocs.Add(1)
	return p.p.Get().(*T)
}

// Put hands v back for reuse. v must not be referenced afterwards.
func (p *Pool[T]) Put(v *T) {
	p.frees.Add(1)
	p.p.Put(v)
}

// PoolStats is a point-in-time view of a Pool's counters.
type PoolStats struct {
	Created uint64 // objects built by the constructor
	Allocs  uint64 // Get calls
	Frees   uint64 // Put calls
}

// Outstanding is the number of objects handed out and not yet returned.
func (s PoolStats) Outstanding() uint64 {
	return s.Allocs - s.Frees
}

func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Created: p.created.Load(),
		Allocs:  p.allocs.Load(),
		Frees:   p.frees.Load(),
	}
}
