package stack

import (
	"sync/atomic"

	"treiber/infra/memory"
)

// reclaimer decides what happens to a node once a pop has unlinked it.
// enter is called first on every pop; each pop then calls exactly one of
// leave (the stack was empty) or retire (the pop unlinked n).
type reclaimer[T any] interface {
	enter()
	leave()
	retire(n *node[T])
	stats() Stats
}

// gate recycles popped nodes once no pop in flight can observe them.
type gate[T any] struct {
	pops    memory.Gate
	garbage atomic.Pointer[node[T]]
	free    func(*node[T])

	pending    atomic.Int64
	deferred   atomic.Uint64
	drains     atomic.Uint64
	reattached atomic.Uint64

	// onCapture, if set, runs after the garbage chain is captured and
	// before the capturing pop leaves the gate.
	onCapture func()
}

func newGate[T any](free func(*node[T])) *gate[T] {
	return &gate[T]{free: free}
}

func (g *gate[T]) enter() {
	g.pops.Enter()
}

func (g *gate[T]) leave() {
	g.pops.Leave()
}

func (g *gate[T]) retire(n *node[T]) {
	if g.pops.Active() != 1 {
		// Others are inside and may hold n; park it. Count it first so a
		// drain racing the tie never takes pending below zero.
		g.pending.Add(1)
		g.deferred.Add(1)
		g.tie(n, n)
		g.pops.Leave()
		return
	}

	garbage := g.garbage.Swap(nil)
	if g.onCapture != nil {
		g.onCapture()
	}

	if g.pops.Leave() == 1 {
		g.drain(garbage)
	} else if garbage != nil {
		// A pop entered after the capture and may be looking at a node
		// that was parked just before it; leave the chain for later.
		g.tie(garbage, last(garbage))
		g.reattached.Add(1)
	}

	// n was unlinked before the count was read, so no pop that entered
	// since can reach it.
	g.free(n)
}

// tie links the chain first..last onto the head of the garbage chain.
func (g *gate[T]) tie(first, last *node[T]) {
	head := g.garbage.Load()
	for {
		last.next.Store(head)
		if g.garbage.CompareAndSwap(head, first) {
			return
		}
		head = g.garbage.Load()
	}
}

func (g *gate[T]) drain(chain *node[T]) {
	if chain == nil {
		return
	}
	var n int64
	for chain != nil {
		next := chain.next.Load()
		g.free(chain)
		chain = next
		n++
	}
	g.pending.Add(-n)
	g.drains.Add(1)
}

func (g *gate[T]) stats() Stats {
	return Stats{
		Deferred:   g.deferred.Load(),
		Drains:     g.drains.Load(),
		Reattached: g.reattached.Load(),
		Garbage:    g.pending.Load(),
		ActivePops: g.pops.Active(),
	}
}

// last walks an exclusively owned chain to its final node.
func last[T any](n *node[T]) *node[T] {
	for {
		next := n.next.Load()
		if next == nil {
			return n
		}
		n = next
	}
}
