package stack

import (
	"fmt"
	"sync/atomic"

	"treiber/infra/memory"
)

// Stack is a lock-free LIFO stack safe for use by any number of
// goroutines. The zero value is not usable; construct it with New or
// NewLeaking.
type Stack[T any] struct {
	top     atomic.Pointer[node[T]]
	nodes   *memory.Pool[node[T]]
	rec     reclaimer[T]
	variant Variant
	opts    options
}

// New returns an empty stack that recycles popped nodes once no pop in
// flight can still observe them.
func New[T any](opts ...Option) *Stack[T] {
	s := newStack[T](Reclaiming, opts)
	s.rec = newGate(s.free)
	return s
}

// NewLeaking returns an empty stack that never recycles popped nodes.
func NewLeaking[T any](opts ...Option) *Stack[T] {
	s := newStack[T](Leaking, opts)
	s.rec = leaker[T]{}
	return s
}

// NewVariant returns an empty stack of the given variant.
func NewVariant[T any](v Variant, opts ...Option) (*Stack[T], error) {
	switch v {
	case Reclaiming:
		return New[T](opts...), nil
	case Leaking:
		return NewLeaking[T](opts...), nil
	default:
		return nil, fmt.Errorf("stack: unknown variant %d", v)
	}
}

func newStack[T any](v Variant, opts []Option) *Stack[T] {
	s := &Stack[T]{
		nodes:   memory.NewPool(newNode[T]),
		variant: v,
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// Variant reports how the stack reclaims popped nodes.
func (s *Stack[T]) Variant() Variant {
	return s.variant
}

// Push places v on top of the stack. It never blocks.
func (s *Stack[T]) Push(v T) {
	n := s.nodes.Get()
	n.value = v
	n.freed.Store(false)

	top := s.top.Load()
	for {
		n.next.Store(top)
		if s.top.CompareAndSwap(top, n) {
			return
		}
		top = s.top.Load()
	}
}

// Pop removes and returns the most recently pushed value. It reports
// false if the stack was empty when it looked. It never blocks.
func (s *Stack[T]) Pop() (T, bool) {
	s.rec.enter()

	var (
		top = s.top.Load()
		gen uint64
	)
	for {
		if top == nil {
			s.rec.leave()
			var zero T
			return zero, false
		}

		gen = top.gen.Load()
		// Nodes below the head are never mutated in place, and top cannot
		// be recycled while this pop is inside the gate.
		next := top.next.Load()

		if s.top.CompareAndSwap(top, next) {
			break
		}
		top = s.top.Load()
	}

	if s.opts.poisonCheck {
		s.verify(top, gen)
	}

	// The CAS made this goroutine the only owner of top.
	v := top.value
	s.rec.retire(top)
	return v, true
}

// verify panics if n was freed, or freed and reused, after this pop
// loaded it at generation gen.
func (s *Stack[T]) verify(n *node[T], gen uint64) {
	if n.freed.Load() {
		panic("stack: popped a node that is in the pool")
	}
	if now := n.gen.Load(); now != gen {
		panic(fmt.Sprintf("stack: popped node was recycled while in use (gen %d, now %d)", gen, now))
	}
}

func (s *Stack[T]) free(n *node[T]) {
	if !n.freed.CompareAndSwap(false, true) {
		panic("stack: node freed twice")
	}
	var zero T
	n.value = zero
	n.next.Store(nil)
	n.gen.Add(1)
	s.nodes.Put(n)
}

// Stats returns a snapshot of the stack's allocation and reclamation
// counters. The counters are read one by one, so the snapshot is only
// exact while the stack is quiescent.
func (s *Stack[T]) Stats() Stats {
	ps := s.nodes.Stats()
	st := s.rec.stats()
	st.Allocs = ps.Allocs
	st.Frees = ps.Frees
	st.Created = ps.Created
	return st
}
