package stack

import "sync/atomic"

// node is one cell of the list. Once linked below the head its value is
// never written again until it is freed. next is atomic because parked
// nodes are relinked onto the garbage chain while stale pops may still
// load it.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]

	// freed is true while the node sits in the pool.
	freed atomic.Bool
	// gen is bumped on every free, so a pop can tell whether the node it
	// claimed was recycled under it.
	gen atomic.Uint64
}

func newNode[T any]() *node[T] {
	return &node[T]{}
}
