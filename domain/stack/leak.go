package stack

// leaker never recycles popped nodes. A popped node becomes unreachable
// from the stack and is left to the garbage collector; from the pool's
// point of view it is leaked, which is what keeps this variant safe
// without any coordination between pops.
type leaker[T any] struct{}

func (leaker[T]) enter()            {}
func (leaker[T]) leave()            {}
func (leaker[T]) retire(n *node[T]) {}
func (leaker[T]) stats() Stats      { return Stats{} }
