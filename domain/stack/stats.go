package stack

// Stats describes node allocation and reclamation for one stack.
type Stats struct {
	Allocs  uint64 // nodes taken from the pool by Push
	Frees   uint64 // nodes returned to the pool
	Created uint64 // nodes the pool had to build

	Deferred   uint64 // popped nodes parked on the garbage chain
	Drains     uint64 // times a garbage chain was freed as a whole
	Reattached uint64 // captured chains tied back because a pop arrived
	Garbage    int64  // nodes currently parked; exact only at quiescence
	ActivePops int64  // pops currently inside the gate
}

// Live is the number of nodes that are in the stack, parked, or held by
// a pop in flight.
func (s Stats) Live() uint64 {
	return s.Allocs - s.Frees
}
