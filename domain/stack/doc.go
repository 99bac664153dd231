// Package stack implements a lock-free LIFO stack (a Treiber stack)
// whose popped nodes are recycled through a pool instead of being left
// to the garbage collector.
//
// Recycling is what makes the stack interesting. A pop reads the head
// node and its next link, then tries to swing the head with a CAS.
// Between the read and the CAS another pop may unlink the same node. If
// that node were returned to the pool straight away, a concurrent push
// could reuse it and put it back at the head, and the first pop's CAS
// would succeed against a next link that no longer describes the list.
//
// Two variants are provided:
//
//   - NewLeaking never returns popped nodes to the pool. It is always
//     safe; the garbage collector reclaims the nodes, but every push
//     allocates a fresh one.
//   - New recycles nodes through a popper gate. Every pop enters the
//     gate first and leaves it exactly once, on every exit path. A popped
//     node is freed immediately only by a pop that finds itself alone in
//     the gate. Otherwise the node is parked on a garbage chain, and the
//     chain is freed as a whole by the next pop that is alone in the gate
//     from before it captures the chain until after it leaves.
//
// # Why freeing is safe
//
// A node can only be observed by a pop that loaded it from the head. A
// pop loads the head only after it has entered the gate, and all gate
// and head accesses are sequentially consistent atomics. When a pop P
// that unlinked node N reads an active count of one, every other pop
// entered the gate after that read, therefore after P's CAS removed N,
// therefore it cannot load N from the head. So N can be freed whatever
// happens next.
//
// Garbage nodes were unlinked before P captured the chain. If P's Leave
// reports that P was still the only pop inside, no pop was inside at
// any moment between P's read of the count and P leaving, other than P
// itself, and any pop that entered before the read and still held a
// garbage node would have made the count larger than one. The captured
// chain is therefore unreachable and is freed. If Leave reports another
// pop, that pop might have loaded a node just before it was parked, so
// the chain is tied back for a later drain.
//
// Push and Pop are lock-free, not wait-free: some goroutine always makes
// progress, but a single goroutine may retry its CAS indefinitely under
// contention.
package stack
