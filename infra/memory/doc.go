// Package memory provides the low-level primitives the stack uses to
// recycle list nodes: a typed node pool that accounts for every
// allocation and free, and the popper gate that decides when a
// recycled node can no longer be observed by an in-flight pop.
//
// The memory package only depends on the standard library and forms
// the foundation for node reuse in domain/stack.
package memory
