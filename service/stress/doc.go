// Package stress drives a stack through the conservation scenario:
// a set of goroutines concurrently pushes uniquely tagged random
// values, then a set of goroutines races to drain the stack. The run
// is checked for lost or duplicated values, for a non-empty stack
// afterwards, and for node accounting that matches the variant.
//
// It is decoupled from persistence and transport; callers hand the
// returned Report to the ledger or the broadcaster.
package stress
