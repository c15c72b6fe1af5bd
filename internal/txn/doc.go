// Package txn provides the atomic operation context that keeps the graph
// store and the block chain in step.
//
// A Context holds at most one open operation. Begin takes a full logical
// snapshot of the store and records the chain length; Commit discards the
// snapshot; Rollback copies the snapshot back and truncates the chain.
//
// CRITICAL: Begin on an open Context fails with ErrNestedOperation. It never
// blocks and never merges with the open operation. Run is the only entry
// point that tolerates an outer operation, by running inline inside it.
package txn
