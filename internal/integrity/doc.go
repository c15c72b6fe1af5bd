// Package integrity re-derives the ledger's invariants from scratch and
// reports where the chain and the store disagree.
//
// A validation run has five phases:
//
//  1. Chain: headers are reconstructed from the metadata graph and compared
//     with the in-memory chain. Hashes are recomputed from stored graphs and
//     links are checked.
//  2. Transaction count: reported counts are compared with parsed payloads,
//     stored graphs and the aggregate counter.
//  3. Query consistency: a fixed battery of store queries is cross-checked
//     against direct store reads.
//  4. Canonicalization: both algorithms run on every payload graph. Graphs
//     with blank nodes are re-run to confirm determinism.
//  5. Aggregation: the overall status is the worst phase status, and
//     recommendations are generated for the repair engine.
//
// Phases 1-4 are independent and may run concurrently. Each phase traps its
// own failures and panics into its Errors list; a run never aborts. Findings
// are data, not errors.
package integrity
