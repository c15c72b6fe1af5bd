// Package graphstore provides the SQLite-backed quad store every ledger
// component reads and writes through.
//
// The store holds named graphs of RDF triples in a single quads table.
// Each term is stored in its N-Triples encoding, so a row decodes back to
// exactly the term that was written and the canonicalizer sees the same
// values the parser produced.
//
// # Graph layout
//
//   - ledger://block/{index}: one graph per block payload
//   - ledger://blockchain: block headers as triples
//   - ledger://ontology: vocabulary loaded once at startup
//
// # Critical Patterns
//
// Deterministic reads: every row-returning query orders by its projected
// columns (or by id for raw iteration) with COLLATE BINARY.
//
// Set semantics: UNIQUE(graph, subject, predicate, object) plus INSERT OR
// IGNORE makes re-adding a triple a no-op, so a graph never holds duplicates.
//
// Canonical cache: Canonicalize memoizes the adaptive hash per graph. Every
// write through the store drops the entry for the graph it touched. Writes
// that bypass the store (via DB) leave stale entries behind; the integrity
// validator compares the cache against fresh derivations for that reason.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package graphstore
