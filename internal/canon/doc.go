// Package canon computes canonical hashes of RDF graphs.
//
// A canonical hash is invariant under triple order and under any renaming
// of blank nodes. Two algorithms produce it:
//
//   - RDFC: RDF Dataset Canonicalization 1.0 (hash first-degree quads,
//     hash related blank nodes, hash n-degree quads over permutations).
//     Exact and interoperable, but exponential on highly symmetric graphs.
//   - Custom: first-degree hashes plus color refinement. It issues labels in
//     the same order RDFC does for nodes it can distinguish, so the two
//     agree on Simple graphs, and it hands any group refinement cannot
//     split over to the n-degree step.
//
// Both return SHA-256 over the canonical N-Triples document with labels
// _:c14n0, _:c14n1, ... The adaptive entry point (Canonicalizer.Hash)
// classifies the graph with AnalyzeComplexity and routes Simple and
// Moderate graphs to Custom, everything else to RDFC.
//
// All functions are pure: they read the triples they are given and never
// mutate them.
package canon
