// Package harness runs ledger scenarios.
//
// A scenario appends payloads, tampers with the store, validates, repairs
// and verifies, checking expectations after each step. Every run uses a
// fresh in-memory store, a deterministic clock and deterministic keys, so
// the step outcomes are stable enough for golden comparison.
//
// # Scenario Format
//
//	name: tamper_and_repair
//	description: "Stored graph tamper is detected and repaired"
//	validators: [validator-1]     # optional allow-list; empty is open mode
//	policy: |                     # optional inline CUE schema
//	  #Triple: predicate: =~"^http://example.org/"
//	steps:
//	  - append:
//	      validator: validator-1
//	      payload: |
//	        @prefix ex: <http://example.org/> .
//	        ex:alice ex:knows ex:bob .
//	  - tamper: { block: 1, kind: add_triple }
//	  - validate:
//	      level: full
//	      expect: { status: critical, corrupted_blocks: [1] }
//	  - repair:
//	      expect: { status: healthy, failed: 0 }
//	  - verify: { expect_valid: true }
//
// Validator names map to keys derived by testutil.NewKey. In open mode a
// validator's id is its hex public key; with an allow-list it is the name.
//
// # Tamper Kinds
//
//   - add_triple: adds a foreign statement to the block's stored graph
//   - clear_graph: empties the block's stored graph
//   - break_link: rewrites the block's previous hash
//   - drop_header: removes the block's persisted header
package harness
