// Package ledger implements the hash-linked block chain whose payloads live
// as named graphs in a graphstore.Store.
//
// A block's hash covers its index, timestamp, the canonical hash of its
// payload graph, the previous hash, the validator id and any encrypted
// payload. The signature signs that hash and is not part of it. The state
// snapshot is recorded for audit only and is not covered by the hash.
//
// # Persisted layout
//
//	ledger://block/{i}                   payload triples of block i
//	ledger://blockchain                  metadata graph
//	  <ledger://blockchain/block/{i}>    header of block i
//	  <ledger://blockchain/chain>        aggregate counters
//	ledger://ontology                    vocabulary, loaded once
//
// # Concurrency
//
// A Ledger guards its chain and store with one RWMutex. View runs read-only
// work under the read lock; Update runs mutations under the write lock and
// exposes the ledger's single atomic operation context. Every append goes
// through that context, so a failed append leaves no trace in either the
// chain or the store.
package ledger
