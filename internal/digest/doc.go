// Package digest provides the byte-level primitives behind every hash the
// ledger commits to: RFC 8785 canonical JSON and domain-separated SHA-256.
//
// Nothing outside this package should hash a record by marshaling it with
// encoding/json directly. Map iteration order and HTML escaping would make
// the bytes unstable across runs.
package digest
