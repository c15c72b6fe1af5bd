// Package rdf is the graph data model shared by the store, the
// canonicalizer and the ledger.
//
// Terms are small immutable values. Each one has exactly one N-Triples
// encoding (String), and that encoding is what the store persists and what
// the canonicalizer sorts, so ParseTerm(t.String()) must always return t.
//
// The reader accepts N-Triples and the subset of Turtle that block payloads
// use in practice: prefixes, predicate and object lists, anonymous blank
// nodes, collections and the literal shorthands. A fixed set of prefixes is
// predeclared so short payloads such as `ex:a ex:b ex:c .` parse without a
// preamble.
package rdf
