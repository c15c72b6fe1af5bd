package gquery

import "github.com/roach88/semledger/internal/rdf"

// Query is a read against the graph store.
//
// This is a sealed interface - only types in this package implement it.
// Backend compilers switch exhaustively over:
//   - Select: variable bindings for a basic graph pattern
//   - Ask: whether the pattern has any match
//   - Count: number of matches, optionally DISTINCT over one variable and
//     optionally grouped by another
//   - Construct: the triples matched by the pattern
type Query interface {
	queryNode()
}

// Node is one position of a triple pattern: a variable or a bound term.
type Node interface {
	nodeRef()
}

// Var is a named variable, written without the leading '?'.
type Var string

func (Var) nodeRef() {}

// Bound is a concrete term the position must equal.
type Bound struct {
	Term rdf.Term
}

func (Bound) nodeRef() {}

// V is shorthand for Var(name).
func V(name string) Var { return Var(name) }

// T binds a position to a term.
func T(t rdf.Term) Bound { return Bound{Term: t} }

// IRI binds a position to an IRI.
func IRI(v string) Bound { return Bound{Term: rdf.NewIRI(v)} }

// Scope restricts which named graphs a pattern matches in.
// The zero value matches every graph, each pattern independently.
// With IRI set all patterns match inside that graph. With Var set all
// patterns match inside the same graph and the variable binds its name.
type Scope struct {
	IRI string
	Var string
}

// AnyGraph matches across all graphs.
func AnyGraph() Scope { return Scope{} }

// InGraph restricts matching to one named graph.
func InGraph(iri string) Scope { return Scope{IRI: iri} }

// GraphVar matches within one graph and binds its name to v.
func GraphVar(v string) Scope { return Scope{Var: v} }

// Pattern is a triple pattern.
type Pattern struct {
	S, P, O Node
}

// Filter restricts the values a variable may take.
//
// This is a sealed interface. Filters are:
//   - IsBlank: the variable is bound to a blank node
//   - IsIRI: the variable is bound to an IRI
//   - StrStarts: the variable is an IRI starting with Prefix
type Filter interface {
	filterNode()
}

type IsBlank struct {
	Var string
}

func (IsBlank) filterNode() {}

type IsIRI struct {
	Var string
}

func (IsIRI) filterNode() {}

type StrStarts struct {
	Var    string
	Prefix string
}

func (StrStarts) filterNode() {}

// Select binds Vars for every match of Where.
//
//	SELECT [DISTINCT] ?v1 ?v2 WHERE { GRAPH <scope> { where . } FILTER(...) } LIMIT n
//
// Results are always ordered by the selected variables so two runs over the
// same store return identical solution sequences.
type Select struct {
	Graph    Scope
	Where    []Pattern
	Filters  []Filter
	Vars     []string
	Distinct bool
	// Limit caps the number of solutions. Zero means no limit.
	Limit int
}

func (Select) queryNode() {}

// Ask reports whether Where has at least one match.
type Ask struct {
	Graph   Scope
	Where   []Pattern
	Filters []Filter
}

func (Ask) queryNode() {}

// Count counts matches of Where.
//
// With Distinct set, only distinct values of that variable are counted.
// With GroupBy set, one solution is returned per value of that variable,
// binding the variable and "count".
type Count struct {
	Graph    Scope
	Where    []Pattern
	Filters  []Filter
	Distinct string
	GroupBy  string
}

func (Count) queryNode() {}

// Construct returns the distinct triples matched by Where.
type Construct struct {
	Graph   Scope
	Where   []Pattern
	Filters []Filter
}

func (Construct) queryNode() {}

// CountVar is the variable a Count binds its result to.
const CountVar = "count"
