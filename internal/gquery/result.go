package gquery

import (
	"fmt"
	"strconv"

	"github.com/roach88/semledger/internal/rdf"
)

// ResultKind is the shape of a query result.
type ResultKind int

const (
	Solutions ResultKind = iota + 1
	Boolean
	Graph
)

func (k ResultKind) String() string {
	switch k {
	case Solutions:
		return "solutions"
	case Boolean:
		return "boolean"
	case Graph:
		return "graph"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Solution maps variable names to the terms they are bound to.
type Solution map[string]rdf.Term

// Result holds exactly one of: solutions, a boolean or a graph.
type Result struct {
	Kind      ResultKind
	Vars      []string
	Solutions []Solution
	Boolean   bool
	Triples   []rdf.Triple
}

// Int reads an integer literal bound to v in solution i.
func (r *Result) Int(i int, v string) (int64, error) {
	if i < 0 || i >= len(r.Solutions) {
		return 0, fmt.Errorf("solution %d out of range (%d solutions)", i, len(r.Solutions))
	}
	term, ok := r.Solutions[i][v]
	if !ok {
		return 0, fmt.Errorf("variable %q is unbound in solution %d", v, i)
	}
	lit, ok := term.(rdf.Literal)
	if !ok {
		return 0, fmt.Errorf("variable %q is a %s, not a literal", v, term.Kind())
	}
	n, err := strconv.ParseInt(lit.Lexical, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("variable %q: %w", v, err)
	}
	return n, nil
}

// Total returns the count of an ungrouped Count result.
func (r *Result) Total() (int64, error) {
	if len(r.Solutions) == 0 {
		return 0, nil
	}
	return r.Int(0, CountVar)
}
