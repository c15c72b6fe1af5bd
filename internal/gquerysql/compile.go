// Package gquerysql compiles gquery queries to parameterized SQLite SQL
// over the graph store's quads table.
package gquerysql

import (
	"fmt"
	"strings"

	"github.com/roach88/semledger/internal/gquery"
	"github.com/roach88/semledger/internal/rdf"
)

// Table is the quads table the compiler targets. Columns hold N-Triples
// encoded terms; the graph column holds the encoded graph IRI.
const Table = "quads"

// Compiled is a ready-to-execute statement.
type Compiled struct {
	SQL    string
	Params []any
	// Columns names the variable each result column binds, in order.
	// Construct results use "s", "p", "o" per pattern.
	Columns []string
}

// Compile converts a query to parameterized SQL.
//
// CRITICAL: Values are never interpolated; every term is a ? parameter.
// CRITICAL: Every row-returning statement carries ORDER BY ... COLLATE BINARY
// so solution order is identical across runs.
func Compile(q gquery.Query) (*Compiled, error) {
	if err := gquery.Validate(q); err != nil {
		return nil, err
	}
	switch query := q.(type) {
	case gquery.Select:
		return compileSelect(query)
	case *gquery.Select:
		return compileSelect(*query)
	case gquery.Ask:
		return compileAsk(query.Graph, query.Where, query.Filters)
	case *gquery.Ask:
		return compileAsk(query.Graph, query.Where, query.Filters)
	case gquery.Count:
		return compileCount(query)
	case *gquery.Count:
		return compileCount(*query)
	case gquery.Construct:
		return compileConstruct(query)
	case *gquery.Construct:
		return compileConstruct(*query)
	default:
		return nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// builder accumulates the FROM and WHERE clauses of one pattern.
type builder struct {
	from   []string
	where  []string
	params []any
	vars   map[string]string
}

func newBuilder(scope gquery.Scope, patterns []gquery.Pattern, filters []gquery.Filter) (*builder, error) {
	b := &builder{vars: make(map[string]string)}
	for i, p := range patterns {
		alias := fmt.Sprintf("q%d", i)
		b.from = append(b.from, Table+" AS "+alias)
		switch {
		case scope.IRI != "":
			b.where = append(b.where, alias+".graph = ?")
			b.params = append(b.params, rdf.NewIRI(scope.IRI).String())
		case scope.Var != "":
			b.bind(scope.Var, alias+".graph")
		}
		b.node(p.S, alias+".subject")
		b.node(p.P, alias+".predicate")
		b.node(p.O, alias+".object")
	}
	for _, f := range filters {
		if err := b.filter(f); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// bind records the first column a variable appears in and equates every
// later occurrence with it.
func (b *builder) bind(v, col string) {
	if first, ok := b.vars[v]; ok {
		b.where = append(b.where, first+" = "+col)
		return
	}
	b.vars[v] = col
}

func (b *builder) node(n gquery.Node, col string) {
	switch node := n.(type) {
	case gquery.Var:
		b.bind(string(node), col)
	case gquery.Bound:
		b.where = append(b.where, col+" = ?")
		b.params = append(b.params, node.Term.String())
	}
}

func (b *builder) filter(f gquery.Filter) error {
	col := b.vars[gquery.FilterVar(f)]
	switch filter := f.(type) {
	case gquery.IsBlank:
		b.where = append(b.where, col+` LIKE '\_:%' ESCAPE '\'`)
	case gquery.IsIRI:
		b.where = append(b.where, col+` LIKE '<%'`)
	case gquery.StrStarts:
		// Encoded IRIs are "<" + escaped value + ">", so the prefix is
		// encoded the same way before matching. LIKE folds ASCII case, so
		// the match compares the leading substring instead.
		encoded := strings.TrimSuffix(rdf.NewIRI(filter.Prefix).String(), ">")
		b.where = append(b.where, "substr("+col+", 1, length(?)) = ?")
		b.params = append(b.params, encoded, encoded)
	default:
		return fmt.Errorf("unsupported filter type: %T", f)
	}
	return nil
}

func (b *builder) clauses() string {
	s := " FROM " + strings.Join(b.from, ", ")
	if len(b.where) > 0 {
		s += " WHERE " + strings.Join(b.where, " AND ")
	}
	return s
}

func compileSelect(q gquery.Select) (*Compiled, error) {
	b, err := newBuilder(q.Graph, q.Where, q.Filters)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(q.Vars))
	order := make([]string, len(q.Vars))
	for i, v := range q.Vars {
		cols[i] = b.vars[v]
		order[i] = b.vars[v] + " COLLATE BINARY"
	}
	distinct := ""
	if q.Distinct {
		distinct = "DISTINCT "
	}
	sql := "SELECT " + distinct + strings.Join(cols, ", ") + b.clauses() +
		" ORDER BY " + strings.Join(order, ", ")
	params := b.params
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return &Compiled{SQL: sql, Params: params, Columns: append([]string(nil), q.Vars...)}, nil
}

func compileAsk(scope gquery.Scope, where []gquery.Pattern, filters []gquery.Filter) (*Compiled, error) {
	b, err := newBuilder(scope, where, filters)
	if err != nil {
		return nil, err
	}
	// A single boolean row; ordering does not apply.
	sql := "SELECT EXISTS (SELECT 1" + b.clauses() + ")"
	return &Compiled{SQL: sql, Params: b.params}, nil
}

func compileCount(q gquery.Count) (*Compiled, error) {
	b, err := newBuilder(q.Graph, q.Where, q.Filters)
	if err != nil {
		return nil, err
	}
	agg := "COUNT(*)"
	if q.Distinct != "" {
		agg = "COUNT(DISTINCT " + b.vars[q.Distinct] + ")"
	}
	if q.GroupBy == "" {
		return &Compiled{
			SQL:     "SELECT " + agg + b.clauses(),
			Params:  b.params,
			Columns: []string{gquery.CountVar},
		}, nil
	}
	group := b.vars[q.GroupBy]
	sql := "SELECT " + group + ", " + agg + b.clauses() +
		" GROUP BY " + group + " ORDER BY " + group + " COLLATE BINARY"
	return &Compiled{SQL: sql, Params: b.params, Columns: []string{q.GroupBy, gquery.CountVar}}, nil
}

func compileConstruct(q gquery.Construct) (*Compiled, error) {
	b, err := newBuilder(q.Graph, q.Where, q.Filters)
	if err != nil {
		return nil, err
	}
	var cols, order, names []string
	for i := range q.Where {
		alias := fmt.Sprintf("q%d", i)
		for _, c := range []string{"subject", "predicate", "object"} {
			cols = append(cols, alias+"."+c)
			order = append(order, alias+"."+c+" COLLATE BINARY")
		}
		names = append(names, "s", "p", "o")
	}
	sql := "SELECT DISTINCT " + strings.Join(cols, ", ") + b.clauses() +
		" ORDER BY " + strings.Join(order, ", ")
	return &Compiled{SQL: sql, Params: b.params, Columns: names}, nil
}
