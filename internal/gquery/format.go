package gquery

import (
	"fmt"
	"strings"
)

// Format renders a query as SPARQL text. The output is for reports and logs;
// the store executes the IR, never this text.
func Format(q Query) string {
	switch query := q.(type) {
	case Select:
		return formatSelect(query)
	case *Select:
		return formatSelect(*query)
	case Ask:
		return "ASK " + formatWhere(query.Graph, query.Where, query.Filters)
	case *Ask:
		return "ASK " + formatWhere(query.Graph, query.Where, query.Filters)
	case Count:
		return formatCount(query)
	case *Count:
		return formatCount(*query)
	case Construct:
		return "CONSTRUCT " + formatWhere(query.Graph, query.Where, query.Filters)
	case *Construct:
		return "CONSTRUCT " + formatWhere(query.Graph, query.Where, query.Filters)
	default:
		return fmt.Sprintf("# unsupported query %T", q)
	}
}

func formatSelect(q Select) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
	}
	for _, v := range q.Vars {
		b.WriteString("?" + v + " ")
	}
	b.WriteString(formatWhere(q.Graph, q.Where, q.Filters))
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String()
}

func formatCount(q Count) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.GroupBy != "" {
		b.WriteString("?" + q.GroupBy + " ")
	}
	switch {
	case q.Distinct != "":
		fmt.Fprintf(&b, "(COUNT(DISTINCT ?%s) AS ?%s) ", q.Distinct, CountVar)
	default:
		fmt.Fprintf(&b, "(COUNT(*) AS ?%s) ", CountVar)
	}
	b.WriteString(formatWhere(q.Graph, q.Where, q.Filters))
	if q.GroupBy != "" {
		b.WriteString(" GROUP BY ?" + q.GroupBy)
	}
	return b.String()
}

func formatWhere(scope Scope, where []Pattern, filters []Filter) string {
	var body strings.Builder
	for _, p := range where {
		body.WriteString(formatNode(p.S) + " " + formatNode(p.P) + " " + formatNode(p.O) + " . ")
	}
	inner := strings.TrimSpace(body.String())
	switch {
	case scope.IRI != "":
		inner = fmt.Sprintf("GRAPH <%s> { %s }", scope.IRI, inner)
	case scope.Var != "":
		inner = fmt.Sprintf("GRAPH ?%s { %s }", scope.Var, inner)
	}
	for _, f := range filters {
		inner += " " + formatFilter(f)
	}
	return "WHERE { " + inner + " }"
}

func formatNode(n Node) string {
	switch node := n.(type) {
	case Var:
		return "?" + string(node)
	case Bound:
		if node.Term == nil {
			return "<nil>"
		}
		return node.Term.String()
	default:
		return "<nil>"
	}
}

func formatFilter(f Filter) string {
	switch filter := f.(type) {
	case IsBlank:
		return fmt.Sprintf("FILTER(isBlank(?%s))", filter.Var)
	case IsIRI:
		return fmt.Sprintf("FILTER(isIRI(?%s))", filter.Var)
	case StrStarts:
		return fmt.Sprintf("FILTER(STRSTARTS(STR(?%s), %q))", filter.Var, filter.Prefix)
	default:
		return fmt.Sprintf("# unsupported filter %T", f)
	}
}
