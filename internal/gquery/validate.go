package gquery

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery wraps every error Validate returns.
var ErrInvalidQuery = errors.New("invalid query")

// Validate checks that a query is well formed: it has at least one pattern,
// every pattern position is set, and every variable a projection, filter,
// DISTINCT or GROUP BY mentions is bound by the pattern or the graph scope.
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	switch query := q.(type) {
	case Select:
		return validateSelect(query)
	case *Select:
		return validateSelect(*query)
	case Ask:
		_, err := validateWhere(query.Graph, query.Where, query.Filters)
		return err
	case *Ask:
		_, err := validateWhere(query.Graph, query.Where, query.Filters)
		return err
	case Count:
		return validateCount(query)
	case *Count:
		return validateCount(*query)
	case Construct:
		_, err := validateWhere(query.Graph, query.Where, query.Filters)
		return err
	case *Construct:
		_, err := validateWhere(query.Graph, query.Where, query.Filters)
		return err
	case nil:
		return fmt.Errorf("%w: nil query", ErrInvalidQuery)
	default:
		return fmt.Errorf("%w: unsupported query type %T", ErrInvalidQuery, q)
	}
}

func validateSelect(q Select) error {
	bound, err := validateWhere(q.Graph, q.Where, q.Filters)
	if err != nil {
		return err
	}
	if len(q.Vars) == 0 {
		return fmt.Errorf("%w: select needs explicit variables", ErrInvalidQuery)
	}
	for _, v := range q.Vars {
		if !bound[v] {
			return fmt.Errorf("%w: selected variable ?%s is not bound", ErrInvalidQuery, v)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	return nil
}

func validateCount(q Count) error {
	bound, err := validateWhere(q.Graph, q.Where, q.Filters)
	if err != nil {
		return err
	}
	if q.Distinct != "" && !bound[q.Distinct] {
		return fmt.Errorf("%w: DISTINCT variable ?%s is not bound", ErrInvalidQuery, q.Distinct)
	}
	if q.GroupBy != "" && !bound[q.GroupBy] {
		return fmt.Errorf("%w: GROUP BY variable ?%s is not bound", ErrInvalidQuery, q.GroupBy)
	}
	if q.GroupBy == CountVar {
		return fmt.Errorf("%w: ?%s is reserved for the count", ErrInvalidQuery, CountVar)
	}
	return nil
}

func validateWhere(scope Scope, where []Pattern, filters []Filter) (map[string]bool, error) {
	if scope.IRI != "" && scope.Var != "" {
		return nil, fmt.Errorf("%w: graph scope sets both IRI and variable", ErrInvalidQuery)
	}
	if len(where) == 0 {
		return nil, fmt.Errorf("%w: empty graph pattern", ErrInvalidQuery)
	}
	bound := make(map[string]bool)
	if scope.Var != "" {
		bound[scope.Var] = true
	}
	for i, p := range where {
		for _, n := range []Node{p.S, p.P, p.O} {
			switch node := n.(type) {
			case Var:
				if node == "" {
					return nil, fmt.Errorf("%w: pattern %d has an unnamed variable", ErrInvalidQuery, i)
				}
				bound[string(node)] = true
			case Bound:
				if node.Term == nil {
					return nil, fmt.Errorf("%w: pattern %d binds a nil term", ErrInvalidQuery, i)
				}
			default:
				return nil, fmt.Errorf("%w: pattern %d has an empty position", ErrInvalidQuery, i)
			}
		}
	}
	for _, f := range filters {
		v := FilterVar(f)
		if v == "" {
			return nil, fmt.Errorf("%w: unsupported filter %T", ErrInvalidQuery, f)
		}
		if !bound[v] {
			return nil, fmt.Errorf("%w: filter on unbound variable ?%s", ErrInvalidQuery, v)
		}
	}
	return bound, nil
}

// FilterVar returns the variable a filter constrains, or "" for an unknown filter.
func FilterVar(f Filter) string {
	switch filter := f.(type) {
	case IsBlank:
		return filter.Var
	case IsIRI:
		return filter.Var
	case StrStarts:
		return filter.Var
	default:
		return ""
	}
}
