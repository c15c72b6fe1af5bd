package rdf

import (
	"slices"
	"strings"
)

// Triple is a single statement.
type Triple struct {
	Subject   Term
	Predicate IRI
	Object    Term
}

// String renders the triple as one N-Triples line without a trailing newline.
func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}

// HasBlank reports whether the subject or object is a blank node.
func (t Triple) HasBlank() bool {
	return IsBlank(t.Subject) || IsBlank(t.Object)
}

// Quad is a triple placed in a named graph.
type Quad struct {
	Triple
	Graph IRI
}

// String renders the quad as one N-Quads line without a trailing newline.
func (q Quad) String() string {
	return q.Subject.String() + " " + q.Predicate.String() + " " + q.Object.String() + " " + q.Graph.String() + " ."
}

// InGraph places every triple in the named graph.
func InGraph(graph IRI, triples []Triple) []Quad {
	quads := make([]Quad, len(triples))
	for i, t := range triples {
		quads[i] = Quad{Triple: t, Graph: graph}
	}
	return quads
}

// Triples strips the graph component.
func Triples(quads []Quad) []Triple {
	out := make([]Triple, len(quads))
	for i, q := range quads {
		out[i] = q.Triple
	}
	return out
}

// NTriples serializes triples in the given order, one per line.
func NTriples(triples []Triple) string {
	var b strings.Builder
	for _, t := range triples {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// SortedNTriples returns the N-Triples lines of the triples in code point
// order, duplicates removed.
func SortedNTriples(triples []Triple) []string {
	lines := make([]string, len(triples))
	for i, t := range triples {
		lines[i] = t.String()
	}
	slices.Sort(lines)
	return slices.Compact(lines)
}

// BlankNodes returns the distinct blank node labels used by triples, sorted.
func BlankNodes(triples []Triple) []string {
	seen := make(map[string]struct{})
	for _, t := range triples {
		if b, ok := t.Subject.(BlankNode); ok {
			seen[b.Label] = struct{}{}
		}
		if b, ok := t.Object.(BlankNode); ok {
			seen[b.Label] = struct{}{}
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// Dedup removes duplicate triples while keeping first-seen order. A graph is
// a set, so duplicates never count as separate statements.
func Dedup(triples []Triple) []Triple {
	seen := make(map[string]struct{}, len(triples))
	out := triples[:0:0]
	for _, t := range triples {
		k := t.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
