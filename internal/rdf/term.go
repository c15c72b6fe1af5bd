package rdf

import (
	"fmt"
	"strings"
)

// Well-known datatype IRIs.
const (
	XSDString     = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger    = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal    = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble     = "http://www.w3.org/2001/XMLSchema#double"
	XSDBoolean    = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDDateTime   = "http://www.w3.org/2001/XMLSchema#dateTime"
	RDFLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"

	RDFType  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFFirst = "http://www.w3.org/1999/02/22-rdf-syntax-ns#first"
	RDFRest  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#rest"
	RDFNil   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#nil"
)

// Kind discriminates the three term types.
type Kind int

const (
	KindIRI Kind = iota + 1
	KindBlank
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Term is a sealed interface over IRI, BlankNode and Literal.
type Term interface {
	Kind() Kind
	// String returns the N-Triples encoding of the term.
	String() string
	term()
}

// IRI is an absolute IRI reference.
type IRI struct {
	Value string
}

func (IRI) term()      {}
func (IRI) Kind() Kind { return KindIRI }
func (i IRI) String() string {
	return "<" + escapeIRI(i.Value) + ">"
}

// BlankNode is an anonymous node. The label is only meaningful within one graph.
type BlankNode struct {
	Label string
}

func (BlankNode) term()      {}
func (BlankNode) Kind() Kind { return KindBlank }
func (b BlankNode) String() string {
	return "_:" + b.Label
}

// Literal is a lexical value with either a datatype or a language tag.
// An empty Datatype means xsd:string; a non-empty Lang implies rdf:langString.
type Literal struct {
	Lexical  string
	Datatype string
	Lang     string
}

func (Literal) term()      {}
func (Literal) Kind() Kind { return KindLiteral }

func (l Literal) String() string {
	var b strings.Builder
	b.WriteByte('"')
	b.WriteString(escapeString(l.Lexical))
	b.WriteByte('"')
	switch {
	case l.Lang != "":
		b.WriteByte('@')
		b.WriteString(l.Lang)
	case l.Datatype != "" && l.Datatype != XSDString:
		b.WriteString("^^<")
		b.WriteString(escapeIRI(l.Datatype))
		b.WriteByte('>')
	}
	return b.String()
}

// NewIRI is shorthand for IRI{Value: v}.
func NewIRI(v string) IRI { return IRI{Value: v} }

// NewBlank is shorthand for BlankNode{Label: label}.
func NewBlank(label string) BlankNode { return BlankNode{Label: label} }

// NewString builds a plain xsd:string literal.
func NewString(s string) Literal { return Literal{Lexical: s} }

// NewTyped builds a literal with an explicit datatype.
func NewTyped(s, datatype string) Literal {
	if datatype == XSDString {
		datatype = ""
	}
	return Literal{Lexical: s, Datatype: datatype}
}

// NewInteger builds an xsd:integer literal.
func NewInteger(n int64) Literal {
	return Literal{Lexical: fmt.Sprintf("%d", n), Datatype: XSDInteger}
}

// IsBlank reports whether t is a blank node.
func IsBlank(t Term) bool {
	return t != nil && t.Kind() == KindBlank
}

func escapeString(s string) string {
	if !strings.ContainsAny(s, "\"\\\n\r\t\b\f") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeIRI(s string) string {
	if !strings.ContainsAny(s, "<>\"{}|^`\\ ") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\', ' ':
			fmt.Fprintf(&b, "\\u%04X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
