package rdf

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultPrefixes are predeclared for every document Parse reads.
// A document may rebind any of them with its own @prefix.
var DefaultPrefixes = map[string]string{
	"ex":     "http://example.org/",
	"rdf":    "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs":   "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":    "http://www.w3.org/2001/XMLSchema#",
	"owl":    "http://www.w3.org/2002/07/owl#",
	"prov":   "http://www.w3.org/ns/prov#",
	"ledger": "ledger://ontology#",
}

// ParseError locates a syntax error in the source document.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// generated blank nodes carry this prefix until the document is finished,
// when they are renamed to labels the document does not already use.
const pendingBlank = "\x00"

// Parse reads a Turtle (or N-Triples) document using DefaultPrefixes.
// Duplicate statements are removed; order of first appearance is kept.
func Parse(text string) ([]Triple, error) {
	return ParseWithPrefixes(text, DefaultPrefixes)
}

// ParseWithPrefixes reads a document with the given predeclared prefixes.
func ParseWithPrefixes(text string, prefixes map[string]string) ([]Triple, error) {
	p := &parser{
		src:      text,
		prefixes: maps.Clone(prefixes),
		labels:   make(map[string]struct{}),
	}
	if p.prefixes == nil {
		p.prefixes = make(map[string]string)
	}
	if err := p.document(); err != nil {
		return nil, err
	}
	p.finishBlanks()
	return Dedup(p.out), nil
}

// ParseTerm decodes a single N-Triples term, the inverse of Term.String.
func ParseTerm(s string) (Term, error) {
	p := &parser{src: s, prefixes: map[string]string{}, labels: map[string]struct{}{}}
	p.skipSpace()
	t, err := p.term(false)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("trailing input after term")
	}
	return t, nil
}

type parser struct {
	src      string
	pos      int
	prefixes map[string]string
	base     string
	out      []Triple
	labels   map[string]struct{}
	anon     int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) peekAt(off int) byte {
	if p.pos+off >= len(p.src) {
		return 0
	}
	return p.src[p.pos+off]
}

func (p *parser) errorf(format string, args ...any) error {
	line, col := 1, 1
	for i := 0; i < p.pos && i < len(p.src); i++ {
		if p.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &ParseError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '#':
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.eof() {
			return p.errorf("expected %q, found end of input", c)
		}
		return p.errorf("expected %q, found %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) document() error {
	for {
		p.skipSpace()
		if p.eof() {
			return nil
		}
		if handled, err := p.directive(); err != nil {
			return err
		} else if handled {
			continue
		}
		if err := p.statement(); err != nil {
			return err
		}
	}
}

// directive handles @prefix, @base and their SPARQL-style forms.
func (p *parser) directive() (bool, error) {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "@prefix"):
		p.pos += len("@prefix")
		return true, p.prefixDecl(true)
	case strings.HasPrefix(rest, "@base"):
		p.pos += len("@base")
		return true, p.baseDecl(true)
	case hasKeyword(rest, "PREFIX"):
		p.pos += len("PREFIX")
		return true, p.prefixDecl(false)
	case hasKeyword(rest, "BASE"):
		p.pos += len("BASE")
		return true, p.baseDecl(false)
	}
	return false, nil
}

func hasKeyword(s, kw string) bool {
	if len(s) <= len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}
	c := s[len(kw)]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (p *parser) prefixDecl(dotted bool) error {
	p.skipSpace()
	start := p.pos
	for !p.eof() && p.peek() != ':' && !isSpace(p.peek()) {
		p.pos++
	}
	if p.peek() != ':' {
		return p.errorf("prefix declaration needs a name ending in ':'")
	}
	name := p.src[start:p.pos]
	p.pos++
	p.skipSpace()
	iri, err := p.iriRef()
	if err != nil {
		return err
	}
	p.prefixes[name] = iri
	if dotted {
		return p.expect('.')
	}
	return nil
}

func (p *parser) baseDecl(dotted bool) error {
	p.skipSpace()
	iri, err := p.iriRef()
	if err != nil {
		return err
	}
	p.base = iri
	if dotted {
		return p.expect('.')
	}
	return nil
}

func (p *parser) statement() error {
	p.skipSpace()
	var subject Term
	var err error
	if p.peek() == '[' {
		subject, err = p.blankPropertyList()
		if err != nil {
			return err
		}
		p.skipSpace()
		if p.peek() == '.' {
			p.pos++
			return nil
		}
	} else {
		subject, err = p.subject()
		if err != nil {
			return err
		}
	}
	if err := p.predicateObjectList(subject); err != nil {
		return err
	}
	return p.expect('.')
}

func (p *parser) subject() (Term, error) {
	p.skipSpace()
	switch p.peek() {
	case '(':
		return p.collection()
	case '"', '\'':
		return nil, p.errorf("literal cannot be a subject")
	}
	t, err := p.term(true)
	if err != nil {
		return nil, err
	}
	if t.Kind() == KindLiteral {
		return nil, p.errorf("literal cannot be a subject")
	}
	return t, nil
}

func (p *parser) predicateObjectList(subject Term) error {
	for {
		p.skipSpace()
		pred, err := p.verb()
		if err != nil {
			return err
		}
		if err := p.objectList(subject, pred); err != nil {
			return err
		}
		p.skipSpace()
		if p.peek() != ';' {
			return nil
		}
		for p.peek() == ';' {
			p.pos++
			p.skipSpace()
		}
		// a trailing ';' before '.' or ']' is allowed
		if c := p.peek(); c == '.' || c == ']' || p.eof() {
			return nil
		}
	}
}

func (p *parser) verb() (IRI, error) {
	if p.peek() == 'a' {
		next := p.peekAt(1)
		if isSpace(next) || next == '<' || next == '[' || next == '(' || next == '"' || next == '_' {
			p.pos++
			return NewIRI(RDFType), nil
		}
	}
	t, err := p.term(true)
	if err != nil {
		return IRI{}, err
	}
	iri, ok := t.(IRI)
	if !ok {
		return IRI{}, p.errorf("predicate must be an IRI, got %s", t.Kind())
	}
	return iri, nil
}

func (p *parser) objectList(subject Term, pred IRI) error {
	for {
		obj, err := p.object()
		if err != nil {
			return err
		}
		p.out = append(p.out, Triple{Subject: subject, Predicate: pred, Object: obj})
		p.skipSpace()
		if p.peek() != ',' {
			return nil
		}
		p.pos++
	}
}

func (p *parser) object() (Term, error) {
	p.skipSpace()
	switch p.peek() {
	case '[':
		return p.blankPropertyList()
	case '(':
		return p.collection()
	}
	return p.term(true)
}

func (p *parser) newAnon() BlankNode {
	p.anon++
	return NewBlank(pendingBlank + strconv.Itoa(p.anon))
}

func (p *parser) blankPropertyList() (Term, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	node := p.newAnon()
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return node, nil
	}
	if err := p.predicateObjectList(node); err != nil {
		return nil, err
	}
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *parser) collection() (Term, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var items []Term
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated collection")
		}
		if p.peek() == ')' {
			p.pos++
			break
		}
		item, err := p.object()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return NewIRI(RDFNil), nil
	}
	head := p.newAnon()
	cur := head
	for i, item := range items {
		p.out = append(p.out, Triple{Subject: cur, Predicate: NewIRI(RDFFirst), Object: item})
		if i == len(items)-1 {
			p.out = append(p.out, Triple{Subject: cur, Predicate: NewIRI(RDFRest), Object: NewIRI(RDFNil)})
			break
		}
		next := p.newAnon()
		p.out = append(p.out, Triple{Subject: cur, Predicate: NewIRI(RDFRest), Object: next})
		cur = next
	}
	return head, nil
}

// term reads an IRI, blank node label or literal. With turtle set it also
// accepts prefixed names and the numeric and boolean shorthands.
func (p *parser) term(turtle bool) (Term, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("expected a term, found end of input")
	}
	c := p.peek()
	switch {
	case c == '<':
		v, err := p.iriRef()
		if err != nil {
			return nil, err
		}
		return NewIRI(v), nil
	case c == '_' && p.peekAt(1) == ':':
		return p.blankLabel()
	case c == '"' || c == '\'':
		return p.literal(turtle)
	case !turtle:
		return nil, p.errorf("unexpected %q", c)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	}
	return p.prefixedName()
}

func (p *parser) iriRef() (string, error) {
	if p.peek() != '<' {
		return "", p.errorf("expected IRI")
	}
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated IRI")
		}
		c := p.peek()
		switch {
		case c == '>':
			p.pos++
			return p.resolve(b.String()), nil
		case c == '\\':
			r, err := p.unicodeEscape()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		case c == ' ' || c == '\n' || c == '\t' || c == '"' || c == '{' || c == '}' || c == '|' || c == '^' || c == '`':
			return "", p.errorf("invalid character %q in IRI", c)
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

func (p *parser) resolve(iri string) string {
	if p.base == "" || strings.Contains(iri, ":") {
		return iri
	}
	if strings.HasPrefix(iri, "#") || strings.HasSuffix(p.base, "/") || strings.HasSuffix(p.base, "#") {
		return p.base + iri
	}
	if i := strings.LastIndex(p.base, "/"); i >= 0 {
		return p.base[:i+1] + iri
	}
	return p.base + iri
}

func (p *parser) unicodeEscape() (rune, error) {
	// positioned on the backslash
	if p.pos+1 >= len(p.src) {
		return 0, p.errorf("dangling escape")
	}
	var n int
	switch p.src[p.pos+1] {
	case 'u':
		n = 4
	case 'U':
		n = 8
	default:
		return 0, p.errorf("invalid escape \\%c", p.src[p.pos+1])
	}
	if p.pos+2+n > len(p.src) {
		return 0, p.errorf("truncated unicode escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos+2:p.pos+2+n], 16, 32)
	if err != nil {
		return 0, p.errorf("invalid unicode escape")
	}
	p.pos += 2 + n
	return rune(v), nil
}

func (p *parser) blankLabel() (Term, error) {
	p.pos += 2
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !isNameRune(r) {
			break
		}
		p.pos += size
	}
	// a label may not end with '.'
	for p.pos > start && p.src[p.pos-1] == '.' {
		p.pos--
	}
	if p.pos == start {
		return nil, p.errorf("empty blank node label")
	}
	label := p.src[start:p.pos]
	p.labels[label] = struct{}{}
	return NewBlank(label), nil
}

func (p *parser) literal(turtle bool) (Term, error) {
	lex, err := p.quoted(turtle)
	if err != nil {
		return nil, err
	}
	lex = norm.NFC.String(lex)
	switch {
	case p.peek() == '@':
		p.pos++
		start := p.pos
		for !p.eof() && (isAlnum(p.peek()) || p.peek() == '-') {
			p.pos++
		}
		if p.pos == start {
			return nil, p.errorf("empty language tag")
		}
		return Literal{Lexical: lex, Lang: strings.ToLower(p.src[start:p.pos])}, nil
	case p.peek() == '^' && p.peekAt(1) == '^':
		p.pos += 2
		dt, err := p.term(turtle)
		if err != nil {
			return nil, err
		}
		iri, ok := dt.(IRI)
		if !ok {
			return nil, p.errorf("datatype must be an IRI")
		}
		return NewTyped(lex, iri.Value), nil
	}
	return NewString(lex), nil
}

func (p *parser) quoted(turtle bool) (string, error) {
	q := p.peek()
	if q == '\'' && !turtle {
		return "", p.errorf("single quoted literals are not N-Triples")
	}
	long := turtle && p.peekAt(1) == q && p.peekAt(2) == q
	if long {
		p.pos += 3
	} else {
		p.pos++
	}
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated literal")
		}
		c := p.peek()
		if c == q {
			if !long {
				p.pos++
				return b.String(), nil
			}
			if p.peekAt(1) == q && p.peekAt(2) == q {
				// a long literal may end in up to two extra quotes
				for p.peekAt(3) == q {
					b.WriteByte(q)
					p.pos++
				}
				p.pos += 3
				return b.String(), nil
			}
		}
		if !long && (c == '\n' || c == '\r') {
			return "", p.errorf("newline in short literal")
		}
		if c == '\\' {
			r, err := p.stringEscape()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) stringEscape() (rune, error) {
	if p.pos+1 >= len(p.src) {
		return 0, p.errorf("dangling escape")
	}
	var r rune
	switch p.src[p.pos+1] {
	case 't':
		r = '\t'
	case 'b':
		r = '\b'
	case 'n':
		r = '\n'
	case 'r':
		r = '\r'
	case 'f':
		r = '\f'
	case '"':
		r = '"'
	case '\'':
		r = '\''
	case '\\':
		r = '\\'
	case 'u', 'U':
		return p.unicodeEscape()
	default:
		return 0, p.errorf("invalid escape \\%c", p.src[p.pos+1])
	}
	p.pos += 2
	return r, nil
}

func (p *parser) number() (Term, error) {
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}
	digits := func() int {
		n := 0
		for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
			p.pos++
			n++
		}
		return n
	}
	intDigits := digits()
	datatype := XSDInteger
	if p.peek() == '.' && p.peekAt(1) >= '0' && p.peekAt(1) <= '9' {
		p.pos++
		digits()
		datatype = XSDDecimal
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if digits() == 0 {
			return nil, p.errorf("malformed exponent")
		}
		datatype = XSDDouble
	}
	if intDigits == 0 && datatype == XSDInteger {
		p.pos = start
		return nil, p.errorf("malformed number")
	}
	return NewTyped(p.src[start:p.pos], datatype), nil
}

func (p *parser) prefixedName() (Term, error) {
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !isNameRune(r) && r != ':' && r != '%' && r != '\\' {
			break
		}
		if r == '\\' {
			size++
		}
		p.pos += size
	}
	for p.pos > start && p.src[p.pos-1] == '.' {
		p.pos--
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, p.errorf("unexpected %q", p.peek())
	}
	switch tok {
	case "true", "false":
		return NewTyped(tok, XSDBoolean), nil
	case "a":
		return NewIRI(RDFType), nil
	}
	prefix, local, ok := strings.Cut(tok, ":")
	if !ok {
		return nil, p.errorf("unknown token %q", tok)
	}
	ns, ok := p.prefixes[prefix]
	if !ok {
		return nil, p.errorf("undeclared prefix %q", prefix)
	}
	return NewIRI(ns + strings.ReplaceAll(local, "\\", "")), nil
}

// finishBlanks renames generated blank nodes to genidN labels that the
// document did not use itself.
func (p *parser) finishBlanks() {
	if p.anon == 0 {
		return
	}
	rename := make(map[string]BlankNode, p.anon)
	next := 0
	fresh := func() BlankNode {
		for {
			next++
			label := "genid" + strconv.Itoa(next)
			if _, taken := p.labels[label]; !taken {
				return NewBlank(label)
			}
		}
	}
	fix := func(t Term) Term {
		b, ok := t.(BlankNode)
		if !ok || !strings.HasPrefix(b.Label, pendingBlank) {
			return t
		}
		if r, ok := rename[b.Label]; ok {
			return r
		}
		r := fresh()
		rename[b.Label] = r
		return r
	}
	for i := range p.out {
		p.out[i].Subject = fix(p.out[i].Subject)
		p.out[i].Object = fix(p.out[i].Object)
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isNameRune(r rune) bool {
	return r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) || r == 0xB7
}
