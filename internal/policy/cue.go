package policy

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/semledger/internal/rdf"
)

// base is appended to every schema so user definitions merge with it and
// line numbers in user errors stay accurate.
const base = `
#Triple: {
	subject:     string
	predicate:   string
	object:      string
	object_kind: "iri" | "blank" | "literal"
	datatype:    string
	lang:        string
}
#Graph: {
	statements:  int & >=0
	blank_nodes: int & >=0
	subjects:    int & >=0
}
`

// Fields lists the fields a #Triple schema may constrain.
var Fields = []string{"subject", "predicate", "object", "object_kind", "datatype", "lang"}

// CUE is a policy backed by a compiled CUE schema.
type CUE struct {
	ctx    *cue.Context
	triple cue.Value
	graph  cue.Value
}

// CompileCUE compiles schema source. filename is used in error positions.
func CompileCUE(source, filename string) (*CUE, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(source+"\n"+base, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile policy: %w", formatCUEError(err))
	}
	return &CUE{
		ctx:    ctx,
		triple: v.LookupPath(cue.ParsePath("#Triple")),
		graph:  v.LookupPath(cue.ParsePath("#Graph")),
	}, nil
}

// LoadCUE reads and compiles a schema file.
func LoadCUE(path string) (*CUE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return CompileCUE(string(data), path)
}

// Check unifies the payload summary with #Graph, then each triple with
// #Triple, and reports the first failure as a *Violation.
func (p *CUE) Check(ctx context.Context, triples []rdf.Triple) error {
	summary := p.ctx.Encode(summarize(triples))
	if err := p.graph.Unify(summary).Validate(cue.Concrete(true)); err != nil {
		return &Violation{Index: -1, Message: firstMessage(err)}
	}
	for i, t := range triples {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := p.triple.Unify(p.ctx.Encode(record(t)))
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return &Violation{Index: i, Triple: t.String(), Message: firstMessage(err)}
		}
	}
	return nil
}

func record(t rdf.Triple) map[string]any {
	r := map[string]any{
		"subject":     termValue(t.Subject),
		"predicate":   t.Predicate.Value,
		"object":      termValue(t.Object),
		"object_kind": "",
		"datatype":    "",
		"lang":        "",
	}
	switch o := t.Object.(type) {
	case rdf.IRI:
		r["object_kind"] = "iri"
	case rdf.BlankNode:
		r["object_kind"] = "blank"
	case rdf.Literal:
		r["object_kind"] = "literal"
		r["lang"] = o.Lang
		switch {
		case o.Lang != "":
			r["datatype"] = rdf.RDFLangString
		case o.Datatype == "":
			r["datatype"] = rdf.XSDString
		default:
			r["datatype"] = o.Datatype
		}
	}
	return r
}

func termValue(t rdf.Term) string {
	switch v := t.(type) {
	case rdf.IRI:
		return v.Value
	case rdf.BlankNode:
		return "_:" + v.Label
	case rdf.Literal:
		return v.Lexical
	default:
		return t.String()
	}
}

func summarize(triples []rdf.Triple) map[string]any {
	subjects := make(map[string]struct{})
	for _, t := range triples {
		subjects[t.Subject.String()] = struct{}{}
	}
	return map[string]any{
		"statements":  len(triples),
		"blank_nodes": len(rdf.BlankNodes(triples)),
		"subjects":    len(subjects),
	}
}

func firstMessage(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}

// formatCUEError keeps the first error and its source position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := errors.Positions(first); len(pos) > 0 && pos[0].IsValid() {
		return fmt.Errorf("%s:%d:%d: %s", pos[0].Filename(), pos[0].Line(), pos[0].Column(), first.Error())
	}
	return first
}
