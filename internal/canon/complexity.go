package canon

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/semledger/internal/rdf"
)

// Complexity classifies how expensive a graph is to canonicalize.
type Complexity int

const (
	Simple Complexity = iota
	Moderate
	Complex
	Pathological
)

// Classification thresholds.
const (
	simpleMaxBlanks    = 8
	moderateMaxBlanks  = 64
	moderateMaxDensity = 0.5
	complexMaxBlanks   = 1000
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Moderate:
		return "moderate"
	case Complex:
		return "complex"
	case Pathological:
		return "pathological"
	default:
		return fmt.Sprintf("Complexity(%d)", int(c))
	}
}

// Weight is the relative cost factor used when estimating validation time.
func (c Complexity) Weight() float64 {
	switch c {
	case Simple:
		return 1.0
	case Moderate:
		return 1.5
	case Complex:
		return 2.5
	default:
		return 4.0
	}
}

func (c Complexity) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Analysis is the result of AnalyzeComplexity.
type Analysis struct {
	Complexity Complexity `json:"complexity"`
	Triples    int        `json:"triples"`
	BlankNodes int        `json:"blank_nodes"`
	// BlankEdges counts triples whose subject and object are both blank.
	BlankEdges int `json:"blank_edges"`
	// Density is blank nodes over distinct subject and object nodes.
	Density float64 `json:"density"`
}

// AnalyzeComplexity classifies a graph from its blank node count, blank
// node density and blank-to-blank edges. The result depends only on graph
// structure, never on labels or triple order.
func AnalyzeComplexity(triples []rdf.Triple) Analysis {
	triples = rdf.Dedup(triples)
	nodes := make(map[string]struct{})
	blanks := make(map[string]struct{})
	a := Analysis{Triples: len(triples)}
	for _, t := range triples {
		for _, term := range []rdf.Term{t.Subject, t.Object} {
			key := term.String()
			nodes[key] = struct{}{}
			if rdf.IsBlank(term) {
				blanks[key] = struct{}{}
			}
		}
		if rdf.IsBlank(t.Subject) && rdf.IsBlank(t.Object) {
			a.BlankEdges++
		}
	}
	a.BlankNodes = len(blanks)
	if len(nodes) > 0 {
		a.Density = float64(len(blanks)) / float64(len(nodes))
	}

	switch {
	case a.BlankNodes == 0 || (a.BlankNodes <= simpleMaxBlanks && a.BlankEdges == 0):
		a.Complexity = Simple
	case a.BlankNodes <= moderateMaxBlanks && a.Density < moderateMaxDensity && a.BlankEdges <= a.BlankNodes:
		a.Complexity = Moderate
	case a.BlankNodes <= complexMaxBlanks:
		a.Complexity = Complex
	default:
		a.Complexity = Pathological
	}
	return a
}
