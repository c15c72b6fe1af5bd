package canon

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/semledger/internal/digest"
	"github.com/roach88/semledger/internal/rdf"
)

// Algorithm selects a canonicalization strategy.
type Algorithm int

const (
	// Adaptive picks Custom or RDFC from the graph's complexity.
	Adaptive Algorithm = iota
	Custom
	RDFC
)

func (a Algorithm) String() string {
	switch a {
	case Adaptive:
		return "adaptive"
	case Custom:
		return "custom"
	case RDFC:
		return "rdfc-1.0"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

func (a Algorithm) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// Options configures a Canonicalizer.
type Options struct {
	// WorkLimit bounds n-degree work per graph. Zero means DefaultWorkLimit.
	WorkLimit int
}

// Canonicalizer is safe for concurrent use; it holds no per-graph state.
type Canonicalizer struct {
	workLimit int
}

// New creates a Canonicalizer.
func New(opts Options) *Canonicalizer {
	return &Canonicalizer{workLimit: opts.WorkLimit}
}

// Select reports which algorithm the adaptive path would use.
func (c *Canonicalizer) Select(triples []rdf.Triple) (Algorithm, Analysis) {
	a := AnalyzeComplexity(triples)
	if a.Complexity <= Moderate {
		return Custom, a
	}
	return RDFC, a
}

// Canonicalize returns the canonical N-Triples document.
func (c *Canonicalizer) Canonicalize(alg Algorithm, triples []rdf.Triple) (string, error) {
	if alg == Adaptive {
		alg, _ = c.Select(triples)
	}
	switch alg {
	case Custom:
		return custom(triples, c.workLimit)
	case RDFC:
		return rdfc(triples, c.workLimit)
	default:
		return "", fmt.Errorf("unknown canonicalization algorithm %d", int(alg))
	}
}

// HashWith returns the canonical hash computed by a specific algorithm.
func (c *Canonicalizer) HashWith(alg Algorithm, triples []rdf.Triple) (string, error) {
	doc, err := c.Canonicalize(alg, triples)
	if err != nil {
		return "", fmt.Errorf("canonicalize (%s): %w", alg, err)
	}
	return digest.Sum256Hex([]byte(doc)), nil
}

// Hash is the adaptive entry point.
func (c *Canonicalizer) Hash(triples []rdf.Triple) (string, error) {
	return c.HashWith(Adaptive, triples)
}

var defaultCanonicalizer = New(Options{})

// Hash canonicalizes with the default work limit.
func Hash(triples []rdf.Triple) (string, error) {
	return defaultCanonicalizer.Hash(triples)
}
