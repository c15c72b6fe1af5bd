package graphstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reserved graph names.
const (
	BlockGraphPrefix = "ledger://block/"
	MetadataGraph    = "ledger://blockchain"
	OntologyGraph    = "ledger://ontology"
)

// ErrInvalidGraphName is returned for graph names the store will not accept.
var ErrInvalidGraphName = errors.New("invalid graph name")

// BlockGraph returns the payload graph name for a block index.
func BlockGraph(index uint64) string {
	return BlockGraphPrefix + strconv.FormatUint(index, 10)
}

// ParseBlockGraph extracts the block index from a payload graph name.
func ParseBlockGraph(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, BlockGraphPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || strconv.FormatUint(n, 10) != rest {
		return 0, false
	}
	return n, true
}

// ValidateGraphName rejects names that are empty, lack a scheme or contain
// characters that cannot appear in an IRI.
func ValidateGraphName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidGraphName)
	}
	if strings.ContainsAny(name, " \t\n\r<>\"{}|^`\\") {
		return fmt.Errorf("%w: %q contains characters not allowed in an IRI", ErrInvalidGraphName, name)
	}
	scheme, _, ok := strings.Cut(name, ":")
	if !ok || scheme == "" {
		return fmt.Errorf("%w: %q has no scheme", ErrInvalidGraphName, name)
	}
	return nil
}
