package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/semledger/internal/gquery"
	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/rdf"
)

// Metadata vocabulary.
const (
	NS = "ledger://ontology#"

	PredIndex            = NS + "hasIndex"
	PredTimestamp        = NS + "hasTimestamp"
	PredHash             = NS + "hasHash"
	PredPreviousHash     = NS + "hasPreviousHash"
	PredDataGraph        = NS + "hasDataGraphIRI"
	PredValidator        = NS + "hasValidator"
	PredSignature        = NS + "hasSignature"
	PredEncryptedData    = NS + "hasEncryptedData"
	PredStateSnapshot    = NS + "hasStateSnapshot"
	PredTransactionCount = NS + "hasTransactionCount"
	PredTotalTxns        = NS + "hasTotalTransactions"
	ClassBlock           = NS + "Block"

	HeaderSubjectPrefix = "ledger://blockchain/block/"
	ChainSubject        = "ledger://blockchain/chain"
)

// HeaderSubject returns the metadata subject for block i.
func HeaderSubject(i uint64) string {
	return HeaderSubjectPrefix + strconv.FormatUint(i, 10)
}

// Header is a block header as reconstructed from the metadata graph.
type Header struct {
	Index            uint64 `json:"index"`
	Timestamp        string `json:"timestamp"`
	Hash             string `json:"hash"`
	PreviousHash     string `json:"previous_hash"`
	DataGraph        string `json:"data_graph"`
	ValidatorID      string `json:"validator_id"`
	Signature        string `json:"signature"`
	EncryptedPayload []byte `json:"encrypted_payload,omitempty"`
	StateSnapshot    string `json:"state_snapshot,omitempty"`
	TransactionCount int    `json:"transaction_count"`
	HasCount         bool   `json:"-"`
}

// Reconstruction is everything the metadata graph says about the chain.
type Reconstruction struct {
	// Headers holds well-formed headers sorted by index.
	Headers []Header
	// Problems lists headers that could not be reconstructed and why.
	Problems []string
	// TotalTransactions is the persisted aggregate, when HasTotal is set.
	TotalTransactions int
	HasTotal          bool
}

// Indices returns the index of every well-formed header.
func (r *Reconstruction) Indices() []uint64 {
	out := make([]uint64, len(r.Headers))
	for i, h := range r.Headers {
		out[i] = h.Index
	}
	return out
}

// ContiguousPrefix returns the headers 0..n-1 that form a gap-free run.
func (r *Reconstruction) ContiguousPrefix() []Header {
	for i, h := range r.Headers {
		if h.Index != uint64(i) {
			return r.Headers[:i]
		}
	}
	return r.Headers
}

// headerTriples renders a block header as metadata triples.
func headerTriples(b *Block, count int) []rdf.Triple {
	subj := rdf.NewIRI(HeaderSubject(b.Index))
	lit := func(p string, o rdf.Term) rdf.Triple {
		return rdf.Triple{Subject: subj, Predicate: rdf.NewIRI(p), Object: o}
	}
	triples := []rdf.Triple{
		lit(rdf.RDFType, rdf.NewIRI(ClassBlock)),
		lit(PredIndex, rdf.NewInteger(int64(b.Index))),
		lit(PredTimestamp, rdf.NewTyped(b.Timestamp, rdf.XSDDateTime)),
		lit(PredHash, rdf.NewString(b.Hash)),
		lit(PredPreviousHash, rdf.NewString(b.PreviousHash)),
		lit(PredDataGraph, rdf.NewIRI(graphstore.BlockGraph(b.Index))),
		lit(PredValidator, rdf.NewString(b.ValidatorID)),
		lit(PredSignature, rdf.NewString(b.Signature)),
		lit(PredTransactionCount, rdf.NewInteger(int64(count))),
	}
	if b.StateSnapshot != "" {
		triples = append(triples, lit(PredStateSnapshot, rdf.NewString(b.StateSnapshot)))
	}
	if len(b.EncryptedPayload) > 0 {
		triples = append(triples, lit(PredEncryptedData, rdf.NewString(hex.EncodeToString(b.EncryptedPayload))))
	}
	return triples
}

// writeHeader replaces block b's header in the metadata graph.
func writeHeader(ctx context.Context, s *graphstore.Store, b *Block, count int) error {
	if _, err := s.RemoveQuads(ctx, graphstore.Match{
		Graph:   graphstore.MetadataGraph,
		Subject: rdf.NewIRI(HeaderSubject(b.Index)),
	}); err != nil {
		return fmt.Errorf("write header %d: %w", b.Index, err)
	}
	if err := s.AddTriples(ctx, graphstore.MetadataGraph, headerTriples(b, count)); err != nil {
		return fmt.Errorf("write header %d: %w", b.Index, err)
	}
	return nil
}

// removeHeader deletes block i's header.
func removeHeader(ctx context.Context, s *graphstore.Store, i uint64) error {
	_, err := s.RemoveQuads(ctx, graphstore.Match{
		Graph:   graphstore.MetadataGraph,
		Subject: rdf.NewIRI(HeaderSubject(i)),
	})
	if err != nil {
		return fmt.Errorf("remove header %d: %w", i, err)
	}
	return nil
}

// writeCount replaces the transaction count on block i's header.
func writeCount(ctx context.Context, s *graphstore.Store, i uint64, count int) error {
	subj := rdf.NewIRI(HeaderSubject(i))
	pred := rdf.NewIRI(PredTransactionCount)
	if _, err := s.RemoveQuads(ctx, graphstore.Match{
		Graph: graphstore.MetadataGraph, Subject: subj, Predicate: &pred,
	}); err != nil {
		return fmt.Errorf("write count %d: %w", i, err)
	}
	t := rdf.Triple{Subject: subj, Predicate: pred, Object: rdf.NewInteger(int64(count))}
	if err := s.AddTriples(ctx, graphstore.MetadataGraph, []rdf.Triple{t}); err != nil {
		return fmt.Errorf("write count %d: %w", i, err)
	}
	return nil
}

// writeTotal replaces the aggregate transaction counter.
func writeTotal(ctx context.Context, s *graphstore.Store, total int) error {
	subj := rdf.NewIRI(ChainSubject)
	pred := rdf.NewIRI(PredTotalTxns)
	if _, err := s.RemoveQuads(ctx, graphstore.Match{
		Graph: graphstore.MetadataGraph, Subject: subj, Predicate: &pred,
	}); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	t := rdf.Triple{Subject: subj, Predicate: pred, Object: rdf.NewInteger(int64(total))}
	if err := s.AddTriples(ctx, graphstore.MetadataGraph, []rdf.Triple{t}); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	return nil
}

// loadHeaders reconstructs headers from the metadata graph. Only store
// failures are returned as errors; malformed headers become Problems.
func loadHeaders(ctx context.Context, s *graphstore.Store) (*Reconstruction, error) {
	res, err := s.Query(ctx, gquery.Select{
		Graph:   gquery.InGraph(graphstore.MetadataGraph),
		Where:   []gquery.Pattern{{S: gquery.V("h"), P: gquery.V("p"), O: gquery.V("o")}},
		Filters: []gquery.Filter{gquery.StrStarts{Var: "h", Prefix: HeaderSubjectPrefix}},
		Vars:    []string{"h", "p", "o"},
	})
	if err != nil {
		return nil, fmt.Errorf("load headers: %w", err)
	}

	props := make(map[string]map[string][]rdf.Term)
	var subjects []string
	for _, sol := range res.Solutions {
		subj, ok := sol["h"].(rdf.IRI)
		if !ok {
			continue
		}
		p, ok := sol["p"].(rdf.IRI)
		if !ok {
			continue
		}
		h := subj.Value
		if _, seen := props[h]; !seen {
			props[h] = make(map[string][]rdf.Term)
			subjects = append(subjects, h)
		}
		props[h][p.Value] = append(props[h][p.Value], sol["o"])
	}

	rec := &Reconstruction{Headers: []Header{}}
	seen := make(map[uint64]bool)
	for _, subj := range subjects {
		h, err := decodeHeader(subj, props[subj])
		if err != nil {
			rec.Problems = append(rec.Problems, err.Error())
			continue
		}
		if seen[h.Index] {
			rec.Problems = append(rec.Problems, fmt.Sprintf("header %d: duplicate index", h.Index))
			continue
		}
		seen[h.Index] = true
		rec.Headers = append(rec.Headers, h)
	}
	slices.SortFunc(rec.Headers, func(a, b Header) int {
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		}
		return 0
	})

	total, ok, err := loadTotal(ctx, s)
	if err != nil {
		rec.Problems = append(rec.Problems, err.Error())
	}
	rec.TotalTransactions, rec.HasTotal = total, ok
	return rec, nil
}

func decodeHeader(subject string, p map[string][]rdf.Term) (Header, error) {
	idxText, ok := strings.CutPrefix(subject, HeaderSubjectPrefix)
	if !ok {
		return Header{}, fmt.Errorf("header %s: unexpected subject", subject)
	}
	fail := func(format string, args ...any) (Header, error) {
		return Header{}, fmt.Errorf("header %s: %s", idxText, fmt.Sprintf(format, args...))
	}

	one := func(pred string, required bool) (string, bool, error) {
		vals := p[pred]
		switch {
		case len(vals) == 0 && required:
			return "", false, fmt.Errorf("missing %s", localName(pred))
		case len(vals) == 0:
			return "", false, nil
		case len(vals) > 1:
			return "", false, fmt.Errorf("%d values for %s", len(vals), localName(pred))
		}
		switch v := vals[0].(type) {
		case rdf.Literal:
			return v.Lexical, true, nil
		case rdf.IRI:
			return v.Value, true, nil
		default:
			return "", false, fmt.Errorf("%s is a blank node", localName(pred))
		}
	}

	var h Header
	fields := []struct {
		pred     string
		dst      *string
		required bool
	}{
		{PredTimestamp, &h.Timestamp, true},
		{PredHash, &h.Hash, true},
		{PredPreviousHash, &h.PreviousHash, true},
		{PredDataGraph, &h.DataGraph, true},
		{PredValidator, &h.ValidatorID, true},
		{PredSignature, &h.Signature, true},
		{PredStateSnapshot, &h.StateSnapshot, false},
	}
	for _, f := range fields {
		v, _, err := one(f.pred, f.required)
		if err != nil {
			return fail("%v", err)
		}
		*f.dst = v
	}

	idx, _, err := one(PredIndex, true)
	if err != nil {
		return fail("%v", err)
	}
	h.Index, err = strconv.ParseUint(idx, 10, 64)
	if err != nil {
		return fail("index %q is not an unsigned integer", idx)
	}
	if strconv.FormatUint(h.Index, 10) != idxText {
		return fail("index %d does not match subject", h.Index)
	}

	count, ok, err := one(PredTransactionCount, false)
	if err != nil {
		return fail("%v", err)
	}
	if ok {
		h.TransactionCount, err = strconv.Atoi(count)
		if err != nil || h.TransactionCount < 0 {
			return fail("transaction count %q is not a count", count)
		}
		h.HasCount = true
	}

	enc, ok, err := one(PredEncryptedData, false)
	if err != nil {
		return fail("%v", err)
	}
	if ok {
		h.EncryptedPayload, err = hex.DecodeString(enc)
		if err != nil {
			return fail("encrypted data is not hex")
		}
	}
	return h, nil
}

func loadTotal(ctx context.Context, s *graphstore.Store) (int, bool, error) {
	res, err := s.Query(ctx, gquery.Select{
		Graph: gquery.InGraph(graphstore.MetadataGraph),
		Where: []gquery.Pattern{{S: gquery.IRI(ChainSubject), P: gquery.IRI(PredTotalTxns), O: gquery.V("n")}},
		Vars:  []string{"n"},
	})
	if err != nil {
		return 0, false, fmt.Errorf("load total: %w", err)
	}
	switch len(res.Solutions) {
	case 0:
		return 0, false, nil
	case 1:
	default:
		return 0, false, fmt.Errorf("chain: %d values for hasTotalTransactions", len(res.Solutions))
	}
	n, err := res.Int(0, "n")
	if err != nil {
		return 0, false, fmt.Errorf("chain: %w", err)
	}
	return int(n), true, nil
}

func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// blockFromHeader rebuilds a block from its header and stored payload.
func blockFromHeader(h Header, payload string) *Block {
	return &Block{
		Index:            h.Index,
		Timestamp:        h.Timestamp,
		Payload:          payload,
		EncryptedPayload: h.EncryptedPayload,
		PreviousHash:     h.PreviousHash,
		Hash:             h.Hash,
		StateSnapshot:    h.StateSnapshot,
		ValidatorID:      h.ValidatorID,
		Signature:        h.Signature,
		state:            StateCommitted,
	}
}
