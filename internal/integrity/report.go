package integrity

import (
	"maps"
	"reflect"
	"slices"
	"time"
)

// CorruptedBlock is a block whose stored graph can no longer stand in for
// its payload.
type CorruptedBlock struct {
	Index   uint64   `json:"index"`
	Reasons []string `json:"reasons"`
	// StaleHash is set when payload and stored graph agree, the block hash
	// fails to cover them, and the validator's signature still covers the
	// hash recomputed from them.
	StaleHash bool `json:"stale_hash,omitempty"`
}

// HashMismatch records a recomputed hash or a link that disagrees with the
// chain.
type HashMismatch struct {
	Index uint64 `json:"index"`
	// Kind is "block-hash" or "previous-hash".
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Mismatch kinds.
const (
	KindBlockHash    = "block-hash"
	KindPreviousHash = "previous-hash"
)

// HeaderMismatch is a persisted header field that disagrees with the
// in-memory block.
type HeaderMismatch struct {
	Index     uint64 `json:"index"`
	Field     string `json:"field"`
	Chain     string `json:"chain"`
	Persisted string `json:"persisted"`
}

// PhaseInfo is shared by every phase result.
type PhaseInfo struct {
	Status         Status   `json:"status"`
	Skipped        bool     `json:"skipped,omitempty"`
	BudgetExceeded bool     `json:"budget_exceeded,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// BlockchainStatus is the result of the chain phase.
type BlockchainStatus struct {
	PhaseInfo
	ChainLength          int              `json:"chain_length"`
	PersistedCount       int              `json:"persisted_count"`
	MissingFromStore     []uint64         `json:"missing_from_store,omitempty"`
	MissingFromChain     []uint64         `json:"missing_from_chain,omitempty"`
	IndexGaps            []uint64         `json:"index_gaps,omitempty"`
	CheckedBlocks        []uint64         `json:"checked_blocks,omitempty"`
	HashMismatches       []HashMismatch   `json:"hash_mismatches,omitempty"`
	CorruptedBlocks      []CorruptedBlock `json:"corrupted_blocks,omitempty"`
	HeaderMismatches     []HeaderMismatch `json:"header_mismatches,omitempty"`
	ReconstructionErrors []string         `json:"reconstruction_errors,omitempty"`
}

// CountDiscrepancy is a block whose counts disagree.
type CountDiscrepancy struct {
	Index    uint64 `json:"index"`
	Reported int    `json:"reported"`
	Actual   int    `json:"actual"`
	Stored   int    `json:"stored"`
	// Method is how Actual was derived: "parse" or "line-count".
	Method string `json:"method"`
}

// Drift patterns.
const (
	PatternOverCounting  = "over-counting"
	PatternUnderCounting = "under-counting"
)

// TransactionCountStatus is the result of the transaction count phase.
type TransactionCountStatus struct {
	PhaseInfo
	Discrepancies []CountDiscrepancy `json:"discrepancies,omitempty"`
	ReportedTotal int                `json:"reported_total"`
	ComputedTotal int                `json:"computed_total"`
	StoreTotal    int                `json:"store_total"`
	// AggregateDiscrepancy is the largest distance between the reported
	// total and either the computed or the stored total.
	AggregateDiscrepancy int    `json:"aggregate_discrepancy"`
	Pattern              string `json:"pattern,omitempty"`
}

// QueryResult is one battery query compared with a direct store read.
type QueryResult struct {
	Name       string `json:"name"`
	Query      string `json:"query"`
	Expected   int64  `json:"expected"`
	Actual     int64  `json:"actual"`
	Consistent bool   `json:"consistent"`
}

// CountDrift is a graph whose queried size disagrees with a direct count.
type CountDrift struct {
	Graph    string `json:"graph"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
}

// QueryStatus is the result of the query consistency phase.
type QueryStatus struct {
	PhaseInfo
	Results            []QueryResult `json:"results,omitempty"`
	MissingGraphs      []string      `json:"missing_graphs,omitempty"`
	InaccessibleGraphs []string      `json:"inaccessible_graphs,omitempty"`
	CountDrifts        []CountDrift  `json:"count_drifts,omitempty"`
}

// GraphCanon is the canonicalization result for one graph.
type GraphCanon struct {
	Graph         string `json:"graph"`
	Complexity    string `json:"complexity"`
	Custom        string `json:"custom,omitempty"`
	RDFC          string `json:"rdfc,omitempty"`
	Agree         bool   `json:"agree"`
	Deterministic bool   `json:"deterministic"`
	Cached        bool   `json:"cached"`
	CacheDrift    bool   `json:"cache_drift,omitempty"`
}

// CanonicalizationStatus is the result of the canonicalization phase.
type CanonicalizationStatus struct {
	PhaseInfo
	Graphs []GraphCanon `json:"graphs,omitempty"`
	// Disagreements lists graphs where the two algorithms differ.
	Disagreements []string `json:"disagreements,omitempty"`
	// CriticalDisagreements is the subset on simple graphs.
	CriticalDisagreements []string `json:"critical_disagreements,omitempty"`
	Nondeterministic      []string `json:"nondeterministic,omitempty"`
	CacheDrift            []string `json:"cache_drift,omitempty"`
	Failures              []string `json:"failures,omitempty"`
}

// RunInfo describes a validation run. It is excluded from Equivalent.
type RunInfo struct {
	ID             string                   `json:"id"`
	Level          string                   `json:"level,omitempty"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	Duration       time.Duration            `json:"duration"`
	PhaseDurations map[string]time.Duration `json:"phase_durations,omitempty"`
}

// Report is the result of a validation run.
type Report struct {
	OverallStatus    Status                 `json:"overall_status"`
	ChainLength      int                    `json:"chain_length"`
	Blockchain       BlockchainStatus       `json:"blockchain"`
	TransactionCount TransactionCountStatus `json:"transaction_count"`
	Query            QueryStatus            `json:"query"`
	Canonicalization CanonicalizationStatus `json:"canonicalization"`
	Recommendations  []Recommendation       `json:"recommendations"`
	Run              RunInfo                `json:"run"`
}

// Statuses returns the four phase statuses in phase order.
func (r *Report) Statuses() []Status {
	return []Status{
		r.Blockchain.Status,
		r.TransactionCount.Status,
		r.Query.Status,
		r.Canonicalization.Status,
	}
}

// Healthy reports whether the overall status is Healthy.
func (r *Report) Healthy() bool { return r.OverallStatus == Healthy }

// AutoFixable returns the recommendations the repair engine may act on.
func (r *Report) AutoFixable() []Recommendation {
	var out []Recommendation
	for _, rec := range r.Recommendations {
		if rec.AutoFixable {
			out = append(out, rec)
		}
	}
	return out
}

// Recommendation returns the first recommendation in category c.
func (r *Report) Recommendation(c Category) (Recommendation, bool) {
	for _, rec := range r.Recommendations {
		if rec.Category == c {
			return rec, true
		}
	}
	return Recommendation{}, false
}

// Equivalent reports whether r and o carry the same findings, ignoring
// run identity and timing.
func (r *Report) Equivalent(o *Report) bool {
	if r == nil || o == nil {
		return r == o
	}
	a, b := r.Clone(), o.Clone()
	a.Run, b.Run = RunInfo{}, RunInfo{}
	return reflect.DeepEqual(a, b)
}

// Clone returns a deep copy.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r

	c.Blockchain.PhaseInfo = r.Blockchain.PhaseInfo.clone()
	c.Blockchain.MissingFromStore = slices.Clone(r.Blockchain.MissingFromStore)
	c.Blockchain.MissingFromChain = slices.Clone(r.Blockchain.MissingFromChain)
	c.Blockchain.IndexGaps = slices.Clone(r.Blockchain.IndexGaps)
	c.Blockchain.CheckedBlocks = slices.Clone(r.Blockchain.CheckedBlocks)
	c.Blockchain.HashMismatches = slices.Clone(r.Blockchain.HashMismatches)
	c.Blockchain.HeaderMismatches = slices.Clone(r.Blockchain.HeaderMismatches)
	c.Blockchain.ReconstructionErrors = slices.Clone(r.Blockchain.ReconstructionErrors)
	if r.Blockchain.CorruptedBlocks != nil {
		c.Blockchain.CorruptedBlocks = make([]CorruptedBlock, len(r.Blockchain.CorruptedBlocks))
		for i, cb := range r.Blockchain.CorruptedBlocks {
			c.Blockchain.CorruptedBlocks[i] = CorruptedBlock{Index: cb.Index, Reasons: slices.Clone(cb.Reasons)}
		}
	}

	c.TransactionCount.PhaseInfo = r.TransactionCount.PhaseInfo.clone()
	c.TransactionCount.Discrepancies = slices.Clone(r.TransactionCount.Discrepancies)

	c.Query.PhaseInfo = r.Query.PhaseInfo.clone()
	c.Query.Results = slices.Clone(r.Query.Results)
	c.Query.MissingGraphs = slices.Clone(r.Query.MissingGraphs)
	c.Query.InaccessibleGraphs = slices.Clone(r.Query.InaccessibleGraphs)
	c.Query.CountDrifts = slices.Clone(r.Query.CountDrifts)

	c.Canonicalization.PhaseInfo = r.Canonicalization.PhaseInfo.clone()
	c.Canonicalization.Graphs = slices.Clone(r.Canonicalization.Graphs)
	c.Canonicalization.Disagreements = slices.Clone(r.Canonicalization.Disagreements)
	c.Canonicalization.CriticalDisagreements = slices.Clone(r.Canonicalization.CriticalDisagreements)
	c.Canonicalization.Nondeterministic = slices.Clone(r.Canonicalization.Nondeterministic)
	c.Canonicalization.CacheDrift = slices.Clone(r.Canonicalization.CacheDrift)
	c.Canonicalization.Failures = slices.Clone(r.Canonicalization.Failures)

	if r.Recommendations != nil {
		c.Recommendations = make([]Recommendation, len(r.Recommendations))
		for i, rec := range r.Recommendations {
			rec.Blocks = slices.Clone(rec.Blocks)
			c.Recommendations[i] = rec
		}
	}
	c.Run.PhaseDurations = maps.Clone(r.Run.PhaseDurations)
	return &c
}

func (p PhaseInfo) clone() PhaseInfo {
	p.Errors = slices.Clone(p.Errors)
	return p
}
