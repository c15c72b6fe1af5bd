package integrity

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// RenderSummary writes a human-readable summary of r to w.
func RenderSummary(w io.Writer, r *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Integrity: %s\n", strings.ToUpper(r.OverallStatus.String()))
	fmt.Fprintf(&b, "Chain length: %d", r.ChainLength)
	if r.Run.Level != "" {
		fmt.Fprintf(&b, " (level %s)", r.Run.Level)
	}
	b.WriteString("\n")
	if r.Run.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", r.Run.Duration.Round(time.Millisecond))
	}

	b.WriteString("\nPhases:\n")
	bc := r.Blockchain
	phase(&b, "chain", bc.PhaseInfo, fmt.Sprintf("%d persisted, %d checked, %d corrupted, %d hash mismatch(es)",
		bc.PersistedCount, len(bc.CheckedBlocks), len(bc.CorruptedBlocks), len(bc.HashMismatches)))
	tc := r.TransactionCount
	phase(&b, "transaction count", tc.PhaseInfo, fmt.Sprintf("reported %d, computed %d, stored %d, %d discrepancy(ies)",
		tc.ReportedTotal, tc.ComputedTotal, tc.StoreTotal, len(tc.Discrepancies)))
	q := r.Query
	consistent := 0
	for _, qr := range q.Results {
		if qr.Consistent {
			consistent++
		}
	}
	phase(&b, "query", q.PhaseInfo, fmt.Sprintf("%d/%d consistent, %d missing graph(s)",
		consistent, len(q.Results), len(q.MissingGraphs)))
	cs := r.Canonicalization
	phase(&b, "canonicalization", cs.PhaseInfo, fmt.Sprintf("%d graph(s), %d disagreement(s), %d cache drift",
		len(cs.Graphs), len(cs.Disagreements), len(cs.CacheDrift)))

	if len(bc.CorruptedBlocks) > 0 {
		b.WriteString("\nCorrupted blocks:\n")
		for _, cb := range bc.CorruptedBlocks {
			fmt.Fprintf(&b, "  #%d: %s\n", cb.Index, strings.Join(cb.Reasons, "; "))
		}
	}
	if len(bc.HashMismatches) > 0 {
		b.WriteString("\nHash mismatches:\n")
		for _, m := range bc.HashMismatches {
			fmt.Fprintf(&b, "  #%d %s: expected %s, got %s\n", m.Index, m.Kind, short(m.Expected), short(m.Actual))
		}
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fix := "manual"
			if rec.AutoFixable {
				fix = "auto"
			}
			fmt.Fprintf(&b, "  [%s] %s (%s): %s\n", rec.Severity, rec.Category, fix, rec.Description)
			if len(rec.Blocks) > 0 {
				fmt.Fprintf(&b, "      blocks: %s\n", joinIndices(rec.Blocks))
			}
			fmt.Fprintf(&b, "      action: %s\n", rec.ActionRequired)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func phase(b *strings.Builder, name string, info PhaseInfo, detail string) {
	if info.Skipped {
		fmt.Fprintf(b, "  %-18s skipped\n", name)
		return
	}
	fmt.Fprintf(b, "  %-18s %-9s %s\n", name, info.Status, detail)
	if info.BudgetExceeded {
		fmt.Fprintf(b, "  %-18s budget exceeded\n", "")
	}
	for _, e := range info.Errors {
		fmt.Fprintf(b, "  %-18s error: %s\n", "", e)
	}
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

func joinIndices(indices []uint64) string {
	parts := make([]string, len(indices))
	for i, n := range indices {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
