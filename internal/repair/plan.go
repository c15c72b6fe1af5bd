package repair

import (
	"time"

	"github.com/roach88/semledger/internal/integrity"
)

// RepairPlan splits a report's recommendations into what the engine will
// do and what needs an operator.
type RepairPlan struct {
	Automatic      []integrity.Recommendation `json:"automatic"`
	Manual         []integrity.Recommendation `json:"manual"`
	EstimatedTime  time.Duration              `json:"estimated_time"`
	RequiresBackup bool                       `json:"requires_backup"`
}

// Per-category cost estimates.
var (
	baseCost     = 50 * time.Millisecond
	perBlockCost = map[integrity.Category]time.Duration{
		integrity.CategoryChainLength:      20 * time.Millisecond,
		integrity.CategoryHashChain:        40 * time.Millisecond,
		integrity.CategoryCorruptedBlock:   60 * time.Millisecond,
		integrity.CategoryCanonicalization: 80 * time.Millisecond,
		integrity.CategoryTransactionCount: 5 * time.Millisecond,
	}
)

// Plan builds a repair plan from report.
func Plan(report *integrity.Report) *RepairPlan {
	p := &RepairPlan{}
	if report == nil {
		return p
	}
	for _, rec := range report.Recommendations {
		if !rec.AutoFixable || !handled(rec.Category) {
			p.Manual = append(p.Manual, rec)
			continue
		}
		p.Automatic = append(p.Automatic, rec)
		blocks := max(len(rec.Blocks), 1)
		if rec.Category == integrity.CategoryTransactionCount || rec.Category == integrity.CategoryHashChain {
			blocks = max(blocks, report.ChainLength)
		}
		p.EstimatedTime += baseCost + time.Duration(blocks)*perBlockCost[rec.Category]
	}
	p.RequiresBackup = len(p.Automatic) > 0
	return p
}

func handled(c integrity.Category) bool {
	_, ok := perBlockCost[c]
	return ok
}
