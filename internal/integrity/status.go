package integrity

import "fmt"

// Status is the health of a phase or of a whole report. Higher is worse.
type Status int

const (
	Healthy Status = iota
	Warning
	Critical
	Corrupted
)

var statusNames = []string{"healthy", "warning", "critical", "corrupted"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus is the inverse of String.
func ParseStatus(text string) (Status, error) {
	for i, name := range statusNames {
		if name == text {
			return Status(i), nil
		}
	}
	return Healthy, fmt.Errorf("unknown status %q", text)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Worst returns the most severe of statuses, or Healthy for none.
func Worst(statuses ...Status) Status {
	w := Healthy
	for _, s := range statuses {
		if s > w {
			w = s
		}
	}
	return w
}

// raise sets *s to at least min.
func raise(s *Status, min Status) {
	if min > *s {
		*s = min
	}
}

// Severity grades a recommendation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityEmergency
)

var severityNames = []string{"info", "warning", "critical", "emergency"}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(text []byte) error {
	for i, name := range severityNames {
		if name == string(text) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// Category groups findings by the repair that addresses them.
type Category string

const (
	CategoryChainLength      Category = "chain-length"
	CategoryHashChain        Category = "hash-chain"
	CategoryCorruptedBlock   Category = "corrupted-block"
	CategoryCanonicalization Category = "canonicalization"
	CategoryTransactionCount Category = "transaction-count"
	CategoryQuery            Category = "query-consistency"
	CategoryPerformance      Category = "performance"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryChainLength,
	CategoryHashChain,
	CategoryCorruptedBlock,
	CategoryTransactionCount,
	CategoryQuery,
	CategoryCanonicalization,
	CategoryPerformance,
}

// Recommendation is one remediation suggestion. Blocks lists the affected
// block indices, if any.
type Recommendation struct {
	Severity       Severity `json:"severity"`
	Category       Category `json:"category"`
	Description    string   `json:"description"`
	ActionRequired string   `json:"action_required"`
	AutoFixable    bool     `json:"auto_fixable"`
	Blocks         []uint64 `json:"blocks,omitempty"`
}
