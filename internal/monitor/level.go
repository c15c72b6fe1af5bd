package monitor

import (
	"fmt"
	"strings"

	"github.com/roach88/semledger/internal/integrity"
)

// Level selects how much of the ledger a check covers.
type Level int

const (
	Minimal Level = iota
	Standard
	Comprehensive
	Full
)

// Level tuning.
const (
	minimalSpotCheck    = 10
	comprehensiveSample = 5
)

var levelNames = []string{"minimal", "standard", "comprehensive", "full"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel parses a level name, ignoring case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return Minimal, fmt.Errorf("unknown validation level %q (want one of %s)", s, strings.Join(levelNames, ", "))
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(text []byte) error {
	v, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Plan returns the integrity plan for the level.
func (l Level) Plan() integrity.Plan {
	p := integrity.Plan{Level: l.String()}
	switch l {
	case Minimal:
		p.SpotCheck = minimalSpotCheck
	case Standard:
		p.TransactionCount = true
	case Comprehensive:
		p.TransactionCount = true
		p.Query = true
		p.Canonicalization = true
		p.CanonSample = comprehensiveSample
	default:
		p = integrity.FullPlan()
		p.Level = l.String()
	}
	return p
}
