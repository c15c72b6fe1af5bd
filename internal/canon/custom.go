package canon

import (
	"slices"
	"strings"

	"github.com/roach88/semledger/internal/digest"
	"github.com/roach88/semledger/internal/rdf"
)

// custom canonicalizes with first-degree hashes and color refinement.
//
// Unique first-degree hashes are issued exactly as RDFC issues them. Each
// shared group is ordered by refined color; a group refinement fully splits
// is issued in that order, a tied group whose members touch no other blank
// node is interchangeable and issued as is, and anything else goes to the
// n-degree step.
func custom(triples []rdf.Triple, workLimit int) (string, error) {
	s := newState(triples, workLimit)
	groups, shared := s.issueUnique()
	if len(shared) == 0 {
		return s.document(), nil
	}

	colors, err := s.refine()
	if err != nil {
		return "", err
	}
	for _, h := range shared {
		group := slices.Clone(groups[h])
		slices.SortStableFunc(group, func(a, b string) int {
			return strings.Compare(colors[a], colors[b])
		})
		if distinctColors(group, colors) || !s.touchesBlank(group) {
			for _, id := range group {
				s.canonical.issue(id)
			}
			continue
		}
		if err := s.issueByNDegree(group); err != nil {
			return "", err
		}
	}
	return s.document(), nil
}

// refine runs color refinement seeded with first-degree hashes until the
// number of distinct colors stops growing.
func (s *state) refine() (map[string]string, error) {
	labels := s.blanks()
	colors := make(map[string]string, len(labels))
	for _, l := range labels {
		colors[l] = s.hashFirstDegree(l)
	}
	distinct := countDistinct(colors)

	for range labels {
		if err := s.spend(); err != nil {
			return nil, err
		}
		repr := func(t rdf.Term) string {
			if b, ok := t.(rdf.BlankNode); ok {
				return "_:" + colors[b.Label]
			}
			return t.String()
		}
		next := make(map[string]string, len(labels))
		for _, l := range labels {
			var entries []string
			for _, t := range s.blankQuads[l] {
				if b, ok := t.Subject.(rdf.BlankNode); ok && b.Label == l {
					entries = append(entries, "s"+t.Predicate.String()+repr(t.Object))
				}
				if b, ok := t.Object.(rdf.BlankNode); ok && b.Label == l {
					entries = append(entries, "o"+t.Predicate.String()+repr(t.Subject))
				}
			}
			slices.Sort(entries)
			next[l] = digest.Sum256Hex([]byte(colors[l] + "\n" + strings.Join(entries, "\n")))
		}
		colors = next
		n := countDistinct(colors)
		if n == distinct {
			break
		}
		distinct = n
	}
	return colors, nil
}

func (s *state) touchesBlank(group []string) bool {
	for _, id := range group {
		for _, t := range s.blankQuads[id] {
			if rdf.IsBlank(t.Subject) && rdf.IsBlank(t.Object) {
				return true
			}
		}
	}
	return false
}

func distinctColors(group []string, colors map[string]string) bool {
	for i := 1; i < len(group); i++ {
		if colors[group[i]] == colors[group[i-1]] {
			return false
		}
	}
	return true
}

func countDistinct(colors map[string]string) int {
	seen := make(map[string]struct{}, len(colors))
	for _, c := range colors {
		seen[c] = struct{}{}
	}
	return len(seen)
}
