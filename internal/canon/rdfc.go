package canon

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/semledger/internal/digest"
	"github.com/roach88/semledger/internal/rdf"
)

// ErrCanonicalizationLimit is returned when the n-degree step exceeds its
// work budget. Only deliberately symmetric graphs get there.
var ErrCanonicalizationLimit = errors.New("canonicalization work limit exceeded")

// DefaultWorkLimit bounds n-degree hashing calls plus permutations tried.
const DefaultWorkLimit = 250_000

const (
	canonicalPrefix = "_:c14n"
	tempPrefix      = "_:b"
)

// state is the shared canonicalization state for one graph.
type state struct {
	triples     []rdf.Triple
	blankQuads  map[string][]rdf.Triple
	firstDegree map[string]string
	canonical   *issuer
	work        int
	workLimit   int
}

func newState(triples []rdf.Triple, workLimit int) *state {
	if workLimit <= 0 {
		workLimit = DefaultWorkLimit
	}
	s := &state{
		triples:     rdf.Dedup(triples),
		blankQuads:  make(map[string][]rdf.Triple),
		firstDegree: make(map[string]string),
		canonical:   newIssuer(canonicalPrefix),
		workLimit:   workLimit,
	}
	for _, t := range s.triples {
		if b, ok := t.Subject.(rdf.BlankNode); ok {
			s.blankQuads[b.Label] = append(s.blankQuads[b.Label], t)
		}
		if b, ok := t.Object.(rdf.BlankNode); ok {
			// a self-loop is listed once
			if sb, ok := t.Subject.(rdf.BlankNode); !ok || sb.Label != b.Label {
				s.blankQuads[b.Label] = append(s.blankQuads[b.Label], t)
			}
		}
	}
	return s
}

func (s *state) spend() error {
	s.work++
	if s.work > s.workLimit {
		return fmt.Errorf("%w (%d units)", ErrCanonicalizationLimit, s.workLimit)
	}
	return nil
}

// blanks returns blank node labels in sorted order so iteration over maps
// never leaks into the result.
func (s *state) blanks() []string {
	labels := make([]string, 0, len(s.blankQuads))
	for l := range s.blankQuads {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// hashFirstDegree hashes the quads mentioning ref with ref written as _:a
// and every other blank node as _:z.
func (s *state) hashFirstDegree(ref string) string {
	if h, ok := s.firstDegree[ref]; ok {
		return h
	}
	lines := make([]string, 0, len(s.blankQuads[ref]))
	for _, t := range s.blankQuads[ref] {
		lines = append(lines, serialize(t, func(label string) string {
			if label == ref {
				return "_:a"
			}
			return "_:z"
		}))
	}
	slices.Sort(lines)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	h := digest.Sum256Hex([]byte(b.String()))
	s.firstDegree[ref] = h
	return h
}

// hashGroups maps first-degree hashes to the blank nodes that share them.
func (s *state) hashGroups() (map[string][]string, []string) {
	groups := make(map[string][]string)
	for _, label := range s.blanks() {
		h := s.hashFirstDegree(label)
		groups[h] = append(groups[h], label)
	}
	hashes := make([]string, 0, len(groups))
	for h := range groups {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	return groups, hashes
}

// issueUnique gives canonical labels to nodes whose first-degree hash is
// unique, in hash order, and returns the remaining groups.
func (s *state) issueUnique() (map[string][]string, []string) {
	groups, hashes := s.hashGroups()
	var shared []string
	for _, h := range hashes {
		if len(groups[h]) == 1 {
			s.canonical.issue(groups[h][0])
			continue
		}
		shared = append(shared, h)
	}
	return groups, shared
}

func (s *state) hashRelated(related string, t rdf.Triple, iss *issuer, position byte) string {
	var id string
	switch {
	case s.canonical.has(related):
		id = s.canonical.get(related)
	case iss.has(related):
		id = iss.get(related)
	default:
		id = s.hashFirstDegree(related)
	}
	var b strings.Builder
	b.WriteByte(position)
	b.WriteByte('<')
	b.WriteString(t.Predicate.Value)
	b.WriteByte('>')
	b.WriteString(id)
	return digest.Sum256Hex([]byte(b.String()))
}

type ndegreeResult struct {
	hash   string
	issuer *issuer
}

func (s *state) hashNDegree(id string, iss *issuer) (ndegreeResult, error) {
	if err := s.spend(); err != nil {
		return ndegreeResult{}, err
	}

	hashToRelated := make(map[string][]string)
	for _, t := range s.blankQuads[id] {
		if b, ok := t.Subject.(rdf.BlankNode); ok && b.Label != id {
			h := s.hashRelated(b.Label, t, iss, 's')
			hashToRelated[h] = append(hashToRelated[h], b.Label)
		}
		if b, ok := t.Object.(rdf.BlankNode); ok && b.Label != id {
			h := s.hashRelated(b.Label, t, iss, 'o')
			hashToRelated[h] = append(hashToRelated[h], b.Label)
		}
	}
	related := make([]string, 0, len(hashToRelated))
	for h := range hashToRelated {
		related = append(related, h)
	}
	slices.Sort(related)

	var data strings.Builder
	for _, h := range related {
		data.WriteString(h)

		chosenPath := ""
		var chosenIssuer *issuer
		perm := slices.Clone(hashToRelated[h])
		slices.Sort(perm)
		for {
			if err := s.spend(); err != nil {
				return ndegreeResult{}, err
			}
			path, pathIssuer, ok, err := s.tryPermutation(perm, iss, chosenPath)
			if err != nil {
				return ndegreeResult{}, err
			}
			if ok && (chosenPath == "" || path < chosenPath) {
				chosenPath = path
				chosenIssuer = pathIssuer
			}
			if !nextPermutation(perm) {
				break
			}
		}

		data.WriteString(chosenPath)
		iss = chosenIssuer
	}
	return ndegreeResult{hash: digest.Sum256Hex([]byte(data.String())), issuer: iss}, nil
}

// tryPermutation builds the path for one ordering of related nodes. ok is
// false when the path can no longer beat chosen.
func (s *state) tryPermutation(perm []string, iss *issuer, chosen string) (string, *issuer, bool, error) {
	copyIss := iss.clone()
	var path strings.Builder
	var recursion []string
	for _, related := range perm {
		if s.canonical.has(related) {
			path.WriteString(s.canonical.get(related))
		} else {
			if !copyIss.has(related) {
				recursion = append(recursion, related)
			}
			path.WriteString(copyIss.issue(related))
		}
		if chosen != "" && path.String() > chosen {
			return "", nil, false, nil
		}
	}
	for _, related := range recursion {
		result, err := s.hashNDegree(related, copyIss)
		if err != nil {
			return "", nil, false, err
		}
		path.WriteString(copyIss.issue(related))
		path.WriteByte('<')
		path.WriteString(result.hash)
		path.WriteByte('>')
		copyIss = result.issuer
		if chosen != "" && path.String() > chosen {
			return "", nil, false, nil
		}
	}
	return path.String(), copyIss, true, nil
}

// issueByNDegree resolves one group of nodes sharing a first-degree hash.
func (s *state) issueByNDegree(group []string) error {
	var results []ndegreeResult
	for _, id := range group {
		if s.canonical.has(id) {
			continue
		}
		tmp := newIssuer(tempPrefix)
		tmp.issue(id)
		res, err := s.hashNDegree(id, tmp)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	slices.SortStableFunc(results, func(a, b ndegreeResult) int {
		return strings.Compare(a.hash, b.hash)
	})
	for _, res := range results {
		for _, existing := range res.issuer.order {
			s.canonical.issue(existing)
		}
	}
	return nil
}

// document serializes the graph with canonical labels, sorted.
func (s *state) document() string {
	lines := make([]string, 0, len(s.triples))
	for _, t := range s.triples {
		lines = append(lines, serialize(t, func(label string) string {
			return s.canonical.issue(label)
		}))
	}
	slices.Sort(lines)
	lines = slices.Compact(lines)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// rdfc runs RDFC-1.0 and returns the canonical document.
func rdfc(triples []rdf.Triple, workLimit int) (string, error) {
	s := newState(triples, workLimit)
	groups, shared := s.issueUnique()
	for _, h := range shared {
		if err := s.issueByNDegree(groups[h]); err != nil {
			return "", err
		}
	}
	return s.document(), nil
}

// serialize writes one N-Triples line, mapping blank labels through rename.
func serialize(t rdf.Triple, rename func(string) string) string {
	term := func(x rdf.Term) string {
		if b, ok := x.(rdf.BlankNode); ok {
			return rename(b.Label)
		}
		return x.String()
	}
	return term(t.Subject) + " " + t.Predicate.String() + " " + term(t.Object) + " ."
}

// nextPermutation rearranges perm into its lexicographic successor and
// reports false when perm was already the last permutation.
func nextPermutation(perm []string) bool {
	i := len(perm) - 2
	for i >= 0 && perm[i] >= perm[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(perm) - 1
	for perm[j] <= perm[i] {
		j--
	}
	perm[i], perm[j] = perm[j], perm[i]
	slices.Reverse(perm[i+1:])
	return true
}
