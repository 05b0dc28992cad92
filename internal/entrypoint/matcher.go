// Package entrypoint implements the entry-point matcher from spec §4.6:
// resolution by exact name, by PC address (exact start or range binary
// search), and by partial-name fallback, plus suggestion enumeration.
package entrypoint

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bivex/cgprof/internal/callgraph"
)

// ErrNotFound is returned when an entry-point string matches nothing
// (spec §7, EntryError::NotFound).
var ErrNotFound = errors.New("entrypoint: no match")

var hexPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]+$`)

const (
	minPartialLen = 3
	namePrefixMin = 3
	namePrefixMax = 8
	wordPrefixMin = 3
	wordPrefixMax = 6
	suggestionCap = 10
)

type pcRange struct {
	start, end uint64
	node       *callgraph.Node
}

// Matcher is the built, immutable entry-point index.
type Matcher struct {
	byFullName     map[string]*callgraph.Node
	byStrippedName map[string]*callgraph.Node
	byPartial      map[string][]*callgraph.Node
	byPCStart      map[uint64]*callgraph.Node
	ranges         []pcRange
	allNames       []string
}

// Build indexes every node in the graph (spec §4.6):
//  1. lowercase full-name map
//  2. leading-underscore-stripped name map
//  3. partial-name map over name prefixes (3..8) and each word's prefixes (3..6)
//  4. PC-start exact map
//  5. sorted {pc_start, pc_end, node} array for binary-search range lookup
func Build(g *callgraph.Graph) *Matcher {
	m := &Matcher{
		byFullName:     make(map[string]*callgraph.Node),
		byStrippedName: make(map[string]*callgraph.Node),
		byPartial:      make(map[string][]*callgraph.Node),
		byPCStart:      make(map[uint64]*callgraph.Node),
	}

	for _, n := range g.Nodes() {
		lower := strings.ToLower(n.ID.Name)
		m.byFullName[lower] = n
		m.allNames = append(m.allNames, n.ID.Name)

		stripped := strings.TrimLeft(lower, "_")
		if stripped != lower {
			m.byStrippedName[stripped] = n
		}

		for _, prefix := range namePrefixes(lower, namePrefixMin, namePrefixMax) {
			m.byPartial[prefix] = append(m.byPartial[prefix], n)
		}
		for _, w := range splitWords(lower) {
			for _, prefix := range namePrefixes(w, wordPrefixMin, wordPrefixMax) {
				m.byPartial[prefix] = append(m.byPartial[prefix], n)
			}
		}

		if start, ok := parseHexAddr(n.PCStart); ok {
			m.byPCStart[start] = n
			end, okEnd := parseHexAddr(n.PCEnd)
			if !okEnd {
				end = start
			}
			m.ranges = append(m.ranges, pcRange{start: start, end: end, node: n})
		}
	}

	sort.Slice(m.ranges, func(i, j int) bool { return m.ranges[i].start < m.ranges[j].start })
	sort.Strings(m.allNames)

	return m
}

func namePrefixes(s string, minLen, maxLen int) []string {
	var out []string
	max := maxLen
	if len(s) < max {
		max = len(s)
	}
	for l := minLen; l <= max; l++ {
		out = append(out, s[:l])
	}
	return out
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
}

func parseHexAddr(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}

// Resolve implements the four-step resolution order from spec §4.6.
func (m *Matcher) Resolve(x string) (*callgraph.Node, error) {
	lower := strings.ToLower(strings.TrimSpace(x))
	if lower == "" {
		return nil, ErrNotFound
	}

	if n, ok := m.byFullName[lower]; ok {
		return n, nil
	}
	if n, ok := m.byStrippedName[lower]; ok {
		return n, nil
	}

	if hexPattern.MatchString(lower) {
		addr, ok := parseHexAddr(lower)
		if ok {
			if n, exact := m.byPCStart[addr]; exact {
				return n, nil
			}
			if n := m.rangeSearch(addr); n != nil {
				return n, nil
			}
		}
	}

	if len(lower) >= minPartialLen {
		if candidates, ok := m.byPartial[lower]; ok && len(candidates) > 0 {
			return candidates[0], nil
		}
		for _, n := range m.byFullNameSorted() {
			if strings.HasPrefix(strings.ToLower(n.ID.Name), lower) {
				return n, nil
			}
		}
	}

	return nil, ErrNotFound
}

func (m *Matcher) byFullNameSorted() []*callgraph.Node {
	names := append([]string(nil), m.allNames...)
	out := make([]*callgraph.Node, 0, len(names))
	for _, name := range names {
		if n, ok := m.byFullName[strings.ToLower(name)]; ok {
			out = append(out, n)
		}
	}
	return out
}

// rangeSearch binary-searches the sorted range array for a range
// containing addr: find the last range whose start is <= addr, then verify
// addr falls within its end.
func (m *Matcher) rangeSearch(addr uint64) *callgraph.Node {
	i := sort.Search(len(m.ranges), func(i int) bool {
		return m.ranges[i].start > addr
	})
	if i == 0 {
		return nil
	}
	r := m.ranges[i-1]
	if addr >= r.start && addr <= r.end {
		return r.node
	}
	return nil
}

// Suggestion is one candidate returned by Suggest.
type Suggestion struct {
	Name string
	Node *callgraph.Node
}

// Suggest enumerates names containing the query (capped) and, when the
// query looks numeric, matching PC-start entries (spec §4.6).
func (m *Matcher) Suggest(x string, limit int) []Suggestion {
	if limit <= 0 {
		limit = suggestionCap
	}
	lower := strings.ToLower(strings.TrimSpace(x))
	if lower == "" {
		return nil
	}

	var out []Suggestion
	seen := make(map[callgraph.NodeID]bool)

	for _, name := range m.allNames {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(name), lower) {
			n := m.byFullName[strings.ToLower(name)]
			if n == nil || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, Suggestion{Name: name, Node: n})
		}
	}

	if hexPattern.MatchString(lower) {
		for _, r := range m.ranges {
			if len(out) >= limit {
				break
			}
			if strings.Contains(strings.ToLower(r.node.PCStart), lower) {
				if seen[r.node.ID] {
					continue
				}
				seen[r.node.ID] = true
				out = append(out, Suggestion{Name: r.node.ID.Name, Node: r.node})
			}
		}
	}

	return out
}
