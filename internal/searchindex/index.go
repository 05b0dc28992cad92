// Package searchindex builds the substring/prefix/word search index over
// call-graph nodes described in spec §4.5.
package searchindex

import (
	"sort"
	"strings"
	"unicode"

	"github.com/bivex/cgprof/internal/callgraph"
)

const (
	maxPrefixLen       = 12
	minSuffixLen       = 3
	maxSuffixLen       = 8
	shortNameThreshold = 8
	minSubstringLen    = 2
	maxSubstringLen    = 4
	exactResultCap     = 10
	containsResultCap  = 5
	ancestorMatchCap   = 30
	ancestorDepthCap   = 20
)

// Index is the built, immutable inverted index: term -> node set, plus the
// reverse node -> term set kept for potential invalidation (not consulted
// at query time, per spec §4.5).
type Index struct {
	termToNodes map[string]map[callgraph.NodeID]*callgraph.Node
	nodeToTerms map[callgraph.NodeID]map[string]struct{}
	roots       []*callgraph.Node
	graph       *callgraph.Graph
}

// Build indexes every node's name into term -> node-set and
// node -> term-set maps (spec §4.5).
func Build(g *callgraph.Graph) *Index {
	idx := &Index{
		termToNodes: make(map[string]map[callgraph.NodeID]*callgraph.Node),
		nodeToTerms: make(map[callgraph.NodeID]map[string]struct{}),
		roots:       g.Roots(),
		graph:       g,
	}
	for _, n := range g.Nodes() {
		for _, term := range termsFor(n.ID.Name) {
			idx.add(term, n)
		}
	}
	return idx
}

func (idx *Index) add(term string, n *callgraph.Node) {
	set, ok := idx.termToNodes[term]
	if !ok {
		set = make(map[callgraph.NodeID]*callgraph.Node)
		idx.termToNodes[term] = set
	}
	set[n.ID] = n

	nodeTerms, ok := idx.nodeToTerms[n.ID]
	if !ok {
		nodeTerms = make(map[string]struct{})
		idx.nodeToTerms[n.ID] = nodeTerms
	}
	nodeTerms[term] = struct{}{}
}

// termsFor computes every indexable term for a function name (spec §4.5):
// the full lowercase name; words split on non-alphanumerics/underscore/
// camelCase boundaries (length >= 2); lowercase prefixes up to
// min(len,12); lowercase suffixes of length 3..min(len,8); and, for short
// names (length <= 8), internal substrings of length 2..4.
func termsFor(name string) []string {
	lower := strings.ToLower(name)
	terms := map[string]struct{}{lower: {}}

	for _, w := range splitWords(name) {
		if len(w) >= 2 {
			terms[strings.ToLower(w)] = struct{}{}
		}
	}

	maxP := maxPrefixLen
	if len(lower) < maxP {
		maxP = len(lower)
	}
	for l := 1; l <= maxP; l++ {
		terms[lower[:l]] = struct{}{}
	}

	maxS := maxSuffixLen
	if len(lower) < maxS {
		maxS = len(lower)
	}
	for l := minSuffixLen; l <= maxS; l++ {
		terms[lower[len(lower)-l:]] = struct{}{}
	}

	if len(lower) <= shortNameThreshold {
		for l := minSubstringLen; l <= maxSubstringLen && l <= len(lower); l++ {
			for i := 0; i+l <= len(lower); i++ {
				terms[lower[i:i+l]] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	return out
}

// splitWords splits on non-alphanumerics, underscore, and camelCase
// boundaries.
func splitWords(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || (!unicode.IsLetter(r) && !unicode.IsDigit(r)):
			flush()
		case i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// Query returns matching nodes, deduplicated, for a lowercase-trimmed
// input (spec §4.5): exact term lookup; if the result set has fewer than
// 10 entries, union with terms that start with the query; if still fewer
// than 5, union with terms that contain the query. An empty query returns
// an empty set.
func (idx *Index) Query(q string) []*callgraph.Node {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}

	result := make(map[callgraph.NodeID]*callgraph.Node)
	addSet := func(set map[callgraph.NodeID]*callgraph.Node) {
		for id, n := range set {
			result[id] = n
		}
	}

	if set, ok := idx.termToNodes[q]; ok {
		addSet(set)
	}

	if len(result) < exactResultCap {
		for term, set := range idx.termToNodes {
			if strings.HasPrefix(term, q) {
				addSet(set)
			}
		}
	}

	if len(result) < containsResultCap {
		for term, set := range idx.termToNodes {
			if strings.Contains(term, q) {
				addSet(set)
			}
		}
	}

	out := make([]*callgraph.Node, 0, len(result))
	for _, n := range result {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// ExpandAncestors builds a parent map in one DFS traversal from the root
// set, then for each matched node (capped at 30) walks parents up to depth
// 20, collecting their IDs for UI-side expansion (spec §4.5).
func (idx *Index) ExpandAncestors(matches []*callgraph.Node) []callgraph.NodeID {
	parent := idx.buildParentMap()

	seen := make(map[callgraph.NodeID]struct{})
	var out []callgraph.NodeID

	limit := len(matches)
	if limit > ancestorMatchCap {
		limit = ancestorMatchCap
	}
	for i := 0; i < limit; i++ {
		cur := matches[i].ID
		for depth := 0; depth < ancestorDepthCap; depth++ {
			p, ok := parent[cur]
			if !ok {
				break
			}
			if _, already := seen[p]; !already {
				seen[p] = struct{}{}
				out = append(out, p)
			}
			cur = p
		}
	}
	return out
}

// buildParentMap performs one DFS from the root set, recording each node's
// parent in that traversal.
func (idx *Index) buildParentMap() map[callgraph.NodeID]callgraph.NodeID {
	parent := make(map[callgraph.NodeID]callgraph.NodeID)
	visited := make(map[callgraph.NodeID]bool)

	var visit func(id callgraph.NodeID)
	visit = func(id callgraph.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := idx.graph.Node(id)
		if n == nil {
			return
		}
		seenChild := make(map[callgraph.NodeID]bool)
		for _, e := range n.Edges {
			if seenChild[e.Target] {
				continue
			}
			seenChild[e.Target] = true
			if _, has := parent[e.Target]; !has {
				parent[e.Target] = id
			}
			visit(e.Target)
		}
	}

	for _, r := range idx.roots {
		visit(r.ID)
	}
	return parent
}
