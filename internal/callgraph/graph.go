// Package callgraph builds the directed multigraph of functions described
// in spec §4.4: one CallGraphNode per (file, function), edges carrying call
// counts and inclusive event vectors, cycle-safe traversals, and inclusive
// cost computed once at build time.
package callgraph

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bivex/cgprof/internal/profformat"
)

// NodeID identifies a node by its (file, function) key, per spec §3
// ("CallGraph: set of nodes keyed by (file, name)").
type NodeID struct {
	File string
	Name string
}

// String renders a stable, human-readable identifier.
func (id NodeID) String() string {
	return id.File + ":" + id.Name
}

// Edge is a materialized outgoing call, resolved against the node it
// targets (which may be a stub).
type Edge struct {
	Target    NodeID
	SourcePC  string
	Calls     int64
	Inclusive profformat.Counts
}

// Node is one function in the call graph.
type Node struct {
	ID NodeID

	// Stub is true when the node was created only because something called
	// it but it was never itself defined in the profile (spec §4.4).
	Stub bool

	Exclusive profformat.Counts
	Inclusive profformat.Counts

	Edges []Edge

	// PCStart/PCEnd are the first/last PC of the node's PcRecord set,
	// ordered as unsigned hexadecimal; empty when the node has no PC data.
	PCStart string
	PCEnd   string

	incoming int
	fn       *profformat.FunctionRecord
}

// Function returns the backing FunctionRecord, or nil for a stub node.
func (n *Node) Function() *profformat.FunctionRecord {
	return n.fn
}

// Graph is the built call graph: a node set plus adjacency via each node's
// Edges, safe for unsynchronized concurrent reads once built.
type Graph struct {
	nodes map[NodeID]*Node
	// order preserves first-appearance order of nodes.
	order []NodeID
	vocab *profformat.Vocabulary
}

// Node looks up a node by ID, returning nil if absent.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in first-appearance order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Roots returns nodes with no incoming edges (spec §4.4 root discovery),
// in first-appearance order.
func (g *Graph) Roots() []*Node {
	var out []*Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.incoming == 0 {
			out = append(out, n)
		}
	}
	return out
}

// primaryEvent picks Cy if present in the vocabulary, else Ir (spec §4.4
// inclusive-cost rule).
func primaryEvent(vocab *profformat.Vocabulary) string {
	if vocab.Has("Cy") {
		return "Cy"
	}
	return "Ir"
}

// Build materializes the call graph from a parsed Profile. Unmatched call
// targets become stub nodes with zero exclusive cost (spec §4.4); a
// CallEdge's target is matched by (target-file or source-file, target-name)
// (spec §3).
func Build(p *profformat.Profile) *Graph {
	g := &Graph{
		nodes: make(map[NodeID]*Node),
		vocab: p.Vocabulary,
	}

	for _, path := range p.FilePaths() {
		fr := p.Files[path]
		for _, name := range fr.FunctionNames() {
			fn := fr.Functions[name]
			id := NodeID{File: path, Name: name}
			g.ensureDefined(id, fn)
		}
	}

	for _, path := range p.FilePaths() {
		fr := p.Files[path]
		for _, name := range fr.FunctionNames() {
			fn := fr.Functions[name]
			src := NodeID{File: path, Name: name}
			for _, edge := range fn.Calls {
				targetFile := edge.TargetFile
				if targetFile == "" {
					targetFile = path
				}
				targetID := NodeID{File: targetFile, Name: edge.TargetFunc}
				target := g.nodeOrStub(targetID)
				target.incoming++

				g.nodes[src].Edges = append(g.nodes[src].Edges, Edge{
					Target:    targetID,
					SourcePC:  edge.SourcePC,
					Calls:     edge.Calls,
					Inclusive: edge.Inclusive,
				})
			}
		}
	}

	primary := primaryEvent(p.Vocabulary)
	primaryIdx := p.Vocabulary.IndexOf(primary)
	for _, id := range g.order {
		n := g.nodes[id]
		n.Inclusive = n.Exclusive.Clone()
		if primaryIdx < 0 {
			continue
		}
		for len(n.Inclusive) <= primaryIdx {
			n.Inclusive = append(n.Inclusive, 0)
		}
		for _, e := range n.Edges {
			n.Inclusive[primaryIdx] += e.Inclusive.At(primaryIdx)
		}
	}

	return g
}

func (g *Graph) ensureDefined(id NodeID, fn *profformat.FunctionRecord) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{ID: id}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	n.Stub = false
	n.fn = fn
	n.Exclusive = fn.Exclusive.Clone()
	n.PCStart, n.PCEnd = pcRange(fn)
	return n
}

func (g *Graph) nodeOrStub(id NodeID) *Node {
	n, ok := g.nodes[id]
	if ok {
		return n
	}
	n = &Node{ID: id, Stub: true, Exclusive: profformat.NewCounts(g.vocab)}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

// pcRange returns the first/last PC of fn's PcRecord set ordered as
// unsigned hexadecimal, or empty strings when there is no PC data (spec
// §3, §4.4).
func pcRange(fn *profformat.FunctionRecord) (start, end string) {
	if len(fn.PCs) == 0 {
		return "", ""
	}
	pcs := make([]string, 0, len(fn.PCs))
	for pc := range fn.PCs {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool {
		return lessHex(pcs[i], pcs[j])
	})
	return pcs[0], pcs[len(pcs)-1]
}

func lessHex(a, b string) bool {
	av, aok := parseHex(a)
	bv, bok := parseHex(b)
	if aok && bok {
		return av < bv
	}
	return a < b
}

func parseHex(s string) (uint64, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}

// Callers returns every node with an edge targeting id.
func (g *Graph) Callers(id NodeID) []*Node {
	var out []*Node
	for _, nid := range g.order {
		n := g.nodes[nid]
		for _, e := range n.Edges {
			if e.Target == id {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Callees returns the distinct nodes targeted by id's outgoing edges, in
// edge order.
func (g *Graph) Callees(id NodeID) []*Node {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	seen := make(map[NodeID]bool)
	var out []*Node
	for _, e := range n.Edges {
		if seen[e.Target] {
			continue
		}
		seen[e.Target] = true
		out = append(out, g.nodes[e.Target])
	}
	return out
}

// Tree is a finite materialization of a subtree rooted at some entry node,
// bounding recursion by the cycle rule in spec §4.4 ("at a repeat node,
// emit a leaf so the output is a finite tree").
type Tree struct {
	Node     *Node
	Children []*Tree
	Repeat   bool
}

// Subtree performs a depth-first walk from entry, carrying a visited set
// scoped to the current path: a node seen again on the current path (a
// recursion cycle) is emitted as a repeat leaf, so the walk always
// terminates. A node reachable from entry along several distinct paths is
// expanded once per path, so the tree is not bounded by the node count.
func (g *Graph) Subtree(entry NodeID) *Tree {
	visited := make(map[NodeID]bool)
	return g.subtree(entry, visited)
}

func (g *Graph) subtree(id NodeID, visited map[NodeID]bool) *Tree {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	if visited[id] {
		return &Tree{Node: n, Repeat: true}
	}
	visited[id] = true
	defer delete(visited, id)

	t := &Tree{Node: n}
	seen := make(map[NodeID]bool)
	for _, e := range n.Edges {
		if seen[e.Target] {
			continue
		}
		seen[e.Target] = true
		child := g.subtree(e.Target, visited)
		if child != nil {
			t.Children = append(t.Children, child)
		}
	}
	return t
}
