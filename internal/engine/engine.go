// Package engine is the stable outward Query API described in spec §4.8:
// load, per-file/per-function lookup, call-graph traversal, search,
// entry-point resolution, and disassembly, all as read-only views over a
// frozen Profile.
package engine

import (
	"bytes"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/bivex/cgprof/internal/aggregate"
	"github.com/bivex/cgprof/internal/callgraph"
	"github.com/bivex/cgprof/internal/config"
	"github.com/bivex/cgprof/internal/disasm"
	"github.com/bivex/cgprof/internal/entrypoint"
	"github.com/bivex/cgprof/internal/parser"
	"github.com/bivex/cgprof/internal/profformat"
	"github.com/bivex/cgprof/internal/searchindex"
	"github.com/bivex/cgprof/internal/source"
)

// Engine holds one loaded Profile and the indices built over it. It is
// immutable after Load returns successfully and safe for unsynchronized
// concurrent reads (spec §5).
type Engine struct {
	cfg      config.Config
	log      *zap.Logger
	profile  *profformat.Profile
	graph    *callgraph.Graph
	search   *searchindex.Index
	entry    *entrypoint.Matcher
	resolver *source.Resolver
	disasm   *disasm.Adapter
}

// New builds an unloaded Engine. Call Load before any other method.
func New(cfg config.Config, log *zap.Logger, runner disasm.Runner) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg: cfg,
		log: log,
		disasm: disasm.New(disasm.Options{
			Tool:   cfg.DisasmTool,
			Logger: log,
		}, runner),
	}
}

// Load runs the full pipeline from spec §2 over profileBytes: parse,
// aggregate (inline during parse), build the call graph, build the search
// and entry-point indices, and resolve each file's source against
// sourceFiles. It is the only mutating call on Engine; once it returns
// nil, every other method is a pure read.
func (e *Engine) Load(profileBytes []byte, sourceFiles source.Files) error {
	return e.LoadReader(bytes.NewReader(profileBytes), sourceFiles)
}

// LoadReader is a streaming variant of Load for large inputs (spec §4.1:
// "linear in input size... parser SHOULD read line-by-line and never
// materialize the whole input in memory").
func (e *Engine) LoadReader(r io.Reader, sourceFiles source.Files) error {
	p, err := parser.Parse(r, parser.Options{
		MaxInputBytes: e.cfg.MaxInputBytes,
		Logger:        e.log,
	})
	if err != nil {
		return fmt.Errorf("engine: parse: %w", err)
	}

	e.profile = p
	e.graph = callgraph.Build(p)
	e.search = searchindex.Build(e.graph)
	e.entry = entrypoint.Build(e.graph)
	e.resolver = source.New(sourceFiles, e.cfg.SourceSubdir)

	for _, path := range p.FilePaths() {
		fr := p.Files[path]
		content, rerr := e.resolver.Resolve(path)
		fr.SetResolvedSource(content, rerr == nil)
	}

	return nil
}

// Profile returns the frozen model loaded by Load.
func (e *Engine) Profile() *profformat.Profile {
	return e.profile
}

// File returns the FileRecord for path, or nil if absent.
func (e *Engine) File(path string) *profformat.FileRecord {
	if e.profile == nil {
		return nil
	}
	return e.profile.Files[path]
}

// Function returns the FunctionRecord for (file, name), or nil if absent.
func (e *Engine) Function(file, name string) *profformat.FunctionRecord {
	if e.profile == nil {
		return nil
	}
	return e.profile.Function(file, name)
}

// Graph returns the built call graph.
func (e *Engine) Graph() *callgraph.Graph {
	return e.graph
}

// Roots returns the call graph's root nodes.
func (e *Engine) Roots() []*callgraph.Node {
	if e.graph == nil {
		return nil
	}
	return e.graph.Roots()
}

// SubtreeFrom materializes a finite subtree rooted at entry (spec §4.4).
func (e *Engine) SubtreeFrom(entry callgraph.NodeID) *callgraph.Tree {
	if e.graph == nil {
		return nil
	}
	return e.graph.Subtree(entry)
}

// Callers returns every node with an edge targeting id.
func (e *Engine) Callers(id callgraph.NodeID) []*callgraph.Node {
	if e.graph == nil {
		return nil
	}
	return e.graph.Callers(id)
}

// Callees returns the distinct nodes targeted by id's outgoing edges.
func (e *Engine) Callees(id callgraph.NodeID) []*callgraph.Node {
	if e.graph == nil {
		return nil
	}
	return e.graph.Callees(id)
}

// Search returns call-graph nodes matching query (spec §4.5).
func (e *Engine) Search(query string) []*callgraph.Node {
	if e.search == nil {
		return nil
	}
	return e.search.Query(query)
}

// ExpandAncestors returns ancestor node IDs for UI-side expansion
// (spec §4.5).
func (e *Engine) ExpandAncestors(matches []*callgraph.Node) []callgraph.NodeID {
	if e.search == nil {
		return nil
	}
	return e.search.ExpandAncestors(matches)
}

// ResolveEntry resolves an entry-point string to a node (spec §4.6).
func (e *Engine) ResolveEntry(x string) (*callgraph.Node, error) {
	if e.entry == nil {
		return nil, entrypoint.ErrNotFound
	}
	return e.entry.Resolve(x)
}

// SuggestEntry enumerates entry-point candidates for x (spec §4.6).
func (e *Engine) SuggestEntry(x string, limit int) []entrypoint.Suggestion {
	if e.entry == nil {
		return nil
	}
	return e.entry.Suggest(x, limit)
}

// Disassemble runs the disassembler adapter over fn's PC range, joining
// profile events onto the decoded instructions (spec §4.7).
func (e *Engine) Disassemble(fn *profformat.FunctionRecord) ([]disasm.Instruction, error) {
	if fn == nil {
		return nil, nil
	}
	r, ok := disasm.RangeForFunction(fn)
	if !ok {
		return nil, nil
	}
	insts, err := e.disasm.Disassemble(fn.ObjFile, r)
	if err != nil {
		return nil, err
	}
	return disasm.JoinProfile(insts, fn), nil
}

// FileCoverage returns the coverage view for every file (spec §4.3).
func (e *Engine) FileCoverage() []aggregate.FileCoverage {
	if e.profile == nil {
		return nil
	}
	return aggregate.Files(e.profile)
}

// ProjectTotals returns the project-wide coverage roll-up (spec §3).
func (e *Engine) ProjectTotals() aggregate.Totals {
	if e.profile == nil {
		return aggregate.Totals{}
	}
	return aggregate.Project(e.profile)
}

// CheckSummary compares the profile's declared summary against computed
// per-function totals (spec §8).
func (e *Engine) CheckSummary() []aggregate.SummaryMismatch {
	if e.profile == nil {
		return nil
	}
	return aggregate.CheckSummary(e.profile)
}
