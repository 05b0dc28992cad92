package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bivex/cgprof/internal/callgraph"
)

// Statistics is the profile-wide counter set promoted to a named engine
// operation (SPEC_FULL.md "Supplemented Features"), mirroring the shape of
// the teacher's analyzer.ComputeStatistics but computed from the
// Cachegrind/Callgrind model instead of sampled callstacks.
type Statistics struct {
	FilesAnalyzed      int
	TotalCompiledLines int
	TotalCoveredLines  int
	Coverage           float64
	FunctionCount      int
	MaxLineHits        int64
	MinLineHits        int64
}

// Statistics computes profile-wide counters over the loaded model.
func (e *Engine) Statistics() Statistics {
	if e.profile == nil {
		return Statistics{}
	}

	totals := e.ProjectTotals()
	stats := Statistics{
		FilesAnalyzed:      totals.FilesAnalyzed,
		TotalCompiledLines: totals.TotalCompiledLines,
		TotalCoveredLines:  totals.TotalCoveredLines,
		Coverage:           totals.Coverage,
	}

	first := true
	for _, path := range e.profile.FilePaths() {
		fr := e.profile.Files[path]
		for _, name := range fr.FunctionNames() {
			fn := fr.Functions[name]
			stats.FunctionCount++
			for _, lr := range fn.Lines {
				hits := sumCounts(lr.Counts)
				if first || hits > stats.MaxLineHits {
					stats.MaxLineHits = hits
				}
				if first || hits < stats.MinLineHits {
					stats.MinLineHits = hits
				}
				first = false
			}
		}
	}
	return stats
}

func sumCounts(c []int64) int64 {
	var total int64
	for _, v := range c {
		total += v
	}
	return total
}

// Hotspot is one entry in a FormatHotspots listing, ranked by inclusive
// cost over the call graph.
type Hotspot struct {
	Node      *callgraph.Node
	Inclusive int64
	Percent   float64
}

// TopHotspots ranks call-graph nodes by inclusive cost on the graph's
// primary event (Cy if present, else Ir), mirroring the teacher's
// analyzer.FindHotspots but sourced from CallGraphNode.Inclusive instead
// of sampled callstack duration.
func (e *Engine) TopHotspots(n int) []Hotspot {
	if e.graph == nil || e.profile == nil {
		return nil
	}

	primary := "Ir"
	if e.profile.Vocabulary.Has("Cy") {
		primary = "Cy"
	}
	idx := e.profile.Vocabulary.IndexOf(primary)
	if idx < 0 {
		return nil
	}

	nodes := e.graph.Nodes()
	var total int64
	hotspots := make([]Hotspot, 0, len(nodes))
	for _, node := range nodes {
		var v int64
		if idx < len(node.Inclusive) {
			v = node.Inclusive[idx]
		}
		total += v
		hotspots = append(hotspots, Hotspot{Node: node, Inclusive: v})
	}

	for i := range hotspots {
		if total > 0 {
			hotspots[i].Percent = float64(hotspots[i].Inclusive) / float64(total) * 100.0
		}
	}

	sort.Slice(hotspots, func(i, j int) bool {
		return hotspots[i].Inclusive > hotspots[j].Inclusive
	})

	if n > 0 && n < len(hotspots) {
		hotspots = hotspots[:n]
	}
	return hotspots
}

// FormatHotspots renders the top-N hotspot listing as human-readable text,
// in the teacher's analyzer.FormatHotspot style.
func (e *Engine) FormatHotspots(n int) string {
	hotspots := e.TopHotspots(n)
	if len(hotspots) == 0 {
		return "No hotspots found.\n"
	}

	var sb strings.Builder
	for i, hs := range hotspots {
		sb.WriteString(fmt.Sprintf("#%d: %s:%s\n", i+1, hs.Node.ID.File, hs.Node.ID.Name))
		sb.WriteString(fmt.Sprintf("    Inclusive: %d (%.2f%%)\n", hs.Inclusive, hs.Percent))
		if hs.Node.PCStart != "" {
			sb.WriteString(fmt.Sprintf("    PC range: %s..%s\n", hs.Node.PCStart, hs.Node.PCEnd))
		}
	}
	return sb.String()
}
