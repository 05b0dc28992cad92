// Package aggregate computes the post-parse coverage roll-ups described in
// spec §4.3: per-file covered/uncovered line unions and project-wide
// totals. The per-(file,line) and per-function bookkeeping itself lives in
// profformat, built inline by the parser; this package exposes the
// read-only views and summary-consistency checks callers need.
package aggregate

import "github.com/bivex/cgprof/internal/profformat"

// FileCoverage is the read-only coverage view of one FileRecord.
type FileCoverage struct {
	Path          string
	Covered       int
	Uncovered     int
	CompiledLines int
	Percent       float64
}

// Files computes FileCoverage for every file in the profile, in
// first-appearance order (spec §5 ordering guarantee).
func Files(p *profformat.Profile) []FileCoverage {
	paths := p.FilePaths()
	out := make([]FileCoverage, 0, len(paths))
	for _, path := range paths {
		fr := p.Files[path]
		covered, uncovered, compiled, pct := fr.Coverage()
		out = append(out, FileCoverage{
			Path:          path,
			Covered:       covered,
			Uncovered:     uncovered,
			CompiledLines: compiled,
			Percent:       pct,
		})
	}
	return out
}

// Totals is the project-wide coverage roll-up (spec §3 Profile fields).
type Totals struct {
	FilesAnalyzed      int
	TotalCompiledLines int
	TotalCoveredLines  int
	Coverage           float64
}

// Project computes Totals over every file in the profile.
func Project(p *profformat.Profile) Totals {
	files, compiled, covered, pct := p.Totals()
	return Totals{
		FilesAnalyzed:      files,
		TotalCompiledLines: compiled,
		TotalCoveredLines:  covered,
		Coverage:           pct,
	}
}

// SummaryMismatch describes one event whose summary-declared total
// disagrees with the sum of per-function exclusive totals (spec §8:
// "Summary totals from the input equal the sum of per-function exclusive
// totals across the profile, when summary: is present").
type SummaryMismatch struct {
	Event    string
	Declared int64
	Computed int64
}

// CheckSummary compares the profile's declared Summary vector against the
// sum of every function's exclusive totals, event by event. Returns an
// empty slice when they agree or no summary was declared.
func CheckSummary(p *profformat.Profile) []SummaryMismatch {
	if len(p.Summary) == 0 {
		return nil
	}

	computed := profformat.NewCounts(p.Vocabulary)
	for _, path := range p.FilePaths() {
		fr := p.Files[path]
		for _, name := range fr.FunctionNames() {
			fn := fr.Functions[name]
			computed = computed.Add(fn.Exclusive)
		}
	}

	var mismatches []SummaryMismatch
	names := p.Vocabulary.Names()
	for i, name := range names {
		declared := p.Summary.At(i)
		got := computed.At(i)
		if declared != got {
			mismatches = append(mismatches, SummaryMismatch{
				Event:    name,
				Declared: declared,
				Computed: got,
			})
		}
	}
	return mismatches
}
