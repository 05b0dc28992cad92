// Package profformat defines the frozen data model produced by the
// streaming parser: event vocabulary, per-line/per-PC records, call edges,
// and the top-level Profile.
package profformat

// Kind distinguishes the two profile dialects this model can represent.
type Kind int

const (
	// KindCachegrind is a profile with no callgrind marker, directive or
	// instruction-level positions.
	KindCachegrind Kind = iota
	// KindCallgrind is a profile recognized as callgrind: by its
	// "# callgrind format" marker, an ob=/cob=/calls= directive, or
	// instruction-level PC positions.
	KindCallgrind
)

func (k Kind) String() string {
	if k == KindCallgrind {
		return "callgrind"
	}
	return "cachegrind"
}

// Vocabulary is the ordered sequence of event identifiers declared by a
// profile's "events:" header. Its order is the column order of every
// subsequent data row. It is frozen once the header is consumed.
type Vocabulary struct {
	names []string
	index map[string]int
}

// NewVocabulary builds a Vocabulary from the "events:" header fields, in
// declaration order.
func NewVocabulary(names []string) *Vocabulary {
	v := &Vocabulary{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		v.index[n] = i
	}
	return v
}

// Len returns the number of declared events.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.names)
}

// Names returns the declared event identifiers in column order.
func (v *Vocabulary) Names() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.names...)
}

// IndexOf returns the column index of an event name, or -1 if undeclared.
func (v *Vocabulary) IndexOf(name string) int {
	if v == nil {
		return -1
	}
	if i, ok := v.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the event is part of the vocabulary.
func (v *Vocabulary) Has(name string) bool {
	return v.IndexOf(name) >= 0
}

// Counts is a vocabulary-indexed fixed-width vector of non-negative event
// counts, replacing the source format's dynamic per-row key set.
type Counts []int64

// NewCounts allocates a zeroed Counts vector sized to the vocabulary.
func NewCounts(v *Vocabulary) Counts {
	return make(Counts, v.Len())
}

// Add accumulates src into dst element-wise, growing dst if src is wider
// (callgrind rows may abbreviate trailing zero columns, never extra ones,
// but this keeps Add total regardless of caller discipline).
func (c Counts) Add(src Counts) Counts {
	if len(src) > len(c) {
		grown := make(Counts, len(src))
		copy(grown, c)
		c = grown
	}
	for i, v := range src {
		c[i] += v
	}
	return c
}

// AnyPositive reports whether any event count is greater than zero.
func (c Counts) AnyPositive() bool {
	for _, v := range c {
		if v > 0 {
			return true
		}
	}
	return false
}

// At returns the count at index i, or 0 if out of range (missing trailing
// columns default to 0 per spec).
func (c Counts) At(i int) int64 {
	if i < 0 || i >= len(c) {
		return 0
	}
	return c[i]
}

// Clone returns an independent copy.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	copy(out, c)
	return out
}

// LineRecord aggregates event counts for a (file, function, source-line)
// triple. When multiple PCs map to the same line, their counts are summed
// and Executed becomes the logical OR.
type LineRecord struct {
	Line     int
	Counts   Counts
	Executed bool
}

func (lr *LineRecord) merge(c Counts) {
	lr.Counts = lr.Counts.Add(c)
	if c.AnyPositive() {
		lr.Executed = true
	}
}

// PcRecord is the per-instruction analogue of LineRecord, used only in
// callgrind (instruction-level) mode. Each PC belongs to at most one
// function.
type PcRecord struct {
	PC       string // normalized "0x" + lowercase hex
	Line     int
	Counts   Counts
	Executed bool
}

func (pr *PcRecord) merge(c Counts) {
	pr.Counts = pr.Counts.Add(c)
	if c.AnyPositive() {
		pr.Executed = true
	}
}

// CallEdge is an outgoing call from a source PC (may be empty in
// cachegrind mode) to a target function, optionally in another file.
type CallEdge struct {
	SourcePC     string
	TargetFile   string // empty means "same file as source"
	TargetFunc   string
	Calls        int64
	HasInclusive bool
	Inclusive    Counts
}

// FunctionRecord is one function within a FileRecord.
type FunctionRecord struct {
	Name      string
	File      string
	ObjFile   string
	Lines     map[int]*LineRecord
	PCs       map[string]*PcRecord
	Exclusive Counts
	Calls     []CallEdge

	coveredLines   map[int]struct{}
	uncoveredLines map[int]struct{}
}

func newFunctionRecord(file, name string, vocab *Vocabulary) *FunctionRecord {
	return &FunctionRecord{
		Name:           name,
		File:           file,
		Lines:          make(map[int]*LineRecord),
		PCs:            make(map[string]*PcRecord),
		Exclusive:      NewCounts(vocab),
		coveredLines:   make(map[int]struct{}),
		uncoveredLines: make(map[int]struct{}),
	}
}

// AddLine folds a data row's counts into the (line) aggregate and the
// function's exclusive total, tracking covered/uncovered membership.
func (f *FunctionRecord) AddLine(line int, c Counts) {
	lr, ok := f.Lines[line]
	if !ok {
		lr = &LineRecord{Line: line, Counts: make(Counts, len(c))}
		f.Lines[line] = lr
	}
	lr.merge(c)
	f.Exclusive = f.Exclusive.Add(c)

	delete(f.uncoveredLines, line)
	delete(f.coveredLines, line)
	if lr.Executed {
		f.coveredLines[line] = struct{}{}
	} else {
		f.uncoveredLines[line] = struct{}{}
	}
}

// AddPC folds an instruction-level row into the PC aggregate.
func (f *FunctionRecord) AddPC(pc string, line int, c Counts) {
	pr, ok := f.PCs[pc]
	if !ok {
		pr = &PcRecord{PC: pc, Line: line, Counts: make(Counts, len(c))}
		f.PCs[pc] = pr
	}
	pr.merge(c)
}

// CoveredLines returns the set of source lines executed at least once.
func (f *FunctionRecord) CoveredLines() []int {
	return sortedKeys(f.coveredLines)
}

// UncoveredLines returns the set of source lines never executed.
func (f *FunctionRecord) UncoveredLines() []int {
	return sortedKeys(f.uncoveredLines)
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// FileRecord owns all functions parsed from one source path.
type FileRecord struct {
	Path      string
	ObjFile   string
	Functions map[string]*FunctionRecord

	// order preserves first-appearance order of function names, per the
	// ordering guarantee in spec §5.
	order []string

	// resolved caches the outcome of resolving Path against the caller's
	// source-file set, set lazily by the caller (not the parser).
	resolved    string
	resolvedOK  bool
	resolveDone bool
}

func newFileRecord(path string) *FileRecord {
	return &FileRecord{Path: path, Functions: make(map[string]*FunctionRecord)}
}

func (fr *FileRecord) FunctionNamed(name string, vocab *Vocabulary) *FunctionRecord {
	fn, ok := fr.Functions[name]
	if !ok {
		fn = newFunctionRecord(fr.Path, name, vocab)
		fr.Functions[name] = fn
		fr.order = append(fr.order, name)
	}
	return fn
}

// FunctionNames returns function names in first-appearance order.
func (fr *FileRecord) FunctionNames() []string {
	return append([]string(nil), fr.order...)
}

// Coverage computes the union of covered/uncovered lines across all
// functions in the file (spec §4.3).
func (fr *FileRecord) Coverage() (covered, uncovered int, compiled int, pct float64) {
	coveredSet := make(map[int]struct{})
	uncoveredSet := make(map[int]struct{})
	for _, name := range fr.order {
		fn := fr.Functions[name]
		for l := range fn.coveredLines {
			coveredSet[l] = struct{}{}
			delete(uncoveredSet, l)
		}
		for l := range fn.uncoveredLines {
			if _, already := coveredSet[l]; !already {
				uncoveredSet[l] = struct{}{}
			}
		}
	}
	covered = len(coveredSet)
	uncovered = len(uncoveredSet)
	compiled = covered + uncovered
	if compiled > 0 {
		pct = float64(covered) / float64(compiled) * 100.0
	}
	return
}

// SetResolvedSource caches the resolver's outcome for this file, so
// repeated queries against the frozen Profile don't re-resolve.
func (fr *FileRecord) SetResolvedSource(content string, ok bool) {
	fr.resolved = content
	fr.resolvedOK = ok
	fr.resolveDone = true
}

// ResolvedSource returns the cached resolver outcome, if any was set.
func (fr *FileRecord) ResolvedSource() (content string, ok, done bool) {
	return fr.resolved, fr.resolvedOK, fr.resolveDone
}

// Profile is the fully populated, frozen output of the streaming parser.
type Profile struct {
	Vocabulary *Vocabulary
	Kind       Kind
	Command    string
	PID        string
	Files      map[string]*FileRecord
	Summary    Counts

	// order preserves first-appearance order of file paths.
	order []string
}

// NewProfile constructs an empty Profile around a frozen vocabulary.
func NewProfile(vocab *Vocabulary, kind Kind) *Profile {
	return &Profile{
		Vocabulary: vocab,
		Kind:       kind,
		Files:      make(map[string]*FileRecord),
	}
}

// FileRecordAt returns the FileRecord for path, creating it if absent.
func (p *Profile) FileRecordAt(path string) *FileRecord {
	fr, ok := p.Files[path]
	if !ok {
		fr = newFileRecord(path)
		p.Files[path] = fr
		p.order = append(p.order, path)
	}
	return fr
}

// FilePaths returns file paths in first-appearance order.
func (p *Profile) FilePaths() []string {
	return append([]string(nil), p.order...)
}

// Function looks up a function by (file, name), returning nil if absent.
func (p *Profile) Function(file, name string) *FunctionRecord {
	fr, ok := p.Files[file]
	if !ok {
		return nil
	}
	return fr.Functions[name]
}

// Totals computes project-wide coverage totals (spec §4.3).
func (p *Profile) Totals() (filesAnalyzed, totalCompiled, totalCovered int, pct float64) {
	filesAnalyzed = len(p.Files)
	for _, path := range p.order {
		fr := p.Files[path]
		covered, _, compiled, _ := fr.Coverage()
		totalCompiled += compiled
		totalCovered += covered
	}
	if totalCompiled > 0 {
		pct = float64(totalCovered) / float64(totalCompiled) * 100.0
	}
	return
}
