// Package parser implements the streaming Cachegrind/Callgrind text-format
// parser (spec §4.1): a state machine that consumes the profile as a lazy
// sequence of lines and emits a fully populated profformat.Profile without
// materializing the whole input twice.
package parser

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bivex/cgprof/internal/profformat"
)

// DefaultMaxInputBytes is the caller-set size cap from spec §7
// (ParseError::InputTooLarge), used when Options.MaxInputBytes is zero.
const DefaultMaxInputBytes = 100 << 20 // 100 MB

// Options configures a single parse run.
type Options struct {
	// MaxInputBytes bounds total input size; 0 uses DefaultMaxInputBytes.
	MaxInputBytes int64
	// Logger receives non-fatal diagnostics (malformed rows, etc). Defaults
	// to a no-op logger.
	Logger *zap.Logger
}

func (o Options) maxBytes() int64 {
	if o.MaxInputBytes > 0 {
		return o.MaxInputBytes
	}
	return DefaultMaxInputBytes
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

var (
	directiveKeys = map[string]bool{
		"ob": true, "fl": true, "fi": true, "fe": true, "fn": true,
		"cob": true, "cfi": true, "cfn": true, "calls": true,
		"jump": true, "jcnd": true, "jfi": true,
	}
	headerKeys = map[string]bool{
		"events": true, "cmd": true, "pid": true, "positions": true,
		"part": true, "summary": true,
	}
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineHeader
	lineDirective
	lineData
)

// classify determines the grammar category of a raw line and, for header
// and directive lines, the key/value split point.
func classify(raw string) (kind lineKind, key, value string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return lineBlank, "", ""
	}
	if strings.HasPrefix(trimmed, "#") {
		return lineComment, "", trimmed
	}

	eq := strings.IndexByte(trimmed, '=')
	co := strings.IndexByte(trimmed, ':')

	if eq >= 0 && (co < 0 || eq < co) {
		if k := trimmed[:eq]; directiveKeys[k] {
			return lineDirective, k, strings.TrimSpace(trimmed[eq+1:])
		}
	}
	if co >= 0 {
		if k := trimmed[:co]; headerKeys[k] {
			return lineHeader, k, strings.TrimSpace(trimmed[co+1:])
		}
	}
	return lineData, "", trimmed
}

// state holds everything the parser mutates while walking the body of a
// profile; it is owned entirely by Parse and never escapes into the built
// Profile (spec §9: "global mutable state in the source ... becomes an
// explicit parser state struct").
type state struct {
	vocab          *profformat.Vocabulary
	kind           profformat.Kind
	positionsInstr bool
	sawEvents      bool

	currentObjFile string
	currentFile    *profformat.FileRecord
	currentFunc    *profformat.FunctionRecord

	pendingCallActive  bool
	pendingCallObjFile string
	pendingCallFile    string
	pendingCallFunc    string
	pendingCallCount   int64

	skipNextDataRow bool

	profile *profformat.Profile
	log     *zap.Logger
}

// Parse consumes r as a Cachegrind/Callgrind text profile and returns the
// finalized, frozen Profile. ErrNoVocabulary, ErrInputTooLarge and any
// error from reading r (including a line longer than 16 MiB) are fatal;
// all other malformed input is skipped with a logged warning.
func Parse(r io.Reader, opts Options) (*profformat.Profile, error) {
	log := opts.logger()
	maxBytes := opts.maxBytes()

	st := &state{
		kind: profformat.KindCachegrind,
		log:  log,
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	var consumedBytes int64
	firstNonEmptySeen := false

	for scanner.Scan() {
		raw := scanner.Text()
		consumedBytes += int64(len(raw)) + 1
		if consumedBytes > maxBytes {
			return nil, ErrInputTooLarge
		}

		kind, key, value := classify(raw)

		if !firstNonEmptySeen && kind != lineBlank {
			firstNonEmptySeen = true
			if kind == lineComment && value == "# callgrind format" {
				st.kind = profformat.KindCallgrind
			}
		}

		skip := st.skipNextDataRow
		st.skipNextDataRow = false

		switch kind {
		case lineBlank, lineComment:
			continue
		case lineHeader:
			if err := st.handleHeader(key, value); err != nil {
				return nil, err
			}
		case lineDirective:
			st.handleDirective(key, value)
		case lineData:
			if skip {
				continue
			}
			if err := st.handleData(value); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if st.profile == nil {
		// No events: header and no data row ever created a profile; return
		// an empty, valid (vocabulary-less) model rather than erroring, since
		// NoVocabulary is only fatal when a data row was actually consumed.
		st.profile = profformat.NewProfile(profformat.NewVocabulary(nil), st.kind)
	} else {
		st.profile.Kind = st.kind
	}
	return st.profile, nil
}

func (st *state) ensureProfile() {
	if st.profile == nil {
		st.profile = profformat.NewProfile(st.vocab, st.kind)
	}
}

func (st *state) handleHeader(key, value string) error {
	switch key {
	case "events":
		fields := strings.Fields(value)
		st.vocab = profformat.NewVocabulary(fields)
		st.sawEvents = true
		st.ensureProfile()
		st.profile.Vocabulary = st.vocab
	case "cmd":
		st.ensureProfile()
		st.profile.Command = value
	case "pid":
		st.ensureProfile()
		st.profile.PID = value
	case "positions":
		fields := strings.Fields(value)
		st.positionsInstr = false
		for _, f := range fields {
			if f == "instr" {
				st.positionsInstr = true
				st.kind = profformat.KindCallgrind
			}
		}
	case "part":
		// ignored per spec
	case "summary":
		if st.vocab == nil {
			st.log.Warn("summary before events header, ignoring")
			return nil
		}
		fields := strings.Fields(value)
		counts, ok := parseCounts(fields, st.vocab)
		if !ok {
			st.log.Warn("malformed summary row", zap.String("value", value))
			return nil
		}
		st.ensureProfile()
		st.profile.Summary = counts
	}
	return nil
}

func (st *state) handleDirective(key, value string) {
	switch key {
	case "ob":
		st.currentObjFile = value
		st.kind = profformat.KindCallgrind
	case "fl":
		st.ensureProfile()
		st.currentFile = st.profile.FileRecordAt(value)
		if st.currentFile.ObjFile == "" {
			st.currentFile.ObjFile = st.currentObjFile
		}
	case "fi", "fe":
		// file include/end: ignored for scope, lines stay attributed to
		// the current file.
	case "fn":
		if st.currentFile == nil {
			st.ensureProfile()
			st.currentFile = st.profile.FileRecordAt("")
		}
		st.currentFunc = st.currentFile.FunctionNamed(value, st.vocab)
		if st.currentFunc.ObjFile == "" {
			st.currentFunc.ObjFile = st.currentObjFile
		}
	case "cob":
		st.pendingCallObjFile = value
		st.kind = profformat.KindCallgrind
	case "cfi":
		st.pendingCallFile = value
	case "cfn":
		st.pendingCallFunc = value
	case "calls":
		st.kind = profformat.KindCallgrind
		fields := strings.Fields(value)
		if len(fields) == 0 {
			st.log.Warn("calls= directive missing count")
			return
		}
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			st.log.Warn("malformed calls= count", zap.String("value", fields[0]))
			return
		}
		st.pendingCallActive = true
		st.pendingCallCount = n
	case "jump", "jcnd":
		st.skipNextDataRow = true
	case "jfi":
		// ignored
	}
}

// handleData parses one DATA row and folds it into the current function,
// additionally materializing a CallEdge when a "calls=" directive is
// pending (spec §3 CallEdge, §4.1 aggregation rules).
func (st *state) handleData(value string) error {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}

	if st.vocab == nil {
		return ErrNoVocabulary
	}

	var pc string
	rest := fields
	if st.positionsInstr && len(fields) > 0 && looksLikeHexPC(fields[0]) {
		pc = normalizePC(fields[0])
		rest = fields[1:]
		st.kind = profformat.KindCallgrind
	}
	if len(rest) == 0 {
		st.log.Warn("malformed data row: no line field", zap.String("value", value))
		st.clearPendingCall()
		return nil
	}

	line, err := strconv.Atoi(rest[0])
	if err != nil {
		st.log.Warn("malformed data row: non-integer line", zap.String("value", value))
		st.clearPendingCall()
		return nil
	}

	counts, ok := parseCounts(rest[1:], st.vocab)
	if !ok {
		st.log.Warn("malformed data row: non-integer counts", zap.String("value", value))
		st.clearPendingCall()
		return nil
	}

	if st.currentFunc == nil {
		st.log.Warn("data row outside any fn= context, skipping", zap.String("value", value))
		st.clearPendingCall()
		return nil
	}

	st.currentFunc.AddLine(line, counts)
	if pc != "" {
		st.currentFunc.AddPC(pc, line, counts)
	}

	if st.pendingCallActive {
		edge := profformat.CallEdge{
			SourcePC:     pc,
			TargetFile:   st.pendingCallFile,
			TargetFunc:   st.pendingCallFunc,
			Calls:        st.pendingCallCount,
			HasInclusive: true,
			Inclusive:    counts.Clone(),
		}
		st.currentFunc.Calls = append(st.currentFunc.Calls, edge)
		st.clearPendingCall()
	}

	return nil
}

func (st *state) clearPendingCall() {
	st.pendingCallActive = false
	st.pendingCallObjFile = ""
	st.pendingCallFile = ""
	st.pendingCallFunc = ""
	st.pendingCallCount = 0
}

// parseCounts converts fields to a vocabulary-width Counts vector, padding
// missing trailing columns with 0 (callgrind's abbreviated trailing zeros).
// Returns ok=false if any field is not a non-negative integer.
func parseCounts(fields []string, vocab *profformat.Vocabulary) (profformat.Counts, bool) {
	counts := profformat.NewCounts(vocab)
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil || n < 0 {
			return nil, false
		}
		if i < len(counts) {
			counts[i] = n
		} else {
			counts = append(counts, n)
		}
	}
	return counts, true
}

func looksLikeHexPC(s string) bool {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return len(s) > 2
	}
	return false
}

func normalizePC(s string) string {
	return "0x" + strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
