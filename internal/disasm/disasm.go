// Package disasm implements the disassembler adapter from spec §4.7: given
// an object-file path and a PC range, it invokes an external disassembly
// tool and returns (PC, instruction) pairs joined against a function's
// profile events.
package disasm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bivex/cgprof/internal/profformat"
)

// Error kinds from spec §7 (DisasmError::{PermissionDenied, ToolMissing,
// InvalidObjectFile, Io}).
var (
	ErrPermissionDenied  = errors.New("disasm: object file not readable")
	ErrToolMissing       = errors.New("disasm: disassembler tool not found")
	ErrInvalidObjectFile = errors.New("disasm: file format not recognized")
	ErrIo                = errors.New("disasm: disassembler invocation failed")
)

var instrLine = regexp.MustCompile(`^[ ]*([0-9a-fA-F]+):[ \t]+(.+)$`)

// Instruction is one decoded (PC, text) pair, optionally joined against a
// function's per-PC profile events.
type Instruction struct {
	PC         string
	Text       string
	Counts     profformat.Counts
	Executed   bool
	HasProfile bool
}

// Range is a PC range expressed as the caller would derive it from a
// function's PcRecord keys: (min PC - 16, max PC + 64), per spec §4.7.
type Range struct {
	Lo, Hi uint64
}

// Options configures the adapter.
type Options struct {
	// Tool is the disassembler executable name; defaults to "objdump"
	// (spec §6).
	Tool string
	// Logger receives non-fatal diagnostics; defaults to a no-op logger.
	Logger *zap.Logger
	// CacheSize bounds the LRU memoization cache; 0 uses DefaultCacheSize.
	CacheSize int
}

// DefaultCacheSize is the LRU capacity used when Options.CacheSize is 0.
const DefaultCacheSize = 256

// Runner abstracts process invocation so tests can inject a fake that
// returns canned output without shelling out (spec §9: "the disassembler
// boundary is a trait-like capability in the engine, allowing tests to
// inject a fake").
type Runner interface {
	Run(tool, objFile string, lo, hi uint64) (stdout []byte, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(tool, objFile string, lo, hi uint64) ([]byte, []byte, error) {
	args := []string{
		"-d", "--no-show-raw-insn", "-C",
		fmt.Sprintf("--start-address=0x%x", lo),
		fmt.Sprintf("--stop-address=0x%x", hi),
		objFile,
	}
	cmd := exec.Command(tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type cacheKey struct {
	objFile string
	lo, hi  uint64
}

// Adapter is the memoized, single-flighted disassembler boundary.
type Adapter struct {
	tool   string
	log    *zap.Logger
	runner Runner
	group  singleflight.Group
	cache  *lru.Cache[cacheKey, []Instruction]
}

// New builds an Adapter. runner may be nil to use a real subprocess.
func New(opts Options, runner Runner) *Adapter {
	tool := opts.Tool
	if tool == "" {
		tool = "objdump"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	if runner == nil {
		runner = execRunner{}
	}
	cache, _ := lru.New[cacheKey, []Instruction](size)
	return &Adapter{tool: tool, log: log, runner: runner, cache: cache}
}

// Disassemble invokes the configured tool over [r.Lo, r.Hi] against
// objFile, memoizing by (objFile, range) and single-flighting concurrent
// calls to the same key (spec §5).
func (a *Adapter) Disassemble(objFile string, r Range) ([]Instruction, error) {
	key := cacheKey{objFile: objFile, lo: r.Lo, hi: r.Hi}
	if v, ok := a.cache.Get(key); ok {
		return v, nil
	}

	flightKey := fmt.Sprintf("%s:%x:%x", objFile, r.Lo, r.Hi)
	v, err, _ := a.group.Do(flightKey, func() (interface{}, error) {
		insts, derr := a.disassembleUncached(objFile, r)
		if derr != nil {
			return nil, derr
		}
		a.cache.Add(key, insts)
		return insts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Instruction), nil
}

func (a *Adapter) disassembleUncached(objFile string, r Range) ([]Instruction, error) {
	f, err := os.Open(objFile)
	if err != nil {
		a.log.Warn("cannot open object file", zap.String("file", objFile), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, objFile)
	}
	f.Close()

	stdout, stderr, err := a.runner.Run(a.tool, objFile, r.Lo, r.Hi)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrToolMissing
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, ErrToolMissing
		}
		a.log.Warn("disassembler invocation failed", zap.String("file", objFile), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	stderrText := string(stderr)
	if strings.Contains(stderrText, "File format not recognized") {
		return nil, ErrInvalidObjectFile
	}

	return parseInstructions(stdout), nil
}

// parseInstructions scans disassembler stdout for lines matching
// "^[ ]*([0-9a-fA-F]+):[ \t]+(.+)$", lowercasing the PC. Spurious entries outside the
// requested range are retained, and empty stdout yields an empty (not
// nil-error) instruction list.
func parseInstructions(stdout []byte) []Instruction {
	var out []Instruction
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		m := instrLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		out = append(out, Instruction{
			PC:   "0x" + strings.ToLower(m[1]),
			Text: strings.TrimSpace(m[2]),
		})
	}
	return out
}

// JoinProfile attaches per-PC profile events and Executed to each
// instruction by looking up fn's PcRecord map; instructions whose PC is
// not in the function's PcRecord are left unjoined (spec §4.7: "tolerates
// PCs not in the function's PcRecord").
func JoinProfile(insts []Instruction, fn *profformat.FunctionRecord) []Instruction {
	out := make([]Instruction, len(insts))
	for i, ins := range insts {
		out[i] = ins
		if fn == nil {
			continue
		}
		pr, ok := fn.PCs[ins.PC]
		if !ok {
			continue
		}
		out[i].Counts = pr.Counts
		out[i].Executed = pr.Executed
		out[i].HasProfile = true
	}
	return out
}

// RangeForFunction computes the caller-chosen disassembly range:
// (min PC - 16, max PC + 64) across fn's PcRecord keys, interpreting PCs
// as unsigned hex (spec §4.7).
func RangeForFunction(fn *profformat.FunctionRecord) (Range, bool) {
	if fn == nil || len(fn.PCs) == 0 {
		return Range{}, false
	}
	var min, max uint64
	first := true
	for pc := range fn.PCs {
		v, ok := parseHexAddr(pc)
		if !ok {
			continue
		}
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
	}
	if first {
		return Range{}, false
	}
	lo := uint64(0)
	if min > 16 {
		lo = min - 16
	}
	return Range{Lo: lo, Hi: max + 64}, true
}

func parseHexAddr(s string) (uint64, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	var v uint64
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		d, ok := hexDigit(c)
		if !ok {
			return 0, false
		}
		v = v*16 + uint64(d)
	}
	return v, true
}

func hexDigit(c rune) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
