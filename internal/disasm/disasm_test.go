package disasm_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/disasm"
	"github.com/bivex/cgprof/internal/profformat"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  int
}

func (f *fakeRunner) Run(tool, objFile string, lo, hi uint64) ([]byte, []byte, error) {
	f.calls++
	return f.stdout, f.stderr, f.err
}

func writeTempObjFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.out")
	require.NoError(t, os.WriteFile(path, []byte("fake elf"), 0o644))
	return path
}

func TestDisassembleParsesInstructionLines(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(
		"   1000:\tmov eax, ebx\n" +
			"   1004:\tret\n" +
			"garbage line without colon\n",
	)}
	adapter := disasm.New(disasm.Options{}, runner)
	objFile := writeTempObjFile(t)

	insts, err := adapter.Disassemble(objFile, disasm.Range{Lo: 0x1000, Hi: 0x1010})
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "0x1000", insts[0].PC)
	assert.Equal(t, "mov eax, ebx", insts[0].Text)
	assert.Equal(t, "0x1004", insts[1].PC)
}

func TestDisassembleMemoizesByObjectFileAndRange(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("   1000:\tnop\n")}
	adapter := disasm.New(disasm.Options{}, runner)
	objFile := writeTempObjFile(t)

	_, err := adapter.Disassemble(objFile, disasm.Range{Lo: 0x1000, Hi: 0x1010})
	require.NoError(t, err)
	_, err = adapter.Disassemble(objFile, disasm.Range{Lo: 0x1000, Hi: 0x1010})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls)
}

func TestDisassembleUnreadableObjectFile(t *testing.T) {
	runner := &fakeRunner{}
	adapter := disasm.New(disasm.Options{}, runner)

	_, err := adapter.Disassemble(filepath.Join(t.TempDir(), "missing.out"), disasm.Range{Lo: 0, Hi: 1})
	assert.ErrorIs(t, err, disasm.ErrPermissionDenied)
}

func TestDisassembleToolMissing(t *testing.T) {
	runner := &fakeRunner{err: exec.ErrNotFound}
	adapter := disasm.New(disasm.Options{}, runner)
	objFile := writeTempObjFile(t)

	_, err := adapter.Disassemble(objFile, disasm.Range{Lo: 0x1000, Hi: 0x1010})
	assert.ErrorIs(t, err, disasm.ErrToolMissing)
}

func TestDisassembleInvalidObjectFile(t *testing.T) {
	runner := &fakeRunner{stderr: []byte("objdump: a.out: File format not recognized")}
	adapter := disasm.New(disasm.Options{}, runner)
	objFile := writeTempObjFile(t)

	_, err := adapter.Disassemble(objFile, disasm.Range{Lo: 0x1000, Hi: 0x1010})
	assert.ErrorIs(t, err, disasm.ErrInvalidObjectFile)
}

func TestDisassembleGenericRunnerErrorIsIo(t *testing.T) {
	runner := &fakeRunner{err: errors.New("signal: killed")}
	adapter := disasm.New(disasm.Options{}, runner)
	objFile := writeTempObjFile(t)

	_, err := adapter.Disassemble(objFile, disasm.Range{Lo: 0x1000, Hi: 0x1010})
	assert.ErrorIs(t, err, disasm.ErrIo)
}

func TestJoinProfileAttachesExecutedAndCounts(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	fr := profformat.NewProfile(vocab, profformat.KindCallgrind).FileRecordAt("a.c")
	fn := fr.FunctionNamed("f", vocab)
	fn.AddPC("0x1000", 10, profformat.Counts{5})

	insts := []disasm.Instruction{
		{PC: "0x1000", Text: "mov eax, ebx"},
		{PC: "0x1004", Text: "ret"},
	}
	joined := disasm.JoinProfile(insts, fn)

	assert.True(t, joined[0].HasProfile)
	assert.True(t, joined[0].Executed)
	assert.Equal(t, int64(5), joined[0].Counts.At(0))
	assert.False(t, joined[1].HasProfile)
}

func TestRangeForFunctionPadsAroundMinMax(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	fr := profformat.NewProfile(vocab, profformat.KindCallgrind).FileRecordAt("a.c")
	fn := fr.FunctionNamed("f", vocab)
	fn.AddPC("0x1000", 10, profformat.Counts{1})
	fn.AddPC("0x1010", 11, profformat.Counts{1})

	r, ok := disasm.RangeForFunction(fn)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000-16), r.Lo)
	assert.Equal(t, uint64(0x1010+64), r.Hi)
}

func TestRangeForFunctionNoData(t *testing.T) {
	_, ok := disasm.RangeForFunction(nil)
	assert.False(t, ok)
}
