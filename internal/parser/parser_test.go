package parser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/parser"
	"github.com/bivex/cgprof/internal/profformat"
)

func TestParseCallgrindMinimal(t *testing.T) {
	input := `# callgrind format
events: Ir Cy
positions: instr line
fl=a.c
fn=f
0x1000 10 2 3
0x1004 10 4 5
summary: 6 8
`
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)

	assert.Equal(t, profformat.KindCallgrind, p.Kind)
	assert.Equal(t, []string{"Ir", "Cy"}, p.Vocabulary.Names())

	fn := p.Function("a.c", "f")
	require.NotNil(t, fn)
	assert.Equal(t, int64(6), fn.Exclusive.At(0))
	assert.Equal(t, int64(8), fn.Exclusive.At(1))

	lr, ok := fn.Lines[10]
	require.True(t, ok)
	assert.Equal(t, int64(6), lr.Counts.At(0))
	assert.Equal(t, int64(8), lr.Counts.At(1))
	assert.True(t, lr.Executed)

	_, ok = fn.PCs["0x1000"]
	assert.True(t, ok)
	_, ok = fn.PCs["0x1004"]
	assert.True(t, ok)

	assert.Equal(t, int64(6), p.Summary.At(0))
	assert.Equal(t, int64(8), p.Summary.At(1))
}

func TestParseCachegrindCoverage(t *testing.T) {
	input := `events: Ir
fl=x.c
fn=g
5 100
7 0
`
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)

	fn := p.Function("x.c", "g")
	require.NotNil(t, fn)
	assert.ElementsMatch(t, []int{5}, fn.CoveredLines())
	assert.ElementsMatch(t, []int{7}, fn.UncoveredLines())

	fr := p.Files["x.c"]
	covered, uncovered, compiled, pct := fr.Coverage()
	assert.Equal(t, 1, covered)
	assert.Equal(t, 1, uncovered)
	assert.Equal(t, 2, compiled)
	assert.Equal(t, 50.0, pct)
}

func TestParseCallEdgeAttachment(t *testing.T) {
	input := `# callgrind format
events: Ir
positions: instr line
fl=a.c
fn=f
cfi=b.c
cfn=h
calls=3 0x2000
0x2000 20 12
`
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)

	fn := p.Function("a.c", "f")
	require.NotNil(t, fn)
	require.Len(t, fn.Calls, 1)

	edge := fn.Calls[0]
	assert.Equal(t, "b.c", edge.TargetFile)
	assert.Equal(t, "h", edge.TargetFunc)
	assert.Equal(t, int64(3), edge.Calls)
	assert.Equal(t, "0x2000", edge.SourcePC)
	assert.Equal(t, int64(12), edge.Inclusive.At(0))

	lr, ok := fn.Lines[20]
	require.True(t, ok)
	assert.Equal(t, int64(12), lr.Counts.At(0))
}

func TestParseEmptyInputYieldsValidEmptyProfile(t *testing.T) {
	p, err := parser.Parse(strings.NewReader(""), parser.Options{})
	require.NoError(t, err)
	assert.Empty(t, p.Files)
}

func TestParseNoVocabularyOnDataRow(t *testing.T) {
	input := `fn=f
10 1
`
	_, err := parser.Parse(strings.NewReader(input), parser.Options{})
	assert.ErrorIs(t, err, parser.ErrNoVocabulary)
}

func TestParseInputTooLarge(t *testing.T) {
	input := "events: Ir\nfn=f\n10 1\n"
	_, err := parser.Parse(strings.NewReader(input), parser.Options{MaxInputBytes: 4})
	assert.ErrorIs(t, err, parser.ErrInputTooLarge)
}

func TestParseMalformedDataRowIsSkippedNotFatal(t *testing.T) {
	input := `events: Ir
fl=a.c
fn=f
notaline 1
10 1
`
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)
	fn := p.Function("a.c", "f")
	require.NotNil(t, fn)
	assert.Equal(t, int64(1), fn.Exclusive.At(0))
}
