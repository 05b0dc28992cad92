package profformat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/profformat"
)

func TestVocabularyIndexOf(t *testing.T) {
	v := profformat.NewVocabulary([]string{"Ir", "Dr", "Dw"})
	assert.Equal(t, 0, v.IndexOf("Ir"))
	assert.Equal(t, 2, v.IndexOf("Dw"))
	assert.Equal(t, -1, v.IndexOf("Cy"))
	assert.True(t, v.Has("Dr"))
	assert.False(t, v.Has("Cy"))
	assert.Equal(t, 3, v.Len())
}

func TestCountsAddGrowsOnWiderSource(t *testing.T) {
	c := profformat.Counts{1, 2}
	c = c.Add(profformat.Counts{1, 1, 5})
	require.Len(t, c, 3)
	assert.Equal(t, int64(2), c.At(0))
	assert.Equal(t, int64(3), c.At(1))
	assert.Equal(t, int64(5), c.At(2))
}

func TestCountsAtOutOfRangeIsZero(t *testing.T) {
	c := profformat.Counts{1, 2}
	assert.Equal(t, int64(0), c.At(5))
	assert.Equal(t, int64(0), c.At(-1))
}

func TestCountsAnyPositive(t *testing.T) {
	assert.False(t, profformat.Counts{0, 0}.AnyPositive())
	assert.True(t, profformat.Counts{0, 1}.AnyPositive())
}

func TestFunctionRecordAddLineTracksCoverage(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	fr := profformat.NewProfile(vocab, profformat.KindCachegrind).FileRecordAt("main.c")
	fn := fr.FunctionNamed("main", vocab)

	fn.AddLine(10, profformat.Counts{5})
	fn.AddLine(11, profformat.Counts{0})
	fn.AddLine(10, profformat.Counts{3})

	assert.ElementsMatch(t, []int{10}, fn.CoveredLines())
	assert.ElementsMatch(t, []int{11}, fn.UncoveredLines())
	assert.Equal(t, int64(8), fn.Exclusive.At(0))
}

func TestFunctionRecordAddPC(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	fr := profformat.NewProfile(vocab, profformat.KindCallgrind).FileRecordAt("main.c")
	fn := fr.FunctionNamed("main", vocab)

	fn.AddPC("0x1000", 10, profformat.Counts{4})
	fn.AddPC("0x1000", 10, profformat.Counts{1})

	pr, ok := fn.PCs["0x1000"]
	require.True(t, ok)
	assert.Equal(t, int64(5), pr.Counts.At(0))
	assert.True(t, pr.Executed)
}

func TestFileRecordCoverageUnionsAcrossFunctions(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	fr := profformat.NewProfile(vocab, profformat.KindCachegrind).FileRecordAt("main.c")

	a := fr.FunctionNamed("a", vocab)
	a.AddLine(1, profformat.Counts{1})
	a.AddLine(2, profformat.Counts{0})

	b := fr.FunctionNamed("b", vocab)
	b.AddLine(2, profformat.Counts{1}) // line 2 covered via b even though uncovered via a

	covered, uncovered, compiled, pct := fr.Coverage()
	assert.Equal(t, 2, covered)
	assert.Equal(t, 0, uncovered)
	assert.Equal(t, 2, compiled)
	assert.Equal(t, 100.0, pct)
}

func TestProfileFilePathsPreservesFirstAppearanceOrder(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	p := profformat.NewProfile(vocab, profformat.KindCachegrind)
	p.FileRecordAt("b.c")
	p.FileRecordAt("a.c")
	p.FileRecordAt("b.c")

	assert.Equal(t, []string{"b.c", "a.c"}, p.FilePaths())
}

func TestProfileTotals(t *testing.T) {
	vocab := profformat.NewVocabulary([]string{"Ir"})
	p := profformat.NewProfile(vocab, profformat.KindCachegrind)
	fr := p.FileRecordAt("main.c")
	fn := fr.FunctionNamed("main", vocab)
	fn.AddLine(1, profformat.Counts{1})
	fn.AddLine(2, profformat.Counts{0})

	files, compiled, covered, pct := p.Totals()
	assert.Equal(t, 1, files)
	assert.Equal(t, 2, compiled)
	assert.Equal(t, 1, covered)
	assert.Equal(t, 50.0, pct)
}
