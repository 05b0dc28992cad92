package aggregate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/aggregate"
	"github.com/bivex/cgprof/internal/parser"
)

const sampleProfile = `events: Ir
fl=x.c
fn=g
5 100
7 0
summary: 100
`

func TestFilesCoverage(t *testing.T) {
	p, err := parser.Parse(strings.NewReader(sampleProfile), parser.Options{})
	require.NoError(t, err)

	files := aggregate.Files(p)
	require.Len(t, files, 1)
	assert.Equal(t, "x.c", files[0].Path)
	assert.Equal(t, 1, files[0].Covered)
	assert.Equal(t, 1, files[0].Uncovered)
	assert.Equal(t, 50.0, files[0].Percent)
}

func TestProjectTotals(t *testing.T) {
	p, err := parser.Parse(strings.NewReader(sampleProfile), parser.Options{})
	require.NoError(t, err)

	totals := aggregate.Project(p)
	assert.Equal(t, 1, totals.FilesAnalyzed)
	assert.Equal(t, 2, totals.TotalCompiledLines)
	assert.Equal(t, 1, totals.TotalCoveredLines)
}

func TestCheckSummaryAgrees(t *testing.T) {
	p, err := parser.Parse(strings.NewReader(sampleProfile), parser.Options{})
	require.NoError(t, err)

	assert.Empty(t, aggregate.CheckSummary(p))
}

func TestCheckSummaryDisagrees(t *testing.T) {
	bad := `events: Ir
fl=x.c
fn=g
5 100
summary: 999
`
	p, err := parser.Parse(strings.NewReader(bad), parser.Options{})
	require.NoError(t, err)

	mismatches := aggregate.CheckSummary(p)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "Ir", mismatches[0].Event)
	assert.Equal(t, int64(999), mismatches[0].Declared)
	assert.Equal(t, int64(100), mismatches[0].Computed)
}

func TestCheckSummaryAbsentSummaryYieldsNoMismatches(t *testing.T) {
	noSummary := `events: Ir
fl=x.c
fn=g
5 100
`
	p, err := parser.Parse(strings.NewReader(noSummary), parser.Options{})
	require.NoError(t, err)
	assert.Empty(t, aggregate.CheckSummary(p))
}
