package entrypoint_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/callgraph"
	"github.com/bivex/cgprof/internal/entrypoint"
	"github.com/bivex/cgprof/internal/parser"
)

const pcRangeProfile = `# callgrind format
events: Ir
positions: instr line
fl=a.c
fn=f
0x1000 10 1
0x1010 11 1
fn=g
0x2000 20 1
0x2040 21 1
`

func buildMatcher(t *testing.T, input string) *entrypoint.Matcher {
	t.Helper()
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)
	g := callgraph.Build(p)
	return entrypoint.Build(g)
}

func TestResolveEntryByPCRange(t *testing.T) {
	m := buildMatcher(t, pcRangeProfile)

	n, err := m.Resolve("0x1008")
	require.NoError(t, err)
	assert.Equal(t, "f", n.ID.Name)

	_, err = m.Resolve("0x2041")
	assert.ErrorIs(t, err, entrypoint.ErrNotFound)
}

func TestResolveEntryByExactName(t *testing.T) {
	m := buildMatcher(t, pcRangeProfile)
	n, err := m.Resolve("g")
	require.NoError(t, err)
	assert.Equal(t, "g", n.ID.Name)
}

func TestResolveEntryByPCStartExact(t *testing.T) {
	m := buildMatcher(t, pcRangeProfile)
	n, err := m.Resolve("0x2000")
	require.NoError(t, err)
	assert.Equal(t, "g", n.ID.Name)
}

func TestSuggestContainsMatches(t *testing.T) {
	m := buildMatcher(t, pcRangeProfile)
	suggestions := m.Suggest("f", 10)
	require.NotEmpty(t, suggestions)
	var names []string
	for _, s := range suggestions {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "f")
}
