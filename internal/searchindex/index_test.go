package searchindex_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/callgraph"
	"github.com/bivex/cgprof/internal/parser"
	"github.com/bivex/cgprof/internal/searchindex"
)

const namedFunctionsProfile = `events: Ir
fl=a.c
fn=handle_timer_interrupt
1 1
fn=handle_io_complete
1 1
fn=update_system_timers
1 1
`

func buildIndex(t *testing.T, input string) *searchindex.Index {
	t.Helper()
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)
	g := callgraph.Build(p)
	return searchindex.Build(g)
}

func names(nodes []*callgraph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID.Name)
	}
	return out
}

func TestQueryPrefixMatch(t *testing.T) {
	idx := buildIndex(t, namedFunctionsProfile)
	got := names(idx.Query("handle"))
	assert.ElementsMatch(t, []string{"handle_timer_interrupt", "handle_io_complete"}, got)
}

func TestQuerySubstringMatch(t *testing.T) {
	idx := buildIndex(t, namedFunctionsProfile)
	got := names(idx.Query("timer"))
	assert.ElementsMatch(t, []string{"handle_timer_interrupt", "update_system_timers"}, got)
}

func TestQueryEmptyReturnsEmpty(t *testing.T) {
	idx := buildIndex(t, namedFunctionsProfile)
	assert.Empty(t, idx.Query(""))
}

func TestExpandAncestors(t *testing.T) {
	input := `# callgrind format
events: Ir
positions: instr line
fl=a.c
fn=root
cfi=a.c
cfn=leaf
calls=1 0x1000
0x1000 10 1
`
	p, err := parser.Parse(strings.NewReader(input), parser.Options{})
	require.NoError(t, err)
	g := callgraph.Build(p)
	idx := searchindex.Build(g)

	leaf := g.Node(callgraph.NodeID{File: "a.c", Name: "leaf"})
	require.NotNil(t, leaf)

	ancestors := idx.ExpandAncestors([]*callgraph.Node{leaf})
	require.Len(t, ancestors, 1)
	assert.Equal(t, "root", ancestors[0].Name)
}
