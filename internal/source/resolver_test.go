package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/cgprof/internal/source"
)

func TestResolveExactMatch(t *testing.T) {
	files := source.Files{"main.c": "int main() {}"}
	r := source.New(files, "")
	content, err := r.Resolve("main.c")
	require.NoError(t, err)
	assert.Equal(t, "int main() {}", content)
}

func TestResolveWithSubdirProbesSuffix(t *testing.T) {
	files := source.Files{
		"sub/main.c":     "sub version",
		"src/sub/main.c": "src sub version",
	}
	r := source.New(files, "sub")
	content, err := r.Resolve("/abs/proj/src/sub/main.c")
	require.NoError(t, err)
	assert.Equal(t, "sub version", content)
}

func TestResolveFallsBackToBasenameMatch(t *testing.T) {
	files := source.Files{"anywhere/deep/helper.c": "helper content"}
	r := source.New(files, "")
	content, err := r.Resolve("/other/path/helper.c")
	require.NoError(t, err)
	assert.Equal(t, "helper content", content)
}

func TestResolveNotFound(t *testing.T) {
	r := source.New(source.Files{}, "")
	_, err := r.Resolve("missing.c")
	assert.ErrorIs(t, err, source.ErrNotFound)
}
