package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bivex/cgprof/internal/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := config.New()
	assert.Equal(t, "objdump", c.DisasmTool)
	assert.Equal(t, int64(0), c.MaxInputBytes)
}

func TestNewAppliesOptions(t *testing.T) {
	c := config.New(
		config.WithSourceSubdir("sub"),
		config.WithDisasmTool("llvm-objdump"),
		config.WithMaxInputBytes(1024),
		config.WithFunctionPadding(20),
	)
	assert.Equal(t, "sub", c.SourceSubdir)
	assert.Equal(t, "llvm-objdump", c.DisasmTool)
	assert.Equal(t, int64(1024), c.MaxInputBytes)
	assert.Equal(t, 20, c.FunctionPadding)
}
