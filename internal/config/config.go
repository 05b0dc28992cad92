// Package config carries the plain caller-supplied values spec §6 lists as
// CLI/env-free core configuration: source subdirectory prefix,
// disassembler executable name, input size cap, and function-name padding
// for formatting. There is no env/flag binding at this
// layer — see DESIGN.md for why this one ambient concern stays on the
// standard library instead of a third-party config loader.
package config

// Config holds the engine's caller-supplied options.
type Config struct {
	// SourceSubdir is the optional subdirectory prefix the Source Resolver
	// probes under (spec §4.2).
	SourceSubdir string
	// DisasmTool is the disassembler executable name (spec §6); defaults
	// to "objdump" when empty.
	DisasmTool string
	// MaxInputBytes bounds the parser's input size (spec §7); 0 uses the
	// parser package's default.
	MaxInputBytes int64
	// FunctionPadding is a minimum column width for formatted function
	// names. It is only stored here; the CLI and MCP formatters do not
	// read it.
	FunctionPadding int
}

// Option mutates a Config being built.
type Option func(*Config)

// WithSourceSubdir sets the source resolver's subdirectory prefix.
func WithSourceSubdir(dir string) Option {
	return func(c *Config) { c.SourceSubdir = dir }
}

// WithDisasmTool sets the disassembler executable name.
func WithDisasmTool(tool string) Option {
	return func(c *Config) { c.DisasmTool = tool }
}

// WithMaxInputBytes sets the parser's input size cap.
func WithMaxInputBytes(n int64) Option {
	return func(c *Config) { c.MaxInputBytes = n }
}

// WithFunctionPadding sets the minimum column width for formatted output.
func WithFunctionPadding(n int) Option {
	return func(c *Config) { c.FunctionPadding = n }
}

// New builds a Config from defaults plus any options.
func New(opts ...Option) Config {
	c := Config{DisasmTool: "objdump", FunctionPadding: 0}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
