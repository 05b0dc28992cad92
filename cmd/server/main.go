package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/bivex/cgprof/internal/callgraph"
	"github.com/bivex/cgprof/internal/config"
	"github.com/bivex/cgprof/internal/engine"
	"github.com/bivex/cgprof/internal/source"
)

// engineCache holds one loaded Engine per profile path, mirroring the
// teacher's profileCache but guarded for concurrent MCP tool invocations.
type engineCache struct {
	mu sync.RWMutex
	m  map[string]*engine.Engine
}

func newEngineCache() *engineCache {
	return &engineCache{m: make(map[string]*engine.Engine)}
}

func (c *engineCache) get(path string) (*engine.Engine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[path]
	return e, ok
}

func (c *engineCache) put(path string, e *engine.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[path] = e
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	cache := newEngineCache()

	s := server.NewMCPServer(
		"cgprof",
		"1.0.0",
		server.WithLogging(),
	)

	registerLoadProfile(s, cache, logger)
	registerResolveEntry(s, cache)
	registerSearchFunctions(s, cache)
	registerGetCallers(s, cache)
	registerGetCallees(s, cache)
	registerGetSubtree(s, cache)
	registerDisassembleFunction(s, cache)
	registerGetFileCoverage(s, cache)
	registerGetStatistics(s, cache)
	registerFindHotspots(s, cache)

	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func registerLoadProfile(s *server.MCPServer, cache *engineCache, logger *zap.Logger) {
	tool := mcp.NewTool("load_profile",
		mcp.WithDescription("Load a Cachegrind/Callgrind profile file for analysis"),
		mcp.WithString("profile_path",
			mcp.Required(),
			mcp.Description("Absolute path to the callgrind/cachegrind output file"),
		),
		mcp.WithString("source_dir",
			mcp.Description("Optional directory of source files to resolve profile paths against"),
		),
		mcp.WithString("source_subdir",
			mcp.Description("Optional subdirectory prefix used by the source resolver"),
		),
		mcp.WithString("disasm_tool",
			mcp.Description("Disassembler executable name (default: objdump)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read profile: %v", err)), nil
		}

		var srcFiles source.Files
		if dir := request.GetString("source_dir", ""); dir != "" {
			srcFiles, err = source.LoadDir(dir)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to load source_dir: %v", err)), nil
			}
		}

		cfg := config.New(
			config.WithSourceSubdir(request.GetString("source_subdir", "")),
			config.WithDisasmTool(request.GetString("disasm_tool", "")),
		)

		e := engine.New(cfg, logger, nil)
		if err := e.Load(data, srcFiles); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}
		cache.put(path, e)

		totals := e.ProjectTotals()
		result := fmt.Sprintf(`Profile loaded successfully!

File: %s
Kind: %s
Command: %s
Files analyzed: %d
Total compiled lines: %d
Total covered lines: %d
Coverage: %.2f%%

Use other tools to analyze this profile.
`,
			path,
			e.Profile().Kind,
			e.Profile().Command,
			totals.FilesAnalyzed,
			totals.TotalCompiledLines,
			totals.TotalCoveredLines,
			totals.Coverage,
		)
		return mcp.NewToolResultText(result), nil
	})
}

func loadedEngine(cache *engineCache, path string) (*engine.Engine, error) {
	e, ok := cache.get(path)
	if !ok {
		return nil, fmt.Errorf("profile not loaded, use load_profile first")
	}
	return e, nil
}

func registerResolveEntry(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("resolve_entry",
		mcp.WithDescription("Resolve an entry-point string (function name or PC address) to a call-graph node"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Function name or 0x-prefixed PC address")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		e, err := loadedEngine(cache, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		node, rerr := e.ResolveEntry(query)
		if rerr != nil {
			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("No match for %q.\n", query))
			for _, sugg := range e.SuggestEntry(query, 10) {
				sb.WriteString(fmt.Sprintf("  suggestion: %s\n", sugg.Name))
			}
			return mcp.NewToolResultText(sb.String()), nil
		}

		return mcp.NewToolResultText(formatNode(node)), nil
	})
}

func registerSearchFunctions(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("search_functions",
		mcp.WithDescription("Search call-graph nodes by substring/prefix/word match on function name"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		e, err := loadedEngine(cache, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		matches := e.Search(query)
		if len(matches) == 0 {
			return mcp.NewToolResultText("No matches.\n"), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%d match(es):\n\n", len(matches)))
		for _, n := range matches {
			sb.WriteString(formatNode(n))
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	})
}

func registerGetCallers(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("get_callers",
		mcp.WithDescription("List the call-graph nodes that call into the given function"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithString("file", mcp.Required(), mcp.Description("Owning file path as it appears in the profile")),
		mcp.WithString("function", mcp.Required(), mcp.Description("Function name")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		e, id, err := requireEngineAndNode(cache, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatNodeList("Callers", e.Callers(id))), nil
	})
}

func registerGetCallees(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("get_callees",
		mcp.WithDescription("List the distinct call-graph nodes the given function calls"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithString("file", mcp.Required(), mcp.Description("Owning file path as it appears in the profile")),
		mcp.WithString("function", mcp.Required(), mcp.Description("Function name")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		e, id, err := requireEngineAndNode(cache, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatNodeList("Callees", e.Callees(id))), nil
	})
}

func registerGetSubtree(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("get_subtree",
		mcp.WithDescription("Materialize the finite call-tree rooted at the given function, bounded by a visited set on recursion"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithString("file", mcp.Required(), mcp.Description("Owning file path as it appears in the profile")),
		mcp.WithString("function", mcp.Required(), mcp.Description("Function name")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		e, id, err := requireEngineAndNode(cache, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tree := e.SubtreeFrom(id)
		if tree == nil {
			return mcp.NewToolResultText("No such node.\n"), nil
		}
		var sb strings.Builder
		renderTree(&sb, tree, 0)
		return mcp.NewToolResultText(sb.String()), nil
	})
}

func registerDisassembleFunction(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("disassemble_function",
		mcp.WithDescription("Disassemble a function's PC range and join it against profile events"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithString("file", mcp.Required(), mcp.Description("Owning file path as it appears in the profile")),
		mcp.WithString("function", mcp.Required(), mcp.Description("Function name")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		file, err := request.RequireString("file")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fnName, err := request.RequireString("function")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		e, err := loadedEngine(cache, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		fn := e.Function(file, fnName)
		if fn == nil {
			return mcp.NewToolResultError("no such function"), nil
		}

		insts, derr := e.Disassemble(fn)
		if derr != nil {
			return mcp.NewToolResultError(derr.Error()), nil
		}
		if len(insts) == 0 {
			return mcp.NewToolResultText("No instructions decoded.\n"), nil
		}

		var sb strings.Builder
		for _, ins := range insts {
			if ins.HasProfile {
				sb.WriteString(fmt.Sprintf("%s  %s    [executed=%v]\n", ins.PC, ins.Text, ins.Executed))
			} else {
				sb.WriteString(fmt.Sprintf("%s  %s\n", ins.PC, ins.Text))
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	})
}

func registerGetFileCoverage(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("get_file_coverage",
		mcp.WithDescription("Report per-file and project-wide line coverage for the loaded profile"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		e, err := loadedEngine(cache, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sb strings.Builder
		for _, fc := range e.FileCoverage() {
			sb.WriteString(fmt.Sprintf("%s: %d/%d lines covered (%.2f%%)\n", fc.Path, fc.Covered, fc.CompiledLines, fc.Percent))
		}
		totals := e.ProjectTotals()
		sb.WriteString(fmt.Sprintf("\nOverall: %d/%d lines covered (%.2f%%) across %d files\n",
			totals.TotalCoveredLines, totals.TotalCompiledLines, totals.Coverage, totals.FilesAnalyzed))
		return mcp.NewToolResultText(sb.String()), nil
	})
}

func registerGetStatistics(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("get_statistics",
		mcp.WithDescription("Get comprehensive statistics about the loaded profile"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		e, err := loadedEngine(cache, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		stats := e.Statistics()
		result := fmt.Sprintf(`PROFILE STATISTICS

Files analyzed: %d
Total compiled lines: %d
Total covered lines: %d
Coverage: %.2f%%
Functions: %d
Max line hit count: %d
Min line hit count: %d
`,
			stats.FilesAnalyzed, stats.TotalCompiledLines, stats.TotalCoveredLines,
			stats.Coverage, stats.FunctionCount, stats.MaxLineHits, stats.MinLineHits)
		return mcp.NewToolResultText(result), nil
	})
}

func registerFindHotspots(s *server.MCPServer, cache *engineCache) {
	tool := mcp.NewTool("find_hotspots",
		mcp.WithDescription("Find the top functions by inclusive cost over the call graph"),
		mcp.WithString("profile_path", mcp.Required(), mcp.Description("Path to the loaded profile file")),
		mcp.WithNumber("top_n", mcp.Description("Number of top hotspots to return (default: 10)")),
	)

	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("profile_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		e, err := loadedEngine(cache, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		topN := int(request.GetFloat("top_n", 10.0))
		return mcp.NewToolResultText(e.FormatHotspots(topN)), nil
	})
}

func requireEngineAndNode(cache *engineCache, request mcp.CallToolRequest) (*engine.Engine, callgraph.NodeID, error) {
	path, err := request.RequireString("profile_path")
	if err != nil {
		return nil, callgraph.NodeID{}, err
	}
	file, err := request.RequireString("file")
	if err != nil {
		return nil, callgraph.NodeID{}, err
	}
	fnName, err := request.RequireString("function")
	if err != nil {
		return nil, callgraph.NodeID{}, err
	}

	e, err := loadedEngine(cache, path)
	if err != nil {
		return nil, callgraph.NodeID{}, err
	}
	return e, callgraph.NodeID{File: file, Name: fnName}, nil
}

func formatNode(n *callgraph.Node) string {
	if n == nil {
		return "no such node\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s:%s\n", n.ID.File, n.ID.Name))
	if n.PCStart != "" {
		sb.WriteString(fmt.Sprintf("  PC range: %s..%s\n", n.PCStart, n.PCEnd))
	}
	if n.Stub {
		sb.WriteString("  (stub: referenced but not defined in the profile)\n")
	}
	return sb.String()
}

func formatNodeList(label string, nodes []*callgraph.Node) string {
	if len(nodes) == 0 {
		return fmt.Sprintf("%s: none\n", label)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d):\n", label, len(nodes)))
	for _, n := range nodes {
		sb.WriteString("  " + formatNode(n))
	}
	return sb.String()
}

func renderTree(sb *strings.Builder, t *callgraph.Tree, depth int) {
	indent := strings.Repeat("  ", depth)
	if t.Repeat {
		sb.WriteString(fmt.Sprintf("%s%s (recursion)\n", indent, t.Node.ID.String()))
		return
	}
	sb.WriteString(fmt.Sprintf("%s%s\n", indent, t.Node.ID.String()))
	for _, child := range t.Children {
		renderTree(sb, child, depth+1)
	}
}
