package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jward/symcache"
)

const serverVersion = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the symbol cache over MCP on stdio",
	Long:  "Starts an MCP server on stdin/stdout. Clients read fragments and execution results and report edited files through invalidate_file; rebuilds are debounced.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return err
	}
	defer c.Close()
	return mcpserver.ServeStdio(newMCPServer(c))
}

// newMCPServer registers the symbol cache tools against c.
func newMCPServer(c *symcache.Coordinator) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("symcache", serverVersion, mcpserver.WithToolCapabilities(false))
	s.AddTool(getFragmentTool(), makeFragmentHandler(c))
	s.AddTool(getExecutionResultTool(), makeExecutionHandler(c))
	s.AddTool(listSymbolsTool(), makeListSymbolsHandler(c))
	s.AddTool(invalidateFileTool(), makeInvalidateHandler(c))
	return s
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func getFragmentTool() mcp.Tool {
	return mcp.NewTool("get_fragment",
		mcp.WithDescription("Get the source text of a public declaration by its C# documentation id (e.g. 'M:Acme.Demo.Run(System.Int32)')."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Documentation id of the declaration"),
		),
		mcp.WithBoolean("body_only",
			mcp.Description("Return only the statements inside the body, dedented (default false)"),
		),
	)
}

func getExecutionResultTool() mcp.Tool {
	return mcp.NewTool("get_execution_result",
		mcp.WithDescription("Compile the unit declaring a method if needed, run the method, and return one of its attachments."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Documentation id of the method"),
		),
		mcp.WithString("attachment",
			mcp.Description("Attachment name; empty for console output, 'return' for the return value"),
		),
	)
}

func listSymbolsTool() mcp.Tool {
	return mcp.NewTool("list_symbols",
		mcp.WithDescription("List indexed documentation ids with their kind and unit."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("prefix",
			mcp.Description("Only list ids starting with this prefix (e.g. 'M:Acme.')"),
		),
		mcp.WithBoolean("compiled",
			mcp.Description("Compile every unit and list only symbols whose unit compiled (default false)"),
		),
	)
}

func invalidateFileTool() mcp.Tool {
	return mcp.NewTool("invalidate_file",
		mcp.WithDescription("Report that a file changed. The cache rebuilds after a short quiet window; later reads wait for it."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the changed, added, or removed file"),
		),
	)
}

// --- Handler factories ---

func makeFragmentHandler(c *symcache.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("doc_id", "")
		if id == "" {
			return mcp.NewToolResultError("doc_id is required"), nil
		}
		text, err := c.Fragment(ctx, id, req.GetBool("body_only", false))
		if errors.Is(err, symcache.ErrNotFound) {
			return mcp.NewToolResultText(fmt.Sprintf("%s: not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fragment failed: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func makeExecutionHandler(c *symcache.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("doc_id", "")
		if id == "" {
			return mcp.NewToolResultError("doc_id is required"), nil
		}
		out, err := c.ExecutionResult(ctx, id, req.GetString("attachment", ""))
		var cerr *symcache.CompilationError
		if errors.As(err, &cerr) {
			var sb strings.Builder
			formatCompileFailureText(&sb, compileFailureToCLI(id, cerr))
			return mcp.NewToolResultError(sb.String()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func makeListSymbolsHandler(c *symcache.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix := req.GetString("prefix", "")

		var syms []symcache.Symbol
		if req.GetBool("compiled", false) {
			all, err := c.AllSymbols(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
			}
			// Index order, restricted to what compiled.
			ordered, err := c.Symbols(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
			}
			for _, s := range ordered {
				if r, ok := all[s.DocID]; ok {
					syms = append(syms, r)
				}
			}
		} else {
			var err error
			syms, err = c.Symbols(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
			}
		}

		var rows []CLISymbol
		for _, s := range syms {
			if strings.HasPrefix(s.DocID, prefix) {
				rows = append(rows, symbolToCLI(s))
			}
		}
		if len(rows) == 0 {
			return mcp.NewToolResultText("No symbols found."), nil
		}
		var sb strings.Builder
		formatSymbolsText(&sb, rows)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeInvalidateHandler(c *symcache.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		c.InvalidateFile(path)
		return mcp.NewToolResultText(fmt.Sprintf("invalidated %s", path)), nil
	}
}
