// Package toolserver exposes the agent's tools over the Model Context Protocol.
package toolserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/tool"
)

// New builds an MCP server with every tool of the registry.
func New(name, version string, reg *tool.Registry) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, def := range reg.Definitions() {
		schema, err := json.Marshal(def.Input)
		if err != nil {
			return nil, goerr.Wrap(err, "marshal tool schema", goerr.V("tool", def.Name))
		}
		s.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), handler(reg, def.Name))
	}
	return s, nil
}

func handler(reg *tool.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments"), nil
		}

		out, err := reg.Invoke(ctx, name, args)
		if err != nil {
			logging.FromCtx(ctx).Warn().Err(err).Str("tool", name).Msg("mcp tool call failed")
			res := mcp.NewToolResultText(string(out))
			res.IsError = true
			return res, nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// ServeStdio serves s over the given streams until ctx ends or input closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return goerr.Wrap(err, "serve mcp stdio")
	}
	return nil
}
