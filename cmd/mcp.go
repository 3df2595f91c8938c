package cmd

import (
	"context"
	"fmt"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/newshound/newshound/internal/app"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/mcp"
)

// runMCP starts the MCP server on stdio transport. Logging goes to
// stderr, stdout carries the protocol.
func runMCP(logger log.Logger) error {
	return withApp(logger, func(ctx context.Context, a *app.App) error {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Name:    "newshound",
			Version: Version,
			RAG:     a.RAG,
			Index:   a.Index,
			Catalog: a.Ingest,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}

		logger.Info("MCP server ready", "name", "newshound", "version", Version, "transport", "stdio")

		if err := mcpServer.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}

		logger.Info("MCP server shut down gracefully")
		return nil
	})
}
