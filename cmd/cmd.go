// Package cmd provides the newshound CLI commands.
//
// Commands:
//   - serve: HTTP API server
//   - channels: manage tracked Telegram channels
//   - refresh: re-index all active channels
//   - ask: one-shot question over the indexed posts
//   - digest: period digest of the indexed posts
//   - mcp: Model Context Protocol server on stdio
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/newshound/newshound/internal/log"
)

// Execute is the main entry point for the newshound CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "channels":
		return runChannels(logger)
	case "refresh":
		return runRefreshAll(logger)
	case "ask":
		return runAsk(logger)
	case "digest":
		return runDigest(logger)
	case "mcp":
		return runMCP(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("NewsHound - RAG over public Telegram news channels")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  newshound serve [addr]              Start the HTTP API server")
	fmt.Println("  newshound channels add <handle>     Track a channel and index its posts (--no-index, --limit)")
	fmt.Println("  newshound channels remove <handle>  Untrack a channel and drop its documents")
	fmt.Println("  newshound channels refresh <handle> Pull new posts for one channel")
	fmt.Println("  newshound channels pause <handle>   Suspend scheduled refreshes")
	fmt.Println("  newshound channels resume <handle>  Resume scheduled refreshes")
	fmt.Println("  newshound channels list             List tracked channels")
	fmt.Println("  newshound refresh                   Refresh all active channels")
	fmt.Println("  newshound ask <question>            Answer a question from indexed posts")
	fmt.Println("  newshound digest [flags]            Build a period digest")
	fmt.Println("  newshound mcp                       Start the MCP server (stdio)")
	fmt.Println("  newshound --version                 Show version information")
	fmt.Println("  newshound --help                    Show this help")
	fmt.Println()
	fmt.Println("Digest flags:")
	fmt.Println("  --from YYYY-MM-DD   Period start (default: yesterday)")
	fmt.Println("  --to YYYY-MM-DD     Period end, inclusive (default: today)")
	fmt.Println("  --channels a,b      Restrict to these handles")
	fmt.Println("  --topics N          Maximum digest topics (default: 5)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY      Required for the gemini provider")
	fmt.Println("  DATABASE_URL        Overrides the postgres_* settings")
	fmt.Println("  DEBUG               Enable debug logging")
}
