// Package mcp exposes the pipeline as Model Context Protocol tools so
// agent hosts can ask questions, request digests and search posts.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// RAG answers questions and writes digests.
type RAG interface {
	Complete(ctx context.Context, req news.CompletionRequest) (news.CompletionResponse, error)
	Summarize(ctx context.Context, req news.SummaryRequest) (news.SummaryResponse, error)
}

// SearchIndex serves raw similarity search.
type SearchIndex interface {
	Search(ctx context.Context, query string, k int, channel string) ([]news.SearchResult, error)
}

// Catalog lists tracked channels.
type Catalog interface {
	Channels(ctx context.Context) ([]news.Channel, error)
}

// Config wires the MCP server's dependencies.
type Config struct {
	Name    string
	Version string
	RAG     RAG
	Index   SearchIndex
	Catalog Catalog
	Logger  log.Logger
}

// Server wraps the MCP SDK server.
type Server struct {
	mcpServer *mcp.Server
	rag       RAG
	index     SearchIndex
	catalog   Catalog
	logger    log.Logger
}

// NewServer creates the server and registers all tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" || cfg.Version == "" {
		return nil, fmt.Errorf("server name and version are required")
	}
	if cfg.RAG == nil || cfg.Index == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("rag, index and catalog services are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		rag:     cfg.RAG,
		index:   cfg.Index,
		catalog: cfg.Catalog,
		logger:  logger,
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the transport. Blocking; returns when the client
// disconnects or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	return s.mcpServer.Run(ctx, transport)
}
