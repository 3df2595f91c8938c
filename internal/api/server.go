// Package api exposes the pipeline over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/newshound/newshound/internal/ingest"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// Server timeouts follow hardened defaults for a public-facing JSON
// API; writes get extra room because generation can be slow.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 120 * time.Second

	// ShutdownTimeout bounds graceful drain on SIGTERM.
	ShutdownTimeout = 10 * time.Second
)

// Ingest manages the channel lifecycle. Implemented by internal/ingest.
type Ingest interface {
	AddChannel(ctx context.Context, handle string, indexPosts bool, postsLimit int) (news.Channel, error)
	RemoveChannel(ctx context.Context, handle string) error
	RefreshChannel(ctx context.Context, handle string) (ingest.RefreshResult, error)
	RefreshAll(ctx context.Context) ([]ingest.RefreshResult, error)
	Channels(ctx context.Context) ([]news.Channel, error)
	Channel(ctx context.Context, handle string) (news.Channel, error)
	Pause(ctx context.Context, handle string) error
	Resume(ctx context.Context, handle string) error
}

// RAG answers questions and writes digests. Implemented by internal/rag.
type RAG interface {
	Complete(ctx context.Context, req news.CompletionRequest) (news.CompletionResponse, error)
	Summarize(ctx context.Context, req news.SummaryRequest) (news.SummaryResponse, error)
}

// SearchIndex serves raw similarity search and stats.
// Implemented by internal/index.
type SearchIndex interface {
	Search(ctx context.Context, query string, k int, channel string) ([]news.SearchResult, error)
}

// Pinger reports storage liveness for the readiness probe.
// Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stats aggregates index counters for the stats endpoint.
type Stats interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// Config wires the server's dependencies.
type Config struct {
	Logger log.Logger
	Ingest Ingest
	RAG    RAG
	Index  SearchIndex
	Stats  Stats
	DB     Pinger // optional, nil degrades /ready to a static check
}

// Server is the JSON API server.
type Server struct {
	mux *http.ServeMux
}

// NewServer builds the route table and middleware stack.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Ingest == nil || cfg.RAG == nil || cfg.Index == nil {
		return nil, errors.New("ingest, rag and index services are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &channelHandler{ingest: cfg.Ingest, logger: logger}
	qh := &queryHandler{rag: cfg.RAG, index: cfg.Index, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/channels", ch.list)
	mux.HandleFunc("POST /api/v1/channels", ch.add)
	mux.HandleFunc("GET /api/v1/channels/{handle}", ch.get)
	mux.HandleFunc("DELETE /api/v1/channels/{handle}", ch.remove)
	mux.HandleFunc("POST /api/v1/channels/{handle}/refresh", ch.refresh)
	mux.HandleFunc("POST /api/v1/channels/{handle}/pause", ch.pause)
	mux.HandleFunc("POST /api/v1/channels/{handle}/resume", ch.resume)
	mux.HandleFunc("POST /api/v1/refresh", ch.refreshAll)

	mux.HandleFunc("POST /api/v1/completion", qh.complete)
	mux.HandleFunc("POST /api/v1/summary", qh.summarize)
	mux.HandleFunc("GET /api/v1/search", qh.search)

	if cfg.Stats != nil {
		sh := &statsHandler{stats: cfg.Stats, logger: logger}
		mux.HandleFunc("GET /api/v1/stats", sh.get)
	}

	// Middleware stack, outermost first:
	// Recovery -> RequestID -> Logging -> Routes.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.DB, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// NewHTTPServer wraps the handler in an http.Server with hardened
// timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
