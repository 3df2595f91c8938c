// Package app assembles the application: configuration, storage,
// Genkit, the ingestion pipeline and the retrieval orchestrator.
//
// Setup builds the container; Close releases resources in reverse
// order. Entry points (HTTP server, CLI commands, MCP) consume the
// wired services and never construct components themselves.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newshound/newshound/internal/catalog"
	"github.com/newshound/newshound/internal/config"
	"github.com/newshound/newshound/internal/index"
	"github.com/newshound/newshound/internal/ingest"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/rag"
	"github.com/newshound/newshound/internal/telegram"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Telegram *telegram.Client
	Catalog  *catalog.Store
	Index    *index.Store
	Ingest   *ingest.Service
	RAG      *rag.Service
	Stats    *StatsService

	otelCleanup func()
}

// Close releases resources. Safe to call on a partially built App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
