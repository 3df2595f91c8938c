// Package index stores post documents with their embeddings and serves
// vector similarity search over them.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// Vector search queries carry their own timeout so a slow index scan
// cannot block a request indefinitely.
const searchTimeout = 10 * time.Second

// Embedder turns text into vectors. Implemented by internal/llm.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the vector index over ingested posts. Safe for concurrent use.
type Store struct {
	db       DB
	embedder Embedder
	logger   log.Logger
}

// Info summarizes the index contents.
type Info struct {
	Documents int64 `json:"documents"`
	Channels  int64 `json:"channels"`
}

// New creates a Store.
func New(db DB, embedder Embedder, logger log.Logger) *Store {
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Upsert embeds and writes documents. Documents that already carry an
// embedding are written as-is; the rest are embedded in one batch call.
func (s *Store) Upsert(ctx context.Context, docs []news.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var (
		toEmbed   []string
		embedIdxs []int
	)
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			toEmbed = append(toEmbed, doc.Content)
			embedIdxs = append(embedIdxs, i)
		}
	}
	if len(toEmbed) > 0 {
		vectors, err := s.embedder.EmbedBatch(ctx, toEmbed)
		if err != nil {
			return fmt.Errorf("embedding %d documents: %w", len(toEmbed), err)
		}
		if len(vectors) != len(toEmbed) {
			return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(toEmbed))
		}
		for j, i := range embedIdxs {
			docs[i].Embedding = vectors[j]
		}
	}

	batch := &pgx.Batch{}
	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
		}
		vec := pgvector.NewVector(doc.Embedding)
		batch.Queue(`
			INSERT INTO documents (id, content, embedding, metadata)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET content = EXCLUDED.content,
			    embedding = EXCLUDED.embedding,
			    metadata = EXCLUDED.metadata`,
			doc.ID, doc.Content, vec, metadataJSON)
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range docs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting documents: %w", err)
		}
	}

	s.logger.Debug("documents upserted", "count", len(docs), "embedded", len(toEmbed))
	return nil
}

// Get fetches one document by ID, without its embedding.
func (s *Store) Get(ctx context.Context, id string) (news.Document, error) {
	var (
		doc          news.Document
		metadataJSON []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, content, metadata FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Content, &metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return news.Document{}, fmt.Errorf("document %q not found", id)
		}
		return news.Document{}, fmt.Errorf("selecting document %q: %w", id, err)
	}
	if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
		return news.Document{}, fmt.Errorf("parsing metadata for %q: %w", id, err)
	}
	return doc, nil
}

// Search embeds the query and returns the top k documents by cosine
// similarity, highest first. A non-empty channel restricts results to
// that channel's posts.
func (s *Store) Search(ctx context.Context, query string, k int, channel string) ([]news.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vectors, err := s.embedder.EmbedBatch(queryCtx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", news.ErrRetrievalFailed, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", news.ErrRetrievalFailed)
	}
	queryVec := pgvector.NewVector(vectors[0])

	var rows pgx.Rows
	if channel != "" {
		filterJSON, err := json.Marshal(map[string]string{"channel": channel})
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
		rows, err = s.db.Query(queryCtx, `
			SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
			FROM documents
			WHERE embedding IS NOT NULL AND metadata @> $2
			ORDER BY embedding <=> $1
			LIMIT $3`, queryVec, filterJSON, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", news.ErrRetrievalFailed, err)
		}
	} else {
		rows, err = s.db.Query(queryCtx, `
			SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
			FROM documents
			WHERE embedding IS NOT NULL
			ORDER BY embedding <=> $1
			LIMIT $2`, queryVec, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", news.ErrRetrievalFailed, err)
		}
	}
	defer rows.Close()

	var results []news.SearchResult
	for rows.Next() {
		var (
			res          news.SearchResult
			metadataJSON []byte
		)
		if err := rows.Scan(&res.Document.ID, &res.Document.Content, &metadataJSON, &res.Score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		res.Score = clampScore(res.Score)
		if err := json.Unmarshal(metadataJSON, &res.Document.Metadata); err != nil {
			s.logger.Warn("skipping document with bad metadata",
				"id", res.Document.ID, "error", err)
			continue
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", news.ErrRetrievalFailed, err)
	}
	return results, nil
}

// clampScore pins 1 - cosine_distance into [0, 1]. Cosine distance
// ranges over [0, 2] for opposed vectors, and floating point can nudge
// identical vectors past 1.
func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Delete removes documents by ID. Missing IDs are not an error.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("deleting %d documents: %w", len(ids), err)
	}
	return nil
}

// DeleteByChannel removes every document belonging to the channel.
func (s *Store) DeleteByChannel(ctx context.Context, handle string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE metadata->>'channel' = $1`, handle)
	if err != nil {
		return fmt.Errorf("deleting documents for channel %q: %w", handle, err)
	}
	s.logger.Debug("channel documents deleted", "channel", handle, "count", tag.RowsAffected())
	return nil
}

// Count returns the number of indexed documents, optionally for a
// single channel.
func (s *Store) Count(ctx context.Context, channel string) (int64, error) {
	var count int64
	var err error
	if channel != "" {
		err = s.db.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE metadata->>'channel' = $1`, channel).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// CollectionInfo summarizes the index for the stats surfaces.
func (s *Store) CollectionInfo(ctx context.Context) (Info, error) {
	var info Info
	err := s.db.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT metadata->>'channel')
		FROM documents`).Scan(&info.Documents, &info.Channels)
	if err != nil {
		return Info{}, fmt.Errorf("collecting index info: %w", err)
	}
	return info, nil
}

// CollectionExists reports whether the documents table is present.
// Migrations own the DDL; this is a post-deploy sanity probe.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	var regclass *string
	if err := s.db.QueryRow(ctx,
		`SELECT to_regclass('documents')::text`).Scan(&regclass); err != nil {
		return false, fmt.Errorf("checking documents table: %w", err)
	}
	return regclass != nil, nil
}

// EnsureCollection verifies the schema the store depends on. It never
// creates anything itself; a missing table means migrations were not run.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return errors.New("documents table missing, run migrations first")
	}
	return nil
}

// Drop removes every document. The schema stays in place.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE documents`); err != nil {
		return fmt.Errorf("dropping documents: %w", err)
	}
	s.logger.Info("document index dropped")
	return nil
}
