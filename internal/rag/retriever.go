// Package rag answers questions and builds period digests over the
// vector index, grounding every generation in retrieved posts.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// Searcher is the vector index surface the retriever consumes.
// Implemented by internal/index.
type Searcher interface {
	Search(ctx context.Context, query string, k int, channel string) ([]news.SearchResult, error)
}

// Retriever runs similarity search, fanning out per channel when an
// allow-list is given.
type Retriever struct {
	searcher Searcher
	logger   log.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(searcher Searcher, logger log.Logger) *Retriever {
	return &Retriever{searcher: searcher, logger: logger}
}

// Retrieve returns up to k results for the query. With channels set,
// each channel is searched for its own top k concurrently and the
// merged set is re-ranked and capped at k, so one noisy channel cannot
// crowd out the rest before the merge. Results below minScore are
// dropped.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, channels []string, minScore float64) ([]news.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, news.ErrEmptyQuery
	}
	if k <= 0 {
		return nil, nil
	}

	var merged []news.SearchResult
	if len(channels) == 0 {
		results, err := r.searcher.Search(ctx, query, k, "")
		if err != nil {
			return nil, err
		}
		merged = results
	} else {
		perChannel := make([][]news.SearchResult, len(channels))
		g, gctx := errgroup.WithContext(ctx)
		for i, channel := range channels {
			g.Go(func() error {
				results, err := r.searcher.Search(gctx, query, k, channel)
				if err != nil {
					return fmt.Errorf("channel %q: %w", channel, err)
				}
				perChannel[i] = results
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, results := range perChannel {
			merged = append(merged, results...)
		}
	}

	filtered := merged[:0]
	for _, res := range merged {
		if res.Score >= minScore {
			filtered = append(filtered, res)
		}
	}

	sortResults(filtered)
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	r.logger.Debug("retrieved documents",
		"query_len", len(query), "k", k, "channels", len(channels), "results", len(filtered))
	return filtered, nil
}

// sortResults orders by score descending, then post date descending,
// then document ID ascending. The trailing keys make ranking stable
// across runs when scores tie.
func sortResults(results []news.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		di, dj := docDate(results[i]), docDate(results[j])
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}

func docDate(res news.SearchResult) time.Time {
	if res.Document.Metadata.Date != nil {
		return *res.Document.Metadata.Date
	}
	return time.Time{}
}
