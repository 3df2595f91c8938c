package app

import (
	"context"
	"fmt"

	"github.com/newshound/newshound/internal/index"
	"github.com/newshound/newshound/internal/news"
)

// IndexInfo reports index counters. Implemented by index.Store.
type IndexInfo interface {
	CollectionInfo(ctx context.Context) (index.Info, error)
}

// ChannelLister lists cataloged channels. Implemented by catalog.Store.
type ChannelLister interface {
	List(ctx context.Context) ([]news.Channel, error)
}

// StatsService aggregates index and catalog counters for the stats
// endpoint.
type StatsService struct {
	index   IndexInfo
	catalog ChannelLister
}

// NewStatsService creates a StatsService.
func NewStatsService(idx IndexInfo, cat ChannelLister) *StatsService {
	return &StatsService{index: idx, catalog: cat}
}

// Stats returns a snapshot of pipeline counters.
func (s *StatsService) Stats(ctx context.Context) (map[string]any, error) {
	info, err := s.index.CollectionInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index info: %w", err)
	}

	channels, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}

	byStatus := map[string]int{}
	totalPosts := 0
	for _, ch := range channels {
		byStatus[string(ch.Status)]++
		totalPosts += ch.PostsCount
	}

	return map[string]any{
		"documents":          info.Documents,
		"channels_in_index":  info.Channels,
		"channels_tracked":   len(channels),
		"channels_by_status": byStatus,
		"posts_total":        totalPosts,
	}, nil
}
