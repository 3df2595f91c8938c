package app

import (
	"context"
	"time"

	"github.com/newshound/newshound/internal/ingest"
	"github.com/newshound/newshound/internal/telegram"
)

// telegramSource adapts the preview client to the ingestion source
// interface. StreamPosts returns the concrete stream as an iterator.
type telegramSource struct {
	client *telegram.Client
}

func (s *telegramSource) ChannelInfo(ctx context.Context, handle string) (telegram.ChannelInfo, error) {
	return s.client.ChannelInfo(ctx, handle)
}

func (s *telegramSource) StreamPosts(ctx context.Context, handle string, since time.Time, limit int) ingest.PostIterator {
	return s.client.StreamPosts(ctx, handle, since, limit)
}
