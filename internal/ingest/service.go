// Package ingest orchestrates the channel lifecycle: adding, refreshing
// and removing channels, and moving their posts into the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/newshound/newshound/internal/catalog"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
	"github.com/newshound/newshound/internal/telegram"
)

// PostIterator yields posts newest first until exhausted.
type PostIterator interface {
	Next() (telegram.Post, bool, error)
}

// Source reads channel metadata and posts. Implemented by
// internal/telegram through a thin adapter.
type Source interface {
	ChannelInfo(ctx context.Context, handle string) (telegram.ChannelInfo, error)
	StreamPosts(ctx context.Context, handle string, since time.Time, limit int) PostIterator
}

// Catalog persists channels and the post ledger.
type Catalog interface {
	Create(ctx context.Context, ch *news.Channel) error
	GetByHandle(ctx context.Context, handle string) (news.Channel, error)
	List(ctx context.Context) ([]news.Channel, error)
	Update(ctx context.Context, ch news.Channel) error
	SetStatus(ctx context.Context, id int64, status news.ChannelStatus) error
	Delete(ctx context.Context, id int64) error
	PostExists(ctx context.Context, channelID, messageID int64) (bool, error)
	RecordPosts(ctx context.Context, channelID int64, posts []catalog.PostRecord) (int, error)
	DeletePostsByChannel(ctx context.Context, channelID int64) error
}

// Index holds the searchable documents.
type Index interface {
	Upsert(ctx context.Context, docs []news.Document) error
	DeleteByChannel(ctx context.Context, handle string) error
}

// RefreshResult reports what one refresh run did.
type RefreshResult struct {
	Handle    string     `json:"handle"`
	Fetched   int        `json:"fetched"`
	Indexed   int        `json:"indexed"`
	Watermark *time.Time `json:"watermark,omitempty"`
}

// Service is the ingestion orchestrator. Safe for concurrent use;
// concurrent refreshes of the same channel are rejected through a
// per-channel file lock.
type Service struct {
	source     Source
	catalog    Catalog
	index      Index
	stateDir   string
	batchSize  int
	postsLimit int
	logger     log.Logger
}

// Options bound a Service's batching behavior.
type Options struct {
	// StateDir holds the per-channel refresh lock files.
	StateDir string
	// BatchSize is how many posts are embedded and committed at once.
	BatchSize int
	// PostsLimit caps how many posts one refresh may pull.
	PostsLimit int
}

// New creates a Service.
func New(source Source, cat Catalog, idx Index, opts Options, logger log.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Service{
		source:     source,
		catalog:    cat,
		index:      idx,
		stateDir:   opts.StateDir,
		batchSize:  opts.BatchSize,
		postsLimit: opts.PostsLimit,
		logger:     logger,
	}
}

// AddChannel validates the handle against the source and catalogs the
// channel. With indexPosts set the initial indexing runs immediately
// and the returned channel reflects its outcome; without it the
// channel is registered active and left to a later refresh. postsLimit
// caps the initial pass, zero means the service default.
func (s *Service) AddChannel(ctx context.Context, handleOrLink string, indexPosts bool, postsLimit int) (news.Channel, error) {
	handle, err := news.ParseHandle(handleOrLink)
	if err != nil {
		return news.Channel{}, err
	}

	info, err := s.source.ChannelInfo(ctx, handle)
	if err != nil {
		return news.Channel{}, fmt.Errorf("validating channel %q: %w", handle, err)
	}

	ch := news.Channel{
		Handle:      info.Handle,
		Title:       info.Title,
		Description: info.Description,
		Link:        info.Link,
		Status:      news.StatusIndexing,
	}
	if !indexPosts {
		ch.Status = news.StatusActive
	}
	if err := s.catalog.Create(ctx, &ch); err != nil {
		return news.Channel{}, err
	}
	s.logger.Info("channel added",
		"handle", ch.Handle, "id", ch.ID, "index_posts", indexPosts)

	if !indexPosts {
		return ch, nil
	}

	if _, err := s.refresh(ctx, ch.Handle, postsLimit); err != nil {
		// The channel stays cataloged in error status so the operator
		// can retry with a plain refresh.
		ch, getErr := s.catalog.GetByHandle(ctx, ch.Handle)
		if getErr != nil {
			return news.Channel{}, errors.Join(err, getErr)
		}
		return ch, fmt.Errorf("initial indexing of %q: %w", handle, err)
	}

	return s.catalog.GetByHandle(ctx, ch.Handle)
}

// RemoveChannel deletes the channel and everything derived from it.
// Vector documents go first, then the ledger, then the channel row, so
// an interrupted removal never leaves orphaned documents behind a
// missing channel.
func (s *Service) RemoveChannel(ctx context.Context, handle string) error {
	handle, err := news.ParseHandle(handle)
	if err != nil {
		return err
	}
	ch, err := s.catalog.GetByHandle(ctx, handle)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByChannel(ctx, ch.Handle); err != nil {
		return fmt.Errorf("removing channel %q: %w", handle, err)
	}
	if err := s.catalog.DeletePostsByChannel(ctx, ch.ID); err != nil {
		return fmt.Errorf("removing channel %q: %w", handle, err)
	}
	if err := s.catalog.Delete(ctx, ch.ID); err != nil {
		return fmt.Errorf("removing channel %q: %w", handle, err)
	}

	s.logger.Info("channel removed", "handle", handle, "id", ch.ID)
	return nil
}

// RefreshChannel pulls new posts since the channel's watermark and
// indexes them in batches. Each committed batch advances the watermark,
// so an interrupted refresh never re-indexes what it already stored.
//
// Returns news.ErrRefreshInFlight when another refresh of the same
// channel holds the lock.
func (s *Service) RefreshChannel(ctx context.Context, handle string) (RefreshResult, error) {
	return s.refresh(ctx, handle, 0)
}

// refresh runs one locked indexing pass. limit caps the pull, zero
// means the service default.
func (s *Service) refresh(ctx context.Context, handle string, limit int) (RefreshResult, error) {
	handle, err := news.ParseHandle(handle)
	if err != nil {
		return RefreshResult{}, err
	}

	unlock, err := s.lockChannel(handle)
	if err != nil {
		return RefreshResult{}, err
	}
	defer unlock()

	ch, err := s.catalog.GetByHandle(ctx, handle)
	if err != nil {
		return RefreshResult{}, err
	}

	if err := s.catalog.SetStatus(ctx, ch.ID, news.StatusIndexing); err != nil {
		return RefreshResult{}, err
	}

	result, err := s.runIndexing(ctx, &ch, limit)
	if err != nil {
		if stErr := s.catalog.SetStatus(ctx, ch.ID, news.StatusError); stErr != nil {
			s.logger.Error("marking channel failed", "handle", handle, "error", stErr)
		}
		return result, fmt.Errorf("refreshing channel %q: %w", handle, err)
	}

	// A clean run always lands on active, including recovery from a
	// previous error status.
	ch.Status = news.StatusActive
	if err := s.catalog.Update(ctx, ch); err != nil {
		return result, err
	}

	s.logger.Info("channel refreshed",
		"handle", handle, "fetched", result.Fetched, "indexed", result.Indexed)
	return result, nil
}

// RefreshAll refreshes every channel except paused ones. Failures are
// collected per channel; one bad channel does not stop the sweep.
func (s *Service) RefreshAll(ctx context.Context) ([]RefreshResult, error) {
	channels, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		results []RefreshResult
		errs    []error
	)
	for _, ch := range channels {
		if ch.Status == news.StatusPaused {
			s.logger.Debug("skipping paused channel", "handle", ch.Handle)
			continue
		}
		result, err := s.RefreshChannel(ctx, ch.Handle)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

// Channels lists all cataloged channels.
func (s *Service) Channels(ctx context.Context) ([]news.Channel, error) {
	return s.catalog.List(ctx)
}

// Channel returns one channel by handle or link.
func (s *Service) Channel(ctx context.Context, handle string) (news.Channel, error) {
	handle, err := news.ParseHandle(handle)
	if err != nil {
		return news.Channel{}, err
	}
	return s.catalog.GetByHandle(ctx, handle)
}

// Pause suspends automatic refreshes for the channel.
func (s *Service) Pause(ctx context.Context, handle string) error {
	return s.setStatusByHandle(ctx, handle, news.StatusPaused)
}

// Resume re-enables automatic refreshes for the channel.
func (s *Service) Resume(ctx context.Context, handle string) error {
	return s.setStatusByHandle(ctx, handle, news.StatusActive)
}

func (s *Service) setStatusByHandle(ctx context.Context, handle string, status news.ChannelStatus) error {
	handle, err := news.ParseHandle(handle)
	if err != nil {
		return err
	}
	ch, err := s.catalog.GetByHandle(ctx, handle)
	if err != nil {
		return err
	}
	return s.catalog.SetStatus(ctx, ch.ID, status)
}

// runIndexing drains the post stream and commits posts oldest first in
// batches. ch is mutated to track posts_count and the watermark.
func (s *Service) runIndexing(ctx context.Context, ch *news.Channel, limit int) (RefreshResult, error) {
	result := RefreshResult{Handle: ch.Handle, Watermark: ch.LastPostDate}

	var since time.Time
	if ch.LastPostDate != nil {
		since = *ch.LastPostDate
	}
	if limit <= 0 {
		limit = s.postsLimit
	}

	stream := s.source.StreamPosts(ctx, ch.Handle, since, limit)
	var posts []telegram.Post
	for {
		post, ok, err := stream.Next()
		if err != nil {
			return result, fmt.Errorf("%w: %v", news.ErrSourceUnavailable, err)
		}
		if !ok {
			break
		}
		result.Fetched++
		if post.Text == "" {
			continue
		}
		// The ledger is the source of truth for what is already
		// indexed; the watermark is only a cursor hint. Skipping here
		// saves the embedding call for re-yielded history.
		known, err := s.catalog.PostExists(ctx, ch.ID, post.ID)
		if err != nil {
			return result, fmt.Errorf("checking ledger for message %d: %w", post.ID, err)
		}
		if known {
			continue
		}
		posts = append(posts, post)
	}

	// The stream yields newest first; commits go oldest first so the
	// watermark only ever moves forward.
	reverse(posts)

	for start := 0; start < len(posts); start += s.batchSize {
		end := min(start+s.batchSize, len(posts))
		batch := posts[start:end]

		indexed, err := s.commitBatch(ctx, ch, batch)
		result.Indexed += indexed
		if err != nil {
			return result, err
		}
		result.Watermark = ch.LastPostDate
	}
	return result, nil
}

// commitBatch indexes one batch and records it in the ledger, then
// advances the channel watermark to the batch's newest post.
func (s *Service) commitBatch(ctx context.Context, ch *news.Channel, batch []telegram.Post) (int, error) {
	docs := make([]news.Document, len(batch))
	records := make([]catalog.PostRecord, len(batch))
	watermark := time.Time{}
	for i, post := range batch {
		date := post.Date
		docs[i] = news.Document{
			ID:      news.DocumentID(ch.Handle, post.ID),
			Content: post.Text,
			Metadata: news.Metadata{
				Source:    "telegram",
				Channel:   ch.Handle,
				ChannelID: ch.ID,
				MessageID: post.ID,
				Date:      &date,
				URL:       post.URL,
				Views:     post.Views,
			},
		}
		records[i] = catalog.PostRecord{MessageID: post.ID, PublishedAt: post.Date}
		if post.Date.After(watermark) {
			watermark = post.Date
		}
	}

	if err := s.index.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("indexing batch of %d posts: %w", len(batch), err)
	}
	inserted, err := s.catalog.RecordPosts(ctx, ch.ID, records)
	if err != nil {
		return 0, fmt.Errorf("recording batch of %d posts: %w", len(batch), err)
	}

	ch.PostsCount += inserted
	if !watermark.IsZero() && (ch.LastPostDate == nil || watermark.After(*ch.LastPostDate)) {
		ch.LastPostDate = &watermark
	}
	if err := s.catalog.Update(ctx, *ch); err != nil {
		return inserted, fmt.Errorf("advancing watermark: %w", err)
	}
	return inserted, nil
}

// lockChannel takes the per-channel refresh lock. The lock is advisory
// and file based, so it also guards against a second process.
func (s *Service) lockChannel(handle string) (func(), error) {
	if s.stateDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(s.stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	fl := flock.New(filepath.Join(s.stateDir, "refresh-"+handle+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring refresh lock for %q: %w", handle, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", news.ErrRefreshInFlight, handle)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("releasing refresh lock", "handle", handle, "error", err)
		}
	}, nil
}

func reverse(posts []telegram.Post) {
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
}
