// Package catalog persists the channel registry and the per-post
// ingestion ledger in PostgreSQL.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// DB is the subset of pgxpool.Pool the store needs. Defined here so
// tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store manages channels and the dedup ledger. Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// PostRecord is one ledger entry: a post the pipeline has ingested.
type PostRecord struct {
	MessageID   int64
	PublishedAt time.Time
}

// New creates a Store.
func New(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const channelColumns = `id, telegram_id, handle, title, description, link, status, posts_count, last_post_date, created_at, updated_at`

// Create inserts a channel and fills in its generated fields.
// Returns news.ErrChannelExists when the handle is already cataloged.
func (s *Store) Create(ctx context.Context, ch *news.Channel) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO channels (telegram_id, handle, title, description, link, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		ch.TelegramID, ch.Handle, ch.Title, ch.Description, ch.Link, ch.Status,
	).Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", news.ErrChannelExists, ch.Handle)
		}
		return fmt.Errorf("inserting channel %q: %w", ch.Handle, err)
	}

	s.logger.Debug("channel created", "handle", ch.Handle, "id", ch.ID)
	return nil
}

// GetByHandle looks up a channel by its handle.
func (s *Store) GetByHandle(ctx context.Context, handle string) (news.Channel, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE handle = $1`, handle)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return news.Channel{}, fmt.Errorf("%w: %s", news.ErrChannelNotFound, handle)
		}
		return news.Channel{}, fmt.Errorf("selecting channel %q: %w", handle, err)
	}
	return ch, nil
}

// List returns all cataloged channels ordered by handle.
func (s *Store) List(ctx context.Context) ([]news.Channel, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+channelColumns+` FROM channels ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	var channels []news.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning channel row: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return channels, nil
}

// Update rewrites the channel's mutable fields. The watermark only
// advances: a stale last_post_date in ch never overwrites a newer one.
func (s *Store) Update(ctx context.Context, ch news.Channel) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE channels
		SET title = $2, description = $3, link = $4, status = $5,
		    posts_count = $6,
		    last_post_date = GREATEST(last_post_date, $7),
		    updated_at = now()
		WHERE id = $1`,
		ch.ID, ch.Title, ch.Description, ch.Link, ch.Status,
		ch.PostsCount, ch.LastPostDate)
	if err != nil {
		return fmt.Errorf("updating channel %d: %w", ch.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", news.ErrChannelNotFound, ch.ID)
	}
	return nil
}

// SetStatus updates only the channel status.
func (s *Store) SetStatus(ctx context.Context, id int64, status news.ChannelStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE channels SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("setting status for channel %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", news.ErrChannelNotFound, id)
	}
	return nil
}

// Delete removes the channel. Ledger rows go with it through the FK
// cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting channel %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", news.ErrChannelNotFound, id)
	}
	s.logger.Debug("channel deleted", "id", id)
	return nil
}

// PostExists reports whether the ledger already holds this post.
func (s *Store) PostExists(ctx context.Context, channelID, messageID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM channel_posts WHERE channel_id = $1 AND message_id = $2)`,
		channelID, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking post %d/%d: %w", channelID, messageID, err)
	}
	return exists, nil
}

// RecordPosts inserts ledger entries for a batch of posts, skipping
// duplicates, and returns how many rows were actually inserted.
func (s *Store) RecordPosts(ctx context.Context, channelID int64, posts []PostRecord) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range posts {
		batch.Queue(`
			INSERT INTO channel_posts (channel_id, message_id, published_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, message_id) DO NOTHING`,
			channelID, p.MessageID, p.PublishedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	inserted := 0
	for range posts {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("recording posts for channel %d: %w", channelID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// DeletePostsByChannel clears the channel's ledger.
func (s *Store) DeletePostsByChannel(ctx context.Context, channelID int64) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM channel_posts WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("clearing ledger for channel %d: %w", channelID, err)
	}
	return nil
}

func scanChannel(row pgx.Row) (news.Channel, error) {
	var ch news.Channel
	err := row.Scan(&ch.ID, &ch.TelegramID, &ch.Handle, &ch.Title,
		&ch.Description, &ch.Link, &ch.Status, &ch.PostsCount,
		&ch.LastPostDate, &ch.CreatedAt, &ch.UpdatedAt)
	return ch, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
