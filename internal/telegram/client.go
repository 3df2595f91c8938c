// Package telegram reads public Telegram channels through the t.me/s/
// web preview. No account or bot token is needed; only channels with a
// public preview are reachable.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

const (
	defaultBaseURL  = "https://t.me"
	defaultInterval = 500 * time.Millisecond

	requestTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20 // 10MB
	userAgent       = "newshound/1.0 (+https://github.com/newshound/newshound)"
)

// Post is a single message from a channel preview page.
type Post struct {
	ID    int64
	Date  time.Time
	Text  string
	URL   string
	Views int64
}

// ChannelInfo describes a channel as shown on its preview page.
type ChannelInfo struct {
	Handle      string
	Title       string
	Description string
	Link        string
}

// Client fetches and parses channel preview pages. All requests pass
// through a shared rate limiter so bulk refreshes stay polite.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
	connected  atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the t.me endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestInterval sets the minimum spacing between requests.
func WithRequestInterval(d time.Duration) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// New creates a Client with sane transport defaults.
func New(logger log.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(defaultInterval), 1),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect probes the preview endpoint and marks the client ready.
// Idempotent; a second call just re-probes.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.connected.Store(false)
		return fmt.Errorf("%w: probing %s: %v", news.ErrSourceUnavailable, c.baseURL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		c.connected.Store(false)
		return fmt.Errorf("%w: %s returned status %d", news.ErrSourceUnavailable, c.baseURL, resp.StatusCode)
	}

	c.connected.Store(true)
	return nil
}

// Disconnect drops idle connections and clears the ready flag.
// Idempotent; the client remains usable and reconnects lazily.
func (c *Client) Disconnect() {
	c.connected.Store(false)
	c.httpClient.CloseIdleConnections()
}

// IsConnected reports whether the last probe succeeded.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// ChannelInfo fetches the channel header from the preview page.
// Returns news.ErrInvalidChannel when the handle has no public preview.
func (c *Client) ChannelInfo(ctx context.Context, handle string) (ChannelInfo, error) {
	doc, err := c.fetchPreview(ctx, handle, 0)
	if err != nil {
		return ChannelInfo{}, err
	}
	info, err := parseChannelInfo(doc)
	if err != nil {
		return ChannelInfo{}, fmt.Errorf("channel %q: %w", handle, err)
	}
	if info.Handle == "" {
		info.Handle = handle
	}
	info.Link = news.ChannelLink(info.Handle)
	return info, nil
}

// Validate checks that the handle resolves to a channel with a public
// preview. It is a cheap existence probe used before cataloging.
func (c *Client) Validate(ctx context.Context, handle string) error {
	_, err := c.ChannelInfo(ctx, handle)
	return err
}

// StreamPosts returns a lazy stream over the channel's posts, newest
// first. Pages are fetched on demand as the stream is drained. The
// stream stops after limit posts or once it reaches posts published at
// or before since (zero since means no lower bound).
//
// The stream is single-use and not safe for concurrent use.
func (c *Client) StreamPosts(ctx context.Context, handle string, since time.Time, limit int) *PostStream {
	return &PostStream{
		ctx:    ctx,
		client: c,
		handle: handle,
		since:  since,
		limit:  limit,
	}
}

// fetchPreview GETs /s/<handle>[?before=N] and parses the body. A zero
// before fetches the newest page.
func (c *Client) fetchPreview(ctx context.Context, handle string, before int64) (*previewPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := fmt.Sprintf("%s/s/%s", c.baseURL, url.PathEscape(handle))
	if before > 0 {
		u += fmt.Sprintf("?before=%d", before)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", news.ErrSourceUnavailable, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", news.ErrInvalidChannel, handle)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned status %d", news.ErrSourceUnavailable, u, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxResponseSize)
	page, err := parsePreviewPage(body, handle)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", u, err)
	}

	c.logger.Debug("fetched channel preview",
		"handle", handle, "before", before, "posts", len(page.posts))
	return page, nil
}
