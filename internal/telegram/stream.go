package telegram

import (
	"context"
	"time"
)

// PostStream walks a channel's preview pages backwards through the
// before cursor, yielding posts newest first. Pages are fetched lazily
// as Next is called.
type PostStream struct {
	ctx    context.Context
	client *Client
	handle string
	since  time.Time
	limit  int

	buf     []Post // descending ID
	pos     int
	before  int64 // cursor for the next page fetch, 0 = newest
	started bool
	yielded int
	done    bool
}

// Next returns the next post. The second return is false once the
// stream is exhausted or fails; a non-nil error means the stream
// stopped early.
func (s *PostStream) Next() (Post, bool, error) {
	for {
		if s.done {
			return Post{}, false, nil
		}
		if s.limit > 0 && s.yielded >= s.limit {
			s.done = true
			return Post{}, false, nil
		}
		if s.pos < len(s.buf) {
			post := s.buf[s.pos]
			s.pos++
			if post.Date.IsZero() {
				// Unparseable timestamp. Skip it rather than mistake
				// it for already-ingested history.
				continue
			}
			if !s.since.IsZero() && !post.Date.After(s.since) {
				// Reached already-ingested history.
				s.done = true
				return Post{}, false, nil
			}
			s.yielded++
			return post, true, nil
		}
		if err := s.fetchPage(); err != nil {
			s.done = true
			return Post{}, false, err
		}
		if len(s.buf) == 0 {
			s.done = true
			return Post{}, false, nil
		}
	}
}

// Drain consumes the remaining stream into a slice, newest first.
func (s *PostStream) Drain() ([]Post, error) {
	var posts []Post
	for {
		post, ok, err := s.Next()
		if err != nil {
			return posts, err
		}
		if !ok {
			return posts, nil
		}
		posts = append(posts, post)
	}
}

func (s *PostStream) fetchPage() error {
	if s.started && s.before == 0 {
		// Previous page had no usable cursor.
		s.buf = nil
		s.pos = 0
		return nil
	}

	page, err := s.client.fetchPreview(s.ctx, s.handle, s.before)
	if err != nil {
		return err
	}
	s.started = true

	// Pages render oldest to newest, the stream yields newest first.
	posts := page.posts
	s.buf = make([]Post, 0, len(posts))
	for i := len(posts) - 1; i >= 0; i-- {
		s.buf = append(s.buf, posts[i])
	}
	s.pos = 0

	if len(posts) == 0 {
		s.before = 0
		return nil
	}
	oldest := posts[0].ID
	if s.started && oldest == s.before {
		// No progress, stop rather than loop.
		s.buf = nil
		return nil
	}
	s.before = oldest
	return nil
}
