package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/newshound/newshound/internal/catalog"
	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
	"github.com/newshound/newshound/internal/telegram"
)

// slicePosts yields a fixed set of posts, honoring the since watermark
// and limit the way the live stream does.
type slicePosts struct {
	posts []telegram.Post // newest first
	pos   int
	since time.Time
	limit int
	count int
	err   error
}

func (s *slicePosts) Next() (telegram.Post, bool, error) {
	if s.err != nil {
		return telegram.Post{}, false, s.err
	}
	if s.limit > 0 && s.count >= s.limit {
		return telegram.Post{}, false, nil
	}
	if s.pos >= len(s.posts) {
		return telegram.Post{}, false, nil
	}
	post := s.posts[s.pos]
	if !s.since.IsZero() && !post.Date.After(s.since) {
		return telegram.Post{}, false, nil
	}
	s.pos++
	s.count++
	return post, true, nil
}

type fakeSource struct {
	info      telegram.ChannelInfo
	infoErr   error
	posts     []telegram.Post // newest first
	streamErr error
}

func (f *fakeSource) ChannelInfo(_ context.Context, handle string) (telegram.ChannelInfo, error) {
	if f.infoErr != nil {
		return telegram.ChannelInfo{}, f.infoErr
	}
	info := f.info
	if info.Handle == "" {
		info.Handle = handle
	}
	return info, nil
}

func (f *fakeSource) StreamPosts(_ context.Context, _ string, since time.Time, limit int) PostIterator {
	return &slicePosts{posts: f.posts, since: since, limit: limit, err: f.streamErr}
}

type fakeCatalog struct {
	channels map[string]*news.Channel
	ledger   map[string]bool // "id/messageID"
	nextID   int64
	calls    []string

	updateErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		channels: make(map[string]*news.Channel),
		ledger:   make(map[string]bool),
	}
}

func (f *fakeCatalog) Create(_ context.Context, ch *news.Channel) error {
	f.calls = append(f.calls, "create")
	if _, ok := f.channels[ch.Handle]; ok {
		return news.ErrChannelExists
	}
	f.nextID++
	ch.ID = f.nextID
	cp := *ch
	f.channels[ch.Handle] = &cp
	return nil
}

func (f *fakeCatalog) GetByHandle(_ context.Context, handle string) (news.Channel, error) {
	ch, ok := f.channels[handle]
	if !ok {
		return news.Channel{}, news.ErrChannelNotFound
	}
	return *ch, nil
}

func (f *fakeCatalog) List(_ context.Context) ([]news.Channel, error) {
	var out []news.Channel
	for _, ch := range f.channels {
		out = append(out, *ch)
	}
	return out, nil
}

func (f *fakeCatalog) Update(_ context.Context, ch news.Channel) error {
	f.calls = append(f.calls, "update")
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.channels[ch.Handle]
	if !ok {
		return news.ErrChannelNotFound
	}
	// The real store never lets the watermark regress.
	if ch.LastPostDate != nil && stored.LastPostDate != nil && ch.LastPostDate.Before(*stored.LastPostDate) {
		ch.LastPostDate = stored.LastPostDate
	}
	ch.ID = stored.ID
	*stored = ch
	return nil
}

func (f *fakeCatalog) SetStatus(_ context.Context, id int64, status news.ChannelStatus) error {
	for _, ch := range f.channels {
		if ch.ID == id {
			ch.Status = status
			return nil
		}
	}
	return news.ErrChannelNotFound
}

func (f *fakeCatalog) Delete(_ context.Context, id int64) error {
	f.calls = append(f.calls, "delete-channel")
	for handle, ch := range f.channels {
		if ch.ID == id {
			delete(f.channels, handle)
			return nil
		}
	}
	return news.ErrChannelNotFound
}

func (f *fakeCatalog) PostExists(_ context.Context, channelID, messageID int64) (bool, error) {
	return f.ledger[fmt.Sprintf("%d/%d", channelID, messageID)], nil
}

func (f *fakeCatalog) RecordPosts(_ context.Context, channelID int64, posts []catalog.PostRecord) (int, error) {
	inserted := 0
	for _, p := range posts {
		key := fmt.Sprintf("%d/%d", channelID, p.MessageID)
		if !f.ledger[key] {
			f.ledger[key] = true
			inserted++
		}
	}
	return inserted, nil
}

func (f *fakeCatalog) DeletePostsByChannel(_ context.Context, channelID int64) error {
	f.calls = append(f.calls, "delete-ledger")
	for key := range f.ledger {
		var id, msgID int64
		if _, err := fmt.Sscanf(key, "%d/%d", &id, &msgID); err == nil && id == channelID {
			delete(f.ledger, key)
		}
	}
	return nil
}

type fakeIndex struct {
	docs       map[string]news.Document
	calls      []string
	upserts    int
	failUpsert int // fail the nth Upsert call (1-based), 0 = never
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]news.Document)}
}

func (f *fakeIndex) Upsert(_ context.Context, docs []news.Document) error {
	f.upserts++
	f.calls = append(f.calls, "upsert")
	if f.failUpsert > 0 && f.upserts == f.failUpsert {
		return errors.New("embedder unavailable")
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return nil
}

func (f *fakeIndex) DeleteByChannel(_ context.Context, handle string) error {
	f.calls = append(f.calls, "delete-docs")
	for id, doc := range f.docs {
		if doc.Metadata.Channel == handle {
			delete(f.docs, id)
		}
	}
	return nil
}

func postAt(id int64, date time.Time, text string) telegram.Post {
	return telegram.Post{
		ID:   id,
		Date: date,
		Text: text,
		URL:  news.PostLink("rbc_news", id),
	}
}

func newsPosts() []telegram.Post {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	// Newest first, as the stream yields them.
	return []telegram.Post{
		postAt(103, base.Add(2*time.Hour), "rates decision published"),
		postAt(102, base.Add(time.Hour), ""),
		postAt(101, base, "markets opened higher"),
	}
}

func newTestService(t *testing.T, src *fakeSource, cat *fakeCatalog, idx *fakeIndex, opts Options) *Service {
	t.Helper()
	if opts.StateDir == "" {
		opts.StateDir = t.TempDir()
	}
	return New(src, cat, idx, opts, log.NewNop())
}

func TestAddChannel(t *testing.T) {
	src := &fakeSource{
		info:  telegram.ChannelInfo{Handle: "rbc_news", Title: "RBC News", Link: "https://t.me/rbc_news"},
		posts: newsPosts(),
	}
	cat := newFakeCatalog()
	idx := newFakeIndex()
	svc := newTestService(t, src, cat, idx, Options{})

	ch, err := svc.AddChannel(context.Background(), "@rbc_news", true, 0)
	if err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}

	if ch.Status != news.StatusActive {
		t.Errorf("Status = %q, want active", ch.Status)
	}
	if ch.Title != "RBC News" {
		t.Errorf("Title = %q, want RBC News", ch.Title)
	}
	// Post 102 has no text and is not indexed.
	if ch.PostsCount != 2 {
		t.Errorf("PostsCount = %d, want 2", ch.PostsCount)
	}
	if len(idx.docs) != 2 {
		t.Errorf("indexed %d documents, want 2", len(idx.docs))
	}
	doc, ok := idx.docs["rbc_news_103"]
	if !ok {
		t.Fatal("document rbc_news_103 missing")
	}
	if doc.Metadata.Channel != "rbc_news" || doc.Metadata.MessageID != 103 {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	want := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	if ch.LastPostDate == nil || !ch.LastPostDate.Equal(want) {
		t.Errorf("LastPostDate = %v, want %v", ch.LastPostDate, want)
	}
}

func TestAddChannel_InvalidHandle(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, newFakeCatalog(), newFakeIndex(), Options{})
	_, err := svc.AddChannel(context.Background(), "a!", true, 0)
	if !errors.Is(err, news.ErrInvalidChannel) {
		t.Errorf("error = %v, want ErrInvalidChannel", err)
	}
}

func TestAddChannel_Duplicate(t *testing.T) {
	src := &fakeSource{posts: newsPosts()}
	cat := newFakeCatalog()
	svc := newTestService(t, src, cat, newFakeIndex(), Options{})

	if _, err := svc.AddChannel(context.Background(), "rbc_news", true, 0); err != nil {
		t.Fatalf("first AddChannel() error = %v", err)
	}
	_, err := svc.AddChannel(context.Background(), "rbc_news", true, 0)
	if !errors.Is(err, news.ErrChannelExists) {
		t.Errorf("error = %v, want ErrChannelExists", err)
	}
}

func TestAddChannel_SourceRejects(t *testing.T) {
	src := &fakeSource{infoErr: news.ErrInvalidChannel}
	cat := newFakeCatalog()
	svc := newTestService(t, src, cat, newFakeIndex(), Options{})

	_, err := svc.AddChannel(context.Background(), "rbc_news", true, 0)
	if !errors.Is(err, news.ErrInvalidChannel) {
		t.Errorf("error = %v, want ErrInvalidChannel", err)
	}
	if len(cat.channels) != 0 {
		t.Error("channel was cataloged despite failed validation")
	}
}

func TestAddChannel_MetadataOnly(t *testing.T) {
	src := &fakeSource{
		info:  telegram.ChannelInfo{Handle: "rbc_news", Title: "RBC News", Link: "https://t.me/rbc_news"},
		posts: newsPosts(),
	}
	cat := newFakeCatalog()
	idx := newFakeIndex()
	svc := newTestService(t, src, cat, idx, Options{})

	ch, err := svc.AddChannel(context.Background(), "rbc_news", false, 0)
	if err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	if ch.Status != news.StatusActive {
		t.Errorf("Status = %q, want active without indexing", ch.Status)
	}
	if ch.PostsCount != 0 {
		t.Errorf("PostsCount = %d, want 0", ch.PostsCount)
	}
	if idx.upserts != 0 {
		t.Errorf("upserts = %d, want none before the first refresh", idx.upserts)
	}

	// A later refresh indexes what the registration skipped.
	result, err := svc.RefreshChannel(context.Background(), "rbc_news")
	if err != nil {
		t.Fatalf("RefreshChannel() error = %v", err)
	}
	if result.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", result.Indexed)
	}
}

func TestAddChannel_PostsLimit(t *testing.T) {
	src := &fakeSource{posts: newsPosts()}
	cat := newFakeCatalog()
	idx := newFakeIndex()
	svc := newTestService(t, src, cat, idx, Options{})

	ch, err := svc.AddChannel(context.Background(), "rbc_news", true, 1)
	if err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	if ch.PostsCount != 1 {
		t.Errorf("PostsCount = %d, want 1 under the per-call limit", ch.PostsCount)
	}
	if _, ok := idx.docs["rbc_news_103"]; !ok {
		t.Error("newest post missing from the index")
	}
}

func TestRefreshChannel_Idempotent(t *testing.T) {
	src := &fakeSource{posts: newsPosts()}
	cat := newFakeCatalog()
	idx := newFakeIndex()
	svc := newTestService(t, src, cat, idx, Options{})

	if _, err := svc.AddChannel(context.Background(), "rbc_news", true, 0); err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}

	// Same source content: the watermark stops the stream immediately.
	result, err := svc.RefreshChannel(context.Background(), "rbc_news")
	if err != nil {
		t.Fatalf("RefreshChannel() error = %v", err)
	}
	if result.Indexed != 0 {
		t.Errorf("Indexed = %d, want 0 on replay", result.Indexed)
	}
	ch, _ := cat.GetByHandle(context.Background(), "rbc_news")
	if ch.PostsCount != 2 {
		t.Errorf("PostsCount = %d, want 2 after replay", ch.PostsCount)
	}
}

func TestRefreshChannel_PartialFailureKeepsCommittedBatches(t *testing.T) {
	src := &fakeSource{posts: newsPosts()}
	cat := newFakeCatalog()
	idx := newFakeIndex()
	idx.failUpsert = 2
	// Batch size 1: first post commits, second fails.
	svc := newTestService(t, src, cat, idx, Options{BatchSize: 1})

	cat.channels["rbc_news"] = &news.Channel{ID: 1, Handle: "rbc_news", Status: news.StatusActive}
	cat.nextID = 1

	result, err := svc.RefreshChannel(context.Background(), "rbc_news")
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if result.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1 committed before failure", result.Indexed)
	}

	ch, _ := cat.GetByHandle(context.Background(), "rbc_news")
	if ch.Status != news.StatusError {
		t.Errorf("Status = %q, want error", ch.Status)
	}
	// Watermark reflects the committed batch only (oldest post, 101).
	want := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if ch.LastPostDate == nil || !ch.LastPostDate.Equal(want) {
		t.Errorf("LastPostDate = %v, want %v", ch.LastPostDate, want)
	}

	// The next refresh picks up where the failed one stopped.
	idx.failUpsert = 0
	result, err = svc.RefreshChannel(context.Background(), "rbc_news")
	if err != nil {
		t.Fatalf("retry RefreshChannel() error = %v", err)
	}
	if result.Indexed != 1 {
		t.Errorf("retry Indexed = %d, want 1", result.Indexed)
	}
	ch, _ = cat.GetByHandle(context.Background(), "rbc_news")
	if ch.Status != news.StatusActive {
		t.Errorf("Status after retry = %q, want active", ch.Status)
	}
}

func TestRefreshChannel_SkipsLedgeredPosts(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{posts: []telegram.Post{
		postAt(105, base.Add(4*time.Hour), "fifth"),
		postAt(104, base.Add(3*time.Hour), "fourth"),
		postAt(103, base.Add(2*time.Hour), "third"),
		postAt(102, base.Add(time.Hour), "second"),
		postAt(101, base, "first"),
	}}
	cat := newFakeCatalog()
	// No watermark: the source re-yields full history, but 101-103 are
	// already in the ledger.
	cat.channels["rbc_news"] = &news.Channel{ID: 1, Handle: "rbc_news", Status: news.StatusActive, PostsCount: 3}
	cat.nextID = 1
	for _, id := range []int64{101, 102, 103} {
		cat.ledger[fmt.Sprintf("1/%d", id)] = true
	}
	idx := newFakeIndex()
	svc := newTestService(t, src, cat, idx, Options{})

	result, err := svc.RefreshChannel(context.Background(), "rbc_news")
	if err != nil {
		t.Fatalf("RefreshChannel() error = %v", err)
	}
	if result.Fetched != 5 {
		t.Errorf("Fetched = %d, want 5", result.Fetched)
	}
	if result.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", result.Indexed)
	}
	// Only the unledgered posts reach the index, in one batch.
	if idx.upserts != 1 {
		t.Errorf("upserts = %d, want 1", idx.upserts)
	}
	if len(idx.docs) != 2 {
		t.Errorf("indexed %d documents, want 2", len(idx.docs))
	}
	for _, id := range []string{"rbc_news_101", "rbc_news_102", "rbc_news_103"} {
		if _, ok := idx.docs[id]; ok {
			t.Errorf("ledgered post %s was re-embedded", id)
		}
	}
}

func TestRefreshChannel_RecoversFromErrorStatus(t *testing.T) {
	src := &fakeSource{posts: nil}
	cat := newFakeCatalog()
	cat.channels["rbc_news"] = &news.Channel{ID: 1, Handle: "rbc_news", Status: news.StatusError}
	cat.nextID = 1
	svc := newTestService(t, src, cat, newFakeIndex(), Options{})

	if _, err := svc.RefreshChannel(context.Background(), "rbc_news"); err != nil {
		t.Fatalf("RefreshChannel() error = %v", err)
	}
	ch, _ := cat.GetByHandle(context.Background(), "rbc_news")
	if ch.Status != news.StatusActive {
		t.Errorf("Status = %q, want active after clean refresh", ch.Status)
	}
}

func TestRefreshChannel_SourceDown(t *testing.T) {
	src := &fakeSource{streamErr: errors.New("timeout")}
	cat := newFakeCatalog()
	cat.channels["rbc_news"] = &news.Channel{ID: 1, Handle: "rbc_news", Status: news.StatusActive}
	cat.nextID = 1
	svc := newTestService(t, src, cat, newFakeIndex(), Options{})

	_, err := svc.RefreshChannel(context.Background(), "rbc_news")
	if !errors.Is(err, news.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
	ch, _ := cat.GetByHandle(context.Background(), "rbc_news")
	if ch.Status != news.StatusError {
		t.Errorf("Status = %q, want error", ch.Status)
	}
}

func TestRefreshChannel_LockHeld(t *testing.T) {
	stateDir := t.TempDir()
	cat := newFakeCatalog()
	cat.channels["rbc_news"] = &news.Channel{ID: 1, Handle: "rbc_news", Status: news.StatusActive}
	cat.nextID = 1
	svc := newTestService(t, &fakeSource{}, cat, newFakeIndex(), Options{StateDir: stateDir})

	fl := flock.New(filepath.Join(stateDir, "refresh-rbc_news.lock"))
	locked, err := fl.TryLock()
	if err != nil || !locked {
		t.Fatalf("taking lock: %v (locked=%v)", err, locked)
	}
	defer func() { _ = fl.Unlock() }()

	_, err = svc.RefreshChannel(context.Background(), "rbc_news")
	if !errors.Is(err, news.ErrRefreshInFlight) {
		t.Errorf("error = %v, want ErrRefreshInFlight", err)
	}
}

func TestRefreshAll_SkipsPaused(t *testing.T) {
	src := &fakeSource{posts: nil}
	cat := newFakeCatalog()
	cat.channels["active_feed"] = &news.Channel{ID: 1, Handle: "active_feed", Status: news.StatusActive}
	cat.channels["paused_feed"] = &news.Channel{ID: 2, Handle: "paused_feed", Status: news.StatusPaused}
	cat.nextID = 2
	svc := newTestService(t, src, cat, newFakeIndex(), Options{})

	results, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if len(results) != 1 || results[0].Handle != "active_feed" {
		t.Fatalf("results = %v, want only active_feed", results)
	}
	ch, _ := cat.GetByHandle(context.Background(), "paused_feed")
	if ch.Status != news.StatusPaused {
		t.Errorf("paused channel status = %q, want untouched", ch.Status)
	}
}

func TestRemoveChannel_Order(t *testing.T) {
	src := &fakeSource{posts: newsPosts()}
	cat := newFakeCatalog()
	idx := newFakeIndex()
	svc := newTestService(t, src, cat, idx, Options{})

	if _, err := svc.AddChannel(context.Background(), "rbc_news", true, 0); err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	cat.calls = nil

	if err := svc.RemoveChannel(context.Background(), "rbc_news"); err != nil {
		t.Fatalf("RemoveChannel() error = %v", err)
	}

	if len(idx.docs) != 0 {
		t.Errorf("%d documents left after removal", len(idx.docs))
	}
	if len(cat.ledger) != 0 {
		t.Errorf("%d ledger rows left after removal", len(cat.ledger))
	}
	if len(cat.channels) != 0 {
		t.Errorf("%d channels left after removal", len(cat.channels))
	}
	// Documents go before the ledger, the channel row goes last.
	want := []string{"delete-ledger", "delete-channel"}
	got := cat.calls
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("catalog calls = %v, want %v", got, want)
	}
	if idx.calls[len(idx.calls)-1] != "delete-docs" {
		t.Errorf("index calls = %v, want delete-docs last", idx.calls)
	}
}

func TestRemoveChannel_Unknown(t *testing.T) {
	svc := newTestService(t, &fakeSource{}, newFakeCatalog(), newFakeIndex(), Options{})
	err := svc.RemoveChannel(context.Background(), "ghost_feed")
	if !errors.Is(err, news.ErrChannelNotFound) {
		t.Errorf("error = %v, want ErrChannelNotFound", err)
	}
}

func TestPauseResume(t *testing.T) {
	cat := newFakeCatalog()
	cat.channels["rbc_news"] = &news.Channel{ID: 1, Handle: "rbc_news", Status: news.StatusActive}
	cat.nextID = 1
	svc := newTestService(t, &fakeSource{}, cat, newFakeIndex(), Options{})

	if err := svc.Pause(context.Background(), "rbc_news"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	ch, _ := cat.GetByHandle(context.Background(), "rbc_news")
	if ch.Status != news.StatusPaused {
		t.Errorf("Status = %q, want paused", ch.Status)
	}

	if err := svc.Resume(context.Background(), "rbc_news"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	ch, _ = cat.GetByHandle(context.Background(), "rbc_news")
	if ch.Status != news.StatusActive {
		t.Errorf("Status = %q, want active", ch.Status)
	}
}
