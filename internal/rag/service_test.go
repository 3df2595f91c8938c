package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

type fakeGenerator struct {
	answer     string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestService(results map[string][]news.SearchResult, gen *fakeGenerator, opts Options) *Service {
	searcher := &fakeSearcher{byChannel: results}
	return NewService(NewRetriever(searcher, log.NewNop()), gen, opts, log.NewNop())
}

func TestComplete(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	gen := &fakeGenerator{answer: "The central bank raised rates."}
	svc := newTestService(map[string][]news.SearchResult{
		"": {
			resultAt("rbc_news_100", "rbc_news", 0.9, base),
			resultAt("biz_feed_200", "biz_feed", 0.7, base),
		},
	}, gen, Options{})

	resp, err := svc.Complete(context.Background(), news.CompletionRequest{Question: "what happened to rates?"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Answer != "The central bank raised rates." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(resp.Sources))
	}
	if resp.Sources[0].Channel != "rbc_news" || resp.Sources[0].Score != 0.9 {
		t.Errorf("Sources[0] = %+v", resp.Sources[0])
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
	if !strings.Contains(gen.lastPrompt, "[rbc_news, 2026-08-29 10:00]") {
		t.Errorf("prompt missing tagged context:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "what happened to rates?") {
		t.Errorf("prompt missing question:\n%s", gen.lastPrompt)
	}
}

func TestComplete_EmptyQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(nil, gen, Options{})
	_, err := svc.Complete(context.Background(), news.CompletionRequest{Question: "  "})
	if !errors.Is(err, news.ErrEmptyQuery) {
		t.Errorf("error = %v, want ErrEmptyQuery", err)
	}
}

func TestComplete_NoResultsSkipsModel(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(map[string][]news.SearchResult{}, gen, Options{})

	resp, err := svc.Complete(context.Background(), news.CompletionRequest{Question: "anything?"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Answer != noInfoAnswer {
		t.Errorf("Answer = %q, want the fixed no-information answer", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("Sources = %v, want none", resp.Sources)
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", gen.calls)
	}
}

func TestComplete_GenerationFails(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	gen := &fakeGenerator{err: news.ErrGenerationTimeout}
	svc := newTestService(map[string][]news.SearchResult{
		"": {resultAt("rbc_news_100", "rbc_news", 0.9, base)},
	}, gen, Options{})

	_, err := svc.Complete(context.Background(), news.CompletionRequest{Question: "rates?"})
	if !errors.Is(err, news.ErrGenerationTimeout) {
		t.Errorf("error = %v, want ErrGenerationTimeout", err)
	}
}

func TestSummarize(t *testing.T) {
	inPeriod := time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)
	inPeriodLater := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
	outOfPeriod := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	gen := &fakeGenerator{answer: "Digest: rates dominated the week."}
	svc := newTestService(map[string][]news.SearchResult{
		"": {
			resultAt("rbc_news_300", "rbc_news", 0.9, outOfPeriod),
			resultAt("rbc_news_100", "rbc_news", 0.8, inPeriodLater),
			resultAt("biz_feed_200", "biz_feed", 0.7, inPeriod),
		},
	}, gen, Options{})

	resp, err := svc.Summarize(context.Background(), news.SummaryRequest{
		StartDate: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if resp.Summary != "Digest: rates dominated the week." {
		t.Errorf("Summary = %q", resp.Summary)
	}
	if resp.PostsProcessed != 2 {
		t.Errorf("PostsProcessed = %d, want 2", resp.PostsProcessed)
	}
	if resp.Period != "20.08.2026 — 21.08.2026" {
		t.Errorf("Period = %q", resp.Period)
	}
	if len(resp.ChannelsIncluded) != 2 || resp.ChannelsIncluded[0] != "biz_feed" {
		t.Errorf("ChannelsIncluded = %v", resp.ChannelsIncluded)
	}
	// Context reads chronologically: the older post comes first.
	older := strings.Index(gen.lastPrompt, "biz_feed_200")
	newer := strings.Index(gen.lastPrompt, "rbc_news_100")
	if older == -1 || newer == -1 || older > newer {
		t.Errorf("digest context not chronological:\n%s", gen.lastPrompt)
	}
	if strings.Contains(gen.lastPrompt, "rbc_news_300") {
		t.Errorf("out-of-period post leaked into context:\n%s", gen.lastPrompt)
	}
}

func TestSummarize_BudgetKeepsMostRelevant(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	top := resultAt("rbc_news_301", "rbc_news", 0.99, day.Add(10*time.Hour))
	top.Document.Content = strings.Repeat("t", 120)
	mid := resultAt("rbc_news_201", "rbc_news", 0.30, day.Add(2*time.Hour))
	mid.Document.Content = strings.Repeat("m", 120)
	low := resultAt("biz_feed_101", "biz_feed", 0.20, day.Add(time.Hour))
	low.Document.Content = strings.Repeat("l", 120)

	gen := &fakeGenerator{answer: "digest"}
	// Budget fits two entries: the lowest-scoring post is the one cut.
	svc := newTestService(map[string][]news.SearchResult{
		"": {top, mid, low},
	}, gen, Options{SummaryMaxChars: 300})

	resp, err := svc.Summarize(context.Background(), news.SummaryRequest{
		StartDate: day,
		EndDate:   day,
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if resp.PostsProcessed != 2 {
		t.Errorf("PostsProcessed = %d, want 2", resp.PostsProcessed)
	}
	if !strings.Contains(gen.lastPrompt, "ttt") {
		t.Errorf("most relevant post cut under budget pressure:\n%s", gen.lastPrompt)
	}
	if strings.Contains(gen.lastPrompt, "lll") {
		t.Errorf("least relevant post survived the budget:\n%s", gen.lastPrompt)
	}
	// The survivors still read chronologically.
	older := strings.Index(gen.lastPrompt, "mmm")
	newer := strings.Index(gen.lastPrompt, "ttt")
	if older == -1 || newer == -1 || older > newer {
		t.Errorf("surviving context not chronological:\n%s", gen.lastPrompt)
	}
	if len(resp.ChannelsIncluded) != 1 || resp.ChannelsIncluded[0] != "rbc_news" {
		t.Errorf("ChannelsIncluded = %v, want only rbc_news", resp.ChannelsIncluded)
	}
}

func TestSummarize_EmptyPeriodSkipsModel(t *testing.T) {
	farAway := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	gen := &fakeGenerator{}
	svc := newTestService(map[string][]news.SearchResult{
		"": {resultAt("rbc_news_100", "rbc_news", 0.9, farAway)},
	}, gen, Options{})

	resp, err := svc.Summarize(context.Background(), news.SummaryRequest{
		StartDate: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if resp.Summary != emptyDigest {
		t.Errorf("Summary = %q, want the fixed empty digest", resp.Summary)
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", gen.calls)
	}
}

func TestSummarize_InvalidPeriod(t *testing.T) {
	svc := newTestService(nil, &fakeGenerator{}, Options{})
	_, err := svc.Summarize(context.Background(), news.SummaryRequest{
		StartDate: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, news.ErrInvalidPeriod) {
		t.Errorf("error = %v, want ErrInvalidPeriod", err)
	}
}

func TestSummarize_ClosedInterval(t *testing.T) {
	// A post late on the end date still belongs to the period.
	endOfDay := time.Date(2026, 8, 21, 23, 30, 0, 0, time.UTC)
	gen := &fakeGenerator{answer: "digest"}
	svc := newTestService(map[string][]news.SearchResult{
		"": {resultAt("rbc_news_100", "rbc_news", 0.9, endOfDay)},
	}, gen, Options{})

	resp, err := svc.Summarize(context.Background(), news.SummaryRequest{
		StartDate: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if resp.PostsProcessed != 1 {
		t.Errorf("PostsProcessed = %d, want 1", resp.PostsProcessed)
	}
}

func TestBuildContext_Budget(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	long := resultAt("a_1", "a", 0.9, base)
	long.Document.Content = strings.Repeat("x", 120)
	second := resultAt("a_2", "a", 0.8, base)
	second.Document.Content = strings.Repeat("y", 120)

	block, included := buildContext([]news.SearchResult{long, second}, 200)
	if included != 1 {
		t.Errorf("included = %d, want 1 under tight budget", included)
	}
	if !strings.Contains(block, "xxx") || strings.Contains(block, "yyy") {
		t.Errorf("unexpected context: %q", block)
	}

	// The first entry always lands even when it alone exceeds the budget.
	block, included = buildContext([]news.SearchResult{long}, 10)
	if included != 1 || block == "" {
		t.Errorf("included = %d, block = %q; first entry must survive", included, block)
	}
}
