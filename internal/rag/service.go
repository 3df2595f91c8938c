package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// Generator produces text from a system instruction and a prompt.
// Implemented by internal/llm.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// digestQuery seeds the retrieval pool for period digests. The pool is
// then filtered down to the requested period by post date.
const digestQuery = "key news, events and announcements"

const defaultMaxTopics = 5

// Options tune retrieval and digest sizing.
type Options struct {
	// TopK is the default number of context documents per question.
	TopK int
	// MinScore drops retrieval results below this similarity.
	MinScore float64
	// SummaryPoolSize is how many candidate documents a digest pulls
	// before the period filter.
	SummaryPoolSize int
	// SummaryMaxChars caps the digest context block.
	SummaryMaxChars int
}

// Service answers questions and writes period digests.
type Service struct {
	retriever *Retriever
	generator Generator
	opts      Options
	logger    log.Logger
}

// NewService creates a Service. Zero option fields get working defaults.
func NewService(retriever *Retriever, generator Generator, opts Options, logger log.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.SummaryPoolSize <= 0 {
		opts.SummaryPoolSize = 50
	}
	if opts.SummaryMaxChars <= 0 {
		opts.SummaryMaxChars = contextMaxChars
	}
	return &Service{retriever: retriever, generator: generator, opts: opts, logger: logger}
}

// Complete answers one question from the index. When retrieval returns
// nothing the fixed no-information answer comes back directly, without
// a model call.
func (s *Service) Complete(ctx context.Context, req news.CompletionRequest) (news.CompletionResponse, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return news.CompletionResponse{}, news.ErrEmptyQuery
	}
	k := req.TopK
	if k <= 0 {
		k = s.opts.TopK
	}

	results, err := s.retriever.Retrieve(ctx, question, k, req.Channels, s.opts.MinScore)
	if err != nil {
		return news.CompletionResponse{}, err
	}
	if len(results) == 0 {
		return news.CompletionResponse{
			Answer:         noInfoAnswer,
			ProcessingTime: time.Since(start),
		}, nil
	}

	contextBlock, included := buildContext(results, contextMaxChars)
	answer, err := s.generator.Generate(ctx, askSystemPrompt, askPrompt(contextBlock, question))
	if err != nil {
		return news.CompletionResponse{}, err
	}

	resp := news.CompletionResponse{
		Answer:         answer,
		Sources:        sourceRefs(results[:included]),
		ProcessingTime: time.Since(start),
	}
	s.logger.Info("question answered",
		"sources", len(resp.Sources), "duration", resp.ProcessingTime)
	return resp, nil
}

// Summarize builds a digest of posts published inside the closed
// [StartDate, EndDate] interval. Candidates come from one pooled
// retrieval and are filtered to the period by post date; an empty
// period yields the fixed empty digest without a model call.
func (s *Service) Summarize(ctx context.Context, req news.SummaryRequest) (news.SummaryResponse, error) {
	start := time.Now()

	from, to, err := normalizePeriod(req.StartDate, req.EndDate)
	if err != nil {
		return news.SummaryResponse{}, err
	}
	period := formatPeriod(from, to)
	maxTopics := req.MaxTopics
	if maxTopics <= 0 {
		maxTopics = defaultMaxTopics
	}

	pool, err := s.retriever.Retrieve(ctx, digestQuery, s.opts.SummaryPoolSize, req.Channels, 0)
	if err != nil {
		return news.SummaryResponse{}, err
	}

	inPeriod := filterByPeriod(pool, from, to)
	if len(inPeriod) == 0 {
		return news.SummaryResponse{
			Summary:        emptyDigest,
			Period:         period,
			ProcessingTime: time.Since(start),
		}, nil
	}

	// The pool arrives in relevance order, so the character budget is
	// applied first: under pressure the most relevant posts survive.
	// The survivors are then laid out chronologically for the model.
	_, included := buildContext(inPeriod, s.opts.SummaryMaxChars)
	kept := inPeriod[:included]
	sort.SliceStable(kept, func(i, j int) bool {
		return docDate(kept[i]).Before(docDate(kept[j]))
	})
	contextBlock, _ := buildContext(kept, s.opts.SummaryMaxChars)
	summary, err := s.generator.Generate(ctx, digestSystemPrompt, digestPrompt(contextBlock, period, maxTopics))
	if err != nil {
		return news.SummaryResponse{}, err
	}

	resp := news.SummaryResponse{
		Summary:          summary,
		PostsProcessed:   included,
		Period:           period,
		ChannelsIncluded: channelsOf(kept),
		ProcessingTime:   time.Since(start),
	}
	s.logger.Info("digest generated",
		"period", period, "posts", included, "duration", resp.ProcessingTime)
	return resp, nil
}

// normalizePeriod converts the interval to UTC whole days: start floors
// to 00:00:00, end extends to 23:59:59.999999999.
func normalizePeriod(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: both dates are required", news.ErrInvalidPeriod)
	}
	from := truncateDay(start.UTC())
	to := truncateDay(end.UTC()).Add(24*time.Hour - time.Nanosecond)
	if to.Before(from) {
		return time.Time{}, time.Time{}, news.ErrInvalidPeriod
	}
	return from, to, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func filterByPeriod(results []news.SearchResult, from, to time.Time) []news.SearchResult {
	var out []news.SearchResult
	for _, res := range results {
		date := res.Document.Metadata.Date
		if date == nil {
			continue
		}
		d := date.UTC()
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, res)
	}
	return out
}

func sourceRefs(results []news.SearchResult) []news.SourceRef {
	refs := make([]news.SourceRef, 0, len(results))
	for _, res := range results {
		refs = append(refs, news.SourceRef{
			Channel: res.Document.Metadata.Channel,
			Date:    res.Document.Metadata.Date,
			PostID:  res.Document.Metadata.MessageID,
			URL:     res.Document.Metadata.URL,
			Score:   res.Score,
		})
	}
	return refs
}

func channelsOf(results []news.SearchResult) []string {
	seen := make(map[string]struct{})
	var channels []string
	for _, res := range results {
		ch := res.Document.Metadata.Channel
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}
