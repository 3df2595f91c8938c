package news

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion/retrieval/generation pipeline.
// Callers branch with errors.Is; adapters wrap these with context using
// fmt.Errorf("...: %w", err) so every failure keeps its taxonomy kind.
var (
	// ErrChannelNotFound indicates an unknown channel handle.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrChannelExists indicates a duplicate handle on add.
	ErrChannelExists = errors.New("channel already exists")

	// ErrInvalidChannel indicates a malformed, private, or nonexistent
	// channel handle.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrSourceUnavailable indicates a transient failure reaching the channel
	// source (network, rate limit, upstream outage).
	ErrSourceUnavailable = errors.New("channel source unavailable")

	// ErrRetrievalFailed indicates the vector index could not be queried.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationFailed indicates the generative model could not produce
	// output.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrGenerationTimeout is the timeout sub-kind of ErrGenerationFailed;
	// errors.Is matches it against both sentinels.
	ErrGenerationTimeout = fmt.Errorf("%w: timed out", ErrGenerationFailed)

	// ErrGenerationRateLimited is the rate-limit sub-kind of
	// ErrGenerationFailed.
	ErrGenerationRateLimited = fmt.Errorf("%w: rate limited", ErrGenerationFailed)

	// ErrRefreshInFlight indicates another refresh already holds the
	// per-channel lock.
	ErrRefreshInFlight = errors.New("refresh already in flight for channel")

	// ErrEmptyQuery indicates a blank question or search query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidPeriod indicates a digest interval whose end precedes its
	// start.
	ErrInvalidPeriod = errors.New("invalid period: end date precedes start date")
)
