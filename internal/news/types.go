// Package news defines the core domain model for NewsHound: tracked Telegram
// channels, the documents extracted from their posts, and the value objects
// exchanged by the retrieval and generation orchestrators.
//
// The package has no dependencies. Orchestrators and adapters in
// sibling packages consume these types; none of them are persisted directly,
// the catalog and the vector index each own their own storage mapping.
package news

import (
	"fmt"
	"time"
)

// ChannelStatus is the lifecycle state of a tracked channel.
type ChannelStatus string

const (
	// StatusActive means the channel is indexed and available for refresh.
	StatusActive ChannelStatus = "active"

	// StatusPaused means monitoring is suspended by an external scheduler.
	// No orchestrator transitions into or out of this state.
	StatusPaused ChannelStatus = "paused"

	// StatusIndexing is the transient state while an ingestion run is in flight.
	StatusIndexing ChannelStatus = "indexing"

	// StatusError means the last ingestion run failed. A successful refresh
	// returns the channel to StatusActive.
	StatusError ChannelStatus = "error"
)

// Channel is a tracked Telegram channel.
//
// Handle is the globally unique, case-sensitive slug (without the "@").
// LastPostDate is the ingestion watermark: the publish time of the most recent
// successfully committed post. It only ever advances.
type Channel struct {
	ID           int64         `json:"id"`
	TelegramID   int64         `json:"telegram_id,omitempty"` // external numeric id, 0 when unknown
	Handle       string        `json:"handle"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Link         string        `json:"link"`
	Status       ChannelStatus `json:"status"`
	PostsCount   int           `json:"posts_count"`
	LastPostDate *time.Time    `json:"last_post_date,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Mention returns the @-prefixed form of the channel handle.
func (c *Channel) Mention() string { return "@" + c.Handle }

// Metadata carries the source attributes of a document.
type Metadata struct {
	Source    string     `json:"source"`
	Channel   string     `json:"channel"`
	ChannelID int64      `json:"channel_id,omitempty"`
	MessageID int64      `json:"message_id,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	URL       string     `json:"url,omitempty"`
	Views     int64      `json:"views,omitempty"`
}

// Document is a unit of retrievable content extracted from a channel post.
//
// The ID is derived deterministically from the channel handle and the source
// message id ("{handle}_{messageID}"), which makes re-indexing idempotent.
// Content is never empty: posts without extractable text either carry a
// synthetic media placeholder or are skipped at the source.
// Documents are immutable after creation.
type Document struct {
	ID        string
	Content   string
	Metadata  Metadata
	Embedding []float32 // optional precomputed vector
}

// DocumentID builds the deterministic document id for a channel post.
func DocumentID(handle string, messageID int64) string {
	return fmt.Sprintf("%s_%d", handle, messageID)
}

// SearchResult pairs a document with its relevance score.
// Scores are cosine similarities in [0, 1], higher is more relevant.
// Results are ephemeral and never persisted.
type SearchResult struct {
	Document Document
	Score    float64
}

// SourceRef is a citation attached to a generated answer.
type SourceRef struct {
	Channel string     `json:"channel"`
	Date    *time.Time `json:"date,omitempty"`
	PostID  int64      `json:"post_id,omitempty"`
	URL     string     `json:"url,omitempty"`
	Score   float64    `json:"relevance_score"`
}

// CompletionRequest asks a single natural-language question over the index.
type CompletionRequest struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k,omitempty"`    // context documents, default 5
	Channels []string `json:"channels,omitempty"` // allow-list, nil = all
}

// CompletionResponse is the answer to a CompletionRequest.
type CompletionResponse struct {
	Answer         string        `json:"answer"`
	Sources        []SourceRef   `json:"sources"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// SummaryRequest asks for a digest of posts published inside a closed
// [StartDate, EndDate] interval.
type SummaryRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Channels  []string  `json:"channels,omitempty"`
	MaxTopics int       `json:"max_topics,omitempty"` // default 5
}

// SummaryResponse is the generated period digest.
//
// Topics may be empty: topic structuring is delegated entirely to the
// generative model's output format, the orchestrator does not parse it back.
type SummaryResponse struct {
	Summary          string        `json:"summary"`
	PostsProcessed   int           `json:"posts_processed"`
	Period           string        `json:"period"`
	Topics           []string      `json:"topics"`
	ChannelsIncluded []string      `json:"channels_included"`
	ProcessingTime   time.Duration `json:"processing_time"`
}
