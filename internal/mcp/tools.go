package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/newshound/newshound/internal/news"
)

// AskInput is the input schema for the ask_news tool.
type AskInput struct {
	Question string   `json:"question" jsonschema:"Natural-language question to answer from indexed posts"`
	TopK     int      `json:"top_k,omitempty" jsonschema:"How many posts to use as context (default 5)"`
	Channels []string `json:"channels,omitempty" jsonschema:"Restrict the answer to these channel handles"`
}

// SummarizeInput is the input schema for the summarize_period tool.
type SummarizeInput struct {
	StartDate string   `json:"start_date" jsonschema:"Period start in YYYY-MM-DD"`
	EndDate   string   `json:"end_date" jsonschema:"Period end in YYYY-MM-DD (inclusive)"`
	Channels  []string `json:"channels,omitempty" jsonschema:"Restrict the digest to these channel handles"`
	MaxTopics int      `json:"max_topics,omitempty" jsonschema:"Maximum topics in the digest (default 5)"`
}

// SearchInput is the input schema for the search_posts tool.
type SearchInput struct {
	Query   string `json:"query" jsonschema:"Text to search for by semantic similarity"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"How many posts to return (default 10)"`
	Channel string `json:"channel,omitempty" jsonschema:"Restrict the search to one channel handle"`
}

// ListChannelsInput is the (empty) input schema for list_channels.
type ListChannelsInput struct{}

func (s *Server) registerTools() error {
	askSchema, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("schema for ask_news: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "ask_news",
		Description: "Answer a question from posts of the tracked Telegram channels. " +
			"The answer is grounded in retrieved posts and cites its sources.",
		InputSchema: askSchema,
	}, s.askNews)

	summarizeSchema, err := jsonschema.For[SummarizeInput](nil)
	if err != nil {
		return fmt.Errorf("schema for summarize_period: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "summarize_period",
		Description: "Build a topical digest of posts published inside a date interval, " +
			"grouped by significance.",
		InputSchema: summarizeSchema,
	}, s.summarizePeriod)

	searchSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for search_posts: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "search_posts",
		Description: "Find posts by semantic similarity without generating an answer. " +
			"Returns raw posts with channel, date and relevance score.",
		InputSchema: searchSchema,
	}, s.searchPosts)

	listSchema, err := jsonschema.For[ListChannelsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for list_channels: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_channels",
		Description: "List the tracked Telegram channels with status and post counts.",
		InputSchema: listSchema,
	}, s.listChannels)

	return nil
}

func (s *Server) askNews(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
	resp, err := s.rag.Complete(ctx, news.CompletionRequest{
		Question: in.Question,
		TopK:     in.TopK,
		Channels: in.Channels,
	})
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(resp)
}

func (s *Server) summarizePeriod(ctx context.Context, _ *mcp.CallToolRequest, in SummarizeInput) (*mcp.CallToolResult, any, error) {
	start, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return toolError(fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)), nil, nil
	}
	end, err := time.Parse("2006-01-02", in.EndDate)
	if err != nil {
		return toolError(fmt.Errorf("end_date must be YYYY-MM-DD: %w", err)), nil, nil
	}

	resp, err := s.rag.Summarize(ctx, news.SummaryRequest{
		StartDate: start,
		EndDate:   end,
		Channels:  in.Channels,
		MaxTopics: in.MaxTopics,
	})
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(resp)
}

func (s *Server) searchPosts(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	k := in.TopK
	if k <= 0 {
		k = 10
	}
	results, err := s.index.Search(ctx, in.Query, k, in.Channel)
	if err != nil {
		return toolError(err), nil, nil
	}

	type post struct {
		Channel string     `json:"channel"`
		Date    *time.Time `json:"date,omitempty"`
		URL     string     `json:"url,omitempty"`
		Content string     `json:"content"`
		Score   float64    `json:"score"`
	}
	posts := make([]post, 0, len(results))
	for _, res := range results {
		posts = append(posts, post{
			Channel: res.Document.Metadata.Channel,
			Date:    res.Document.Metadata.Date,
			URL:     res.Document.Metadata.URL,
			Content: res.Document.Content,
			Score:   res.Score,
		})
	}
	return jsonResult(map[string]any{"posts": posts, "total": len(posts)})
}

func (s *Server) listChannels(ctx context.Context, _ *mcp.CallToolRequest, _ ListChannelsInput) (*mcp.CallToolResult, any, error) {
	channels, err := s.catalog.Channels(ctx)
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(map[string]any{"channels": channels, "total": len(channels)})
}

// jsonResult renders a tool response as one JSON text block.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolError reports a domain failure as a tool-level error so the
// client model can react to it instead of the transport failing.
func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
