package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

type queryHandler struct {
	rag    RAG
	index  SearchIndex
	logger log.Logger
}

func (h *queryHandler) complete(w http.ResponseWriter, r *http.Request) {
	var req news.CompletionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	resp, err := h.rag.Complete(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, resp, h.logger)
}

// summaryPayload accepts both date-only and RFC 3339 timestamps.
type summaryPayload struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Channels  []string `json:"channels,omitempty"`
	MaxTopics int      `json:"max_topics,omitempty"`
}

func (h *queryHandler) summarize(w http.ResponseWriter, r *http.Request) {
	var payload summaryPayload
	if !decodeBody(w, r, &payload, h.logger) {
		return
	}

	start, err := parseDate(payload.StartDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD or RFC 3339", h.logger)
		return
	}
	end, err := parseDate(payload.EndDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD or RFC 3339", h.logger)
		return
	}

	resp, err := h.rag.Summarize(r.Context(), news.SummaryRequest{
		StartDate: start,
		EndDate:   end,
		Channels:  payload.Channels,
		MaxTopics: payload.MaxTopics,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, resp, h.logger)
}

func (h *queryHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		WriteError(w, http.StatusBadRequest, "empty_query", "query parameter q is required", h.logger)
		return
	}
	k := 10
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			WriteError(w, http.StatusBadRequest, "invalid_k", "k must be an integer between 1 and 100", h.logger)
			return
		}
		k = parsed
	}
	channel := r.URL.Query().Get("channel")

	results, err := h.index.Search(r.Context(), query, k, channel)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	type hit struct {
		ID      string        `json:"id"`
		Content string        `json:"content"`
		Meta    news.Metadata `json:"metadata"`
		Score   float64       `json:"score"`
	}
	hits := make([]hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, hit{
			ID:      res.Document.ID,
			Content: res.Document.Content,
			Meta:    res.Document.Metadata,
			Score:   res.Score,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"total":   len(hits),
	}, h.logger)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
