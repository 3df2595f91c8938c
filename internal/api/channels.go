package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/newshound/newshound/internal/log"
)

const maxBodySize = 1 << 20 // 1MB

type channelHandler struct {
	ingest Ingest
	logger log.Logger
}

type addChannelRequest struct {
	Handle string `json:"handle"`
	// IndexPosts defaults to true when omitted: adding a channel
	// normally runs its initial indexing.
	IndexPosts *bool `json:"index_posts"`
	PostsLimit int   `json:"posts_limit"`
}

func (h *channelHandler) list(w http.ResponseWriter, r *http.Request) {
	channels, err := h.ingest.Channels(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    len(channels),
	}, h.logger)
}

func (h *channelHandler) get(w http.ResponseWriter, r *http.Request) {
	ch, err := h.ingest.Channel(r.Context(), r.PathValue("handle"))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, ch, h.logger)
}

func (h *channelHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addChannelRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	indexPosts := req.IndexPosts == nil || *req.IndexPosts
	ch, err := h.ingest.AddChannel(r.Context(), req.Handle, indexPosts, req.PostsLimit)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, ch, h.logger)
}

func (h *channelHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.ingest.RemoveChannel(r.Context(), r.PathValue("handle")); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"}, h.logger)
}

func (h *channelHandler) refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingest.RefreshChannel(r.Context(), r.PathValue("handle"))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result, h.logger)
}

func (h *channelHandler) refreshAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.ingest.RefreshAll(r.Context())
	if err != nil {
		// Partial results still go back; refreshAll only fails entirely
		// when listing channels fails.
		if len(results) == 0 {
			writeDomainError(w, err, h.logger)
			return
		}
		h.logger.Warn("refresh sweep finished with failures", "error", err)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"errors":  errorStrings(err),
	}, h.logger)
}

func (h *channelHandler) pause(w http.ResponseWriter, r *http.Request) {
	if err := h.ingest.Pause(r.Context(), r.PathValue("handle")); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "paused"}, h.logger)
}

func (h *channelHandler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.ingest.Resume(r.Context(), r.PathValue("handle")); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "active"}, h.logger)
}

// decodeBody reads and decodes a bounded JSON body, answering the
// request itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger log.Logger) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
		case errors.Is(err, io.EOF):
			WriteError(w, http.StatusBadRequest, "empty_body", "request body is required", logger)
		default:
			WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", logger)
		}
		return false
	}
	return true
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
