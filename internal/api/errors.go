package api

import (
	"errors"
	"net/http"

	"github.com/newshound/newshound/internal/log"
	"github.com/newshound/newshound/internal/news"
)

// writeDomainError maps pipeline error kinds onto HTTP statuses. The
// error message sent to the client is the sentinel's text, not the full
// wrapped chain.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	switch {
	case errors.Is(err, news.ErrChannelNotFound):
		WriteError(w, http.StatusNotFound, "channel_not_found", news.ErrChannelNotFound.Error(), logger)
	case errors.Is(err, news.ErrChannelExists):
		WriteError(w, http.StatusConflict, "channel_exists", news.ErrChannelExists.Error(), logger)
	case errors.Is(err, news.ErrRefreshInFlight):
		WriteError(w, http.StatusConflict, "refresh_in_flight", news.ErrRefreshInFlight.Error(), logger)
	case errors.Is(err, news.ErrInvalidChannel):
		WriteError(w, http.StatusBadRequest, "invalid_channel", news.ErrInvalidChannel.Error(), logger)
	case errors.Is(err, news.ErrEmptyQuery):
		WriteError(w, http.StatusBadRequest, "empty_query", news.ErrEmptyQuery.Error(), logger)
	case errors.Is(err, news.ErrInvalidPeriod):
		WriteError(w, http.StatusBadRequest, "invalid_period", news.ErrInvalidPeriod.Error(), logger)
	case errors.Is(err, news.ErrGenerationRateLimited):
		WriteError(w, http.StatusTooManyRequests, "rate_limited", news.ErrGenerationRateLimited.Error(), logger)
	case errors.Is(err, news.ErrGenerationTimeout):
		WriteError(w, http.StatusGatewayTimeout, "generation_timeout", news.ErrGenerationTimeout.Error(), logger)
	case errors.Is(err, news.ErrGenerationFailed):
		WriteError(w, http.StatusBadGateway, "generation_failed", news.ErrGenerationFailed.Error(), logger)
	case errors.Is(err, news.ErrSourceUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "source_unavailable", news.ErrSourceUnavailable.Error(), logger)
	default:
		logger.Error("unhandled request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
