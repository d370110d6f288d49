package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/usage"
)

// UsageReader is the slice of the usage store consumed by the analytics
// handlers. It exists to allow testing without a real database.
type UsageReader interface {
	List(ctx context.Context, userID string, q usage.Query) ([]usage.Record, error)
	ListAscending(ctx context.Context, userID string, from, to time.Time) ([]usage.Record, error)
}

// analyticsHandler groups the usage analytics HTTP handlers.
type analyticsHandler struct {
	store UsageReader
}

func newAnalyticsHandler(store UsageReader) *analyticsHandler {
	return &analyticsHandler{store: store}
}

// parseTimeParam parses a date query param in YYYY-MM-DD or RFC3339 format.
func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// Try RFC3339 first.
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	// Fall back to date-only.
	t, err = time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// parseIntParam parses a non-negative integer query param, treating an
// absent value as zero. Malformed or negative values are rejected rather
// than silently coerced.
func parseIntParam(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// buildQuery constructs a usage.Query from the request's query parameters.
func buildQuery(r *http.Request) (usage.Query, bool) {
	var q usage.Query

	from, err := parseTimeParam(r.URL.Query().Get("startDate"))
	if err != nil {
		return q, false
	}
	q.From = from

	to, err := parseTimeParam(r.URL.Query().Get("endDate"))
	if err != nil {
		return q, false
	}
	q.To = to

	limit, ok := parseIntParam(r.URL.Query().Get("limit"))
	if !ok {
		return q, false
	}
	q.Limit = limit

	offset, ok := parseIntParam(r.URL.Query().Get("offset"))
	if !ok {
		return q, false
	}
	q.Offset = offset

	return q, true
}

// GetUsage handles GET /api/analytics/usage. The user id always comes from
// the authenticated session, never from the caller.
func (h *analyticsHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	q, ok := buildQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters")
		return
	}

	records, err := h.store.List(r.Context(), auth.UserIDFromContext(r.Context()), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list usage records")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// GetSummary handles GET /api/analytics/summary. A malformed groupBy value
// falls back to day grouping rather than being rejected.
func (h *analyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := buildQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters")
		return
	}
	groupBy := usage.ParseGroupBy(r.URL.Query().Get("groupBy"))

	records, err := h.store.ListAscending(r.Context(), auth.UserIDFromContext(r.Context()), q.From, q.To)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute usage summary")
		return
	}

	writeJSON(w, http.StatusOK, usage.Summarize(records, groupBy))
}
