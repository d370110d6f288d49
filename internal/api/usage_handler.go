package api

import (
	"net/http"
	"strings"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/cache"
	"github.com/alecgard/gabelle/internal/usage"
)

// UsageRecorder accepts usage events for asynchronous persistence.
type UsageRecorder interface {
	Record(in usage.RecordInput)
}

// usageHandler accepts usage events over the API-key authenticated
// ingest endpoint.
type usageHandler struct {
	recorder UsageRecorder
	cache    *cache.Cache
}

func newUsageHandler(recorder UsageRecorder, c *cache.Cache) *usageHandler {
	return &usageHandler{recorder: recorder, cache: c}
}

// Ingest handles POST /api/usage. Events are buffered and written in the
// background, so a 202 here does not guarantee durability.
func (h *usageHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req struct {
		AssistantID      string         `json:"assistantId"`
		ThreadID         string         `json:"threadId"`
		Model            string         `json:"model"`
		PromptTokens     int64          `json:"promptTokens"`
		CompletionTokens int64          `json:"completionTokens"`
		RequestType      string         `json:"requestType"`
		Success          *bool          `json:"success"`
		ErrorMessage     string         `json:"errorMessage"`
		Metadata         map[string]any `json:"metadata"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if strings.TrimSpace(req.Model) == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "model is required")
		return
	}
	if req.PromptTokens < 0 || req.CompletionTokens < 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "token counts must be non-negative")
		return
	}

	success := true
	if req.Success != nil {
		success = *req.Success
	}

	h.recorder.Record(usage.RecordInput{
		UserID:           userID,
		AssistantID:      req.AssistantID,
		ThreadID:         req.ThreadID,
		Model:            req.Model,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		RequestType:      req.RequestType,
		Success:          success,
		ErrorMessage:     req.ErrorMessage,
		Metadata:         req.Metadata,
	})

	// Cached analytics responses for this user are now stale.
	if h.cache != nil {
		h.cache.Invalidate(userID)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
