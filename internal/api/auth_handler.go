package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/metrics"
	"github.com/alecgard/gabelle/internal/user"
)

// UserStore is the slice of the user store consumed by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, in user.CreateUserInput) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	RotateAPIKey(ctx context.Context, id, hash, prefix string) error
	SetProviderKey(ctx context.Context, id, plaintext string) error
}

// authHandler groups authentication and account HTTP handlers.
type authHandler struct {
	store    UserStore
	sessions *scs.SessionManager
	metrics  *metrics.Metrics
}

func newAuthHandler(store UserStore, sessions *scs.SessionManager, m *metrics.Metrics) *authHandler {
	return &authHandler{store: store, sessions: sessions, metrics: m}
}

func (h *authHandler) incAuthFailure() {
	if h.metrics != nil {
		h.metrics.IncAuthFailure("session")
	}
}

func (h *authHandler) incAuthSuccess() {
	if h.metrics != nil {
		h.metrics.IncAuthSuccess("session")
	}
}

// Register handles POST /api/auth/register. A fresh API key is generated
// for the account; the plaintext is returned once and never stored.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "password must be at least 8 characters")
		return
	}

	key, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate api key")
		return
	}

	u, err := h.store.Create(r.Context(), user.CreateUserInput{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		APIKeyHash:   key.Hash,
		APIKeyPrefix: key.Prefix,
	})
	if err != nil {
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}

	if err := auth.SignIn(r.Context(), h.sessions, u.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}
	h.incAuthSuccess()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":   userResponse(u),
		"apiKey": plaintext,
	})
}

// Login handles POST /api/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	u, err := h.store.GetByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		h.incAuthFailure()
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if !user.CheckPassword(u, req.Password) {
		h.incAuthFailure()
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if err := auth.SignIn(r.Context(), h.sessions, u.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}
	h.incAuthSuccess()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": userResponse(u),
	})
}

// Logout handles POST /api/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = auth.SignOut(r.Context(), h.sessions)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

// RotateAPIKey handles POST /api/me/apikey. The old key stops working as
// soon as the new hash is stored.
func (h *authHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	key, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate api key")
		return
	}

	if err := h.store.RotateAPIKey(r.Context(), u.ID, key.Hash, key.Prefix); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to rotate api key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"apiKey":       plaintext,
		"apiKeyPrefix": key.Prefix,
	})
}

// SetProviderKey handles PUT /api/me/provider-key. The key is stored
// encrypted and never echoed back.
func (h *authHandler) SetProviderKey(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "key is required")
		return
	}

	if err := h.store.SetProviderKey(r.Context(), u.ID, req.Key); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store provider key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func userResponse(u *user.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           u.ID,
		"email":        u.Email,
		"name":         u.Name,
		"apiKeyPrefix": u.APIKeyPrefix,
		"createdAt":    u.CreatedAt,
	}
}
