package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/alecgard/gabelle/internal/user"
	"github.com/alexedwards/scs/v2"
)

type contextKey int

const userContextKey contextKey = iota

// ContextWithUser returns a new context carrying the given user.
func ContextWithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext extracts the user from the context, or nil if not present.
func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userContextKey).(*user.User)
	return u
}

// UserIDFromContext returns the authenticated user's id, or an empty string.
func UserIDFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}

// UserLookup is the interface for resolving user ids to accounts.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// APIKeyLookup is the interface for resolving ingest API key hashes to
// accounts.
type APIKeyLookup interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (*user.User, error)
}

// RequireSession returns middleware that authenticates requests via the
// session cookie. The user id stored in the session is resolved to an
// account and injected into the request context; requests without a valid
// session receive 401. Handlers never accept a caller-supplied user id.
func RequireSession(sm *scs.SessionManager, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := SessionUserID(r.Context(), sm)
			if userID == "" {
				writeUnauthorized(w, "authentication required")
				return
			}

			u, err := users.GetByID(r.Context(), userID)
			if err != nil || u == nil {
				// Stale session for a deleted account.
				_ = sm.Destroy(r.Context())
				writeUnauthorized(w, "invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
		})
	}
}

// RequireAPIKey returns middleware that authenticates usage-ingest requests
// via an API key, supplied either in the X-API-Key header or as a bearer
// token.
func RequireAPIKey(users APIKeyLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeUnauthorized(w, "missing api key")
				return
			}

			u, err := users.GetByAPIKeyHash(r.Context(), HashKey(key))
			if err != nil || u == nil {
				writeUnauthorized(w, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
