package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sessionUserKey is the session key holding the authenticated user's id.
const sessionUserKey = "userID"

// APIKey holds the hashed ingest key and a short prefix for identification.
type APIKey struct {
	Hash   string
	Prefix string // first 15 characters of the plaintext key
}

// NewSessionManager creates a cookie session manager backed by the sessions
// table in the given pool.
func NewSessionManager(pool *pgxpool.Pool, lifetime time.Duration, secure bool) *scs.SessionManager {
	sm := scs.New()
	sm.Store = pgxstore.New(pool)
	sm.Lifetime = lifetime
	sm.Cookie.Secure = secure
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	return sm
}

// SignIn rotates the session token and binds the session to the user.
func SignIn(ctx context.Context, sm *scs.SessionManager, userID string) error {
	if err := sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}
	sm.Put(ctx, sessionUserKey, userID)
	return nil
}

// SignOut destroys the current session.
func SignOut(ctx context.Context, sm *scs.SessionManager) error {
	return sm.Destroy(ctx)
}

// SessionUserID returns the user id bound to the current session, or an
// empty string when the session is anonymous.
func SessionUserID(ctx context.Context, sm *scs.SessionManager) string {
	return sm.GetString(ctx, sessionUserKey)
}

// GenerateAPIKey creates a new ingest API key with the "gabelle_" prefix
// followed by 32 URL-safe random characters. It returns the APIKey struct
// (containing the hash and prefix) and the full plaintext key.
func GenerateAPIKey() (APIKey, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return APIKey{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	random := base64.RawURLEncoding.EncodeToString(b)
	plaintext := "gabelle_" + random

	key := APIKey{
		Hash:   HashKey(plaintext),
		Prefix: plaintext[:15],
	}

	return key, plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
