package cache

import (
	"bytes"
	"net/http"

	"github.com/alecgard/gabelle/internal/auth"
)

// Key builds the cache key for a user's request URL. The user id leads so
// that Invalidate(userID) drops everything cached for that user.
func Key(userID, requestURI string) string {
	return userID + "|" + requestURI
}

// Middleware serves cached copies of successful GET responses, keyed per
// authenticated user and URL. It must run after session authentication.
// Optional observers are invoked with whether the lookup was a hit.
func Middleware(c *Cache, observers ...func(hit bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if r.Method != http.MethodGet || userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(userID, r.URL.RequestURI())
			if body, contentType, ok := c.Get(key); ok {
				for _, observe := range observers {
					observe(true)
				}
				w.Header().Set("Content-Type", contentType)
				w.Header().Set("X-Cache", "hit")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}
			for _, observe := range observers {
				observe(false)
			}

			rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK {
				c.Set(key, rec.buf.Bytes(), rec.Header().Get("Content-Type"))
			}
		})
	}
}

// captureWriter tees the response body so a successful reply can be cached
// after it has been sent.
type captureWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == http.StatusOK {
		w.buf.Write(p)
	}
	return w.ResponseWriter.Write(p)
}
