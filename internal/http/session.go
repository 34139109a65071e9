package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	SessionHeader   = "X-Session-ID"
	maxSessionIDLen = 128
)

type sessionKeyCtx struct{}

// SessionMiddleware resolves the caller's session key from the X-Session-ID
// header, then the session cookie. Callers with neither get a fresh key,
// issued as a cookie and echoed in the header.
func SessionMiddleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(SessionHeader))
			if key == "" {
				if c, err := r.Cookie(cookieName); err == nil {
					key = strings.TrimSpace(c.Value)
				}
			}
			if key == "" || len(key) > maxSessionIDLen {
				key = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    key,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			w.Header().Set(SessionHeader, key)
			ctx := context.WithValue(r.Context(), sessionKeyCtx{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSessionKey(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKeyCtx{}).(string); ok {
		return key
	}
	return ""
}
