// internal/middleware/session.go
package middleware

import (
	"context"
	"net/http"

	"github.com/jason-s-yu/cardclash/internal/auth"
)

type ctxKey int

const sessionKey ctxKey = iota

// RequireSession rejects requests without a valid auth_token cookie and stores
// the session on the request context.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.CookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		s, err := auth.AuthenticateJWT(cookie.Value)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, s)))
	})
}

// SessionFrom returns the session RequireSession attached.
func SessionFrom(ctx context.Context) (auth.Session, bool) {
	s, ok := ctx.Value(sessionKey).(auth.Session)
	return s, ok
}
