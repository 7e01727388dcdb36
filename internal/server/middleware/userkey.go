// Package middleware provides HTTP middleware for carrying the workshop user key.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/jonathan/problem-workshop/internal/userkey"
)

// CookieName is the cookie holding the active user key.
const CookieName = "workshop_user_key"

// cookieMaxAge keeps the key across browser restarts.
const cookieMaxAge = 365 * 24 * time.Hour

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// userKeyKey is the context key for storing the active user key.
const userKeyKey ContextKey = "userKey"

// UserKey creates middleware that reads the user key cookie and adds it to the request
// context. Missing or malformed keys are left out, so handlers fall back to code entry.
func UserKey() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			key := userkey.Normalize(cookie.Value)
			if !userkey.Valid(key) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithUserKey(r.Context(), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserKey returns a copy of ctx carrying key.
func WithUserKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, userKeyKey, key)
}

// GetUserKey extracts the active user key from the request context.
func GetUserKey(r *http.Request) (string, bool) {
	key, ok := r.Context().Value(userKeyKey).(string)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// SetUserKeyCookie stores key in the response so later requests resume with it.
func SetUserKeyCookie(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
