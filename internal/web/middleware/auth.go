package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/logging"
)

type contextKey string

const sessionContextKey contextKey = "session"

// RequireAuth is middleware that requires a valid session
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
		})
	}
}

// OptionalAuth attaches the session when present and never rejects.
func OptionalAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session := sm.GetSessionFromRequest(r); session != nil {
				r = r.WithContext(withSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withSession(ctx context.Context, session *Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return logging.WithLogger(ctx, logging.FromContext(ctx).With(zap.String("user_id", session.UserID)))
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// SetSessionInContext adds a session to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
