package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/logging"
)

const sessionCookieName = "sketch_match_session"

// Session represents a user session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager handles session creation and validation. Sessions are cached
// in memory and written through to repo when one is configured.
type SessionManager struct {
	secret   []byte
	sessions map[string]*Session
	mu       sync.RWMutex
	repo     database.SessionRepository
	onRemove func(sessionID string)

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a new session manager. repo may be nil.
func NewSessionManager(secret string, repo database.SessionRepository) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "sketch-match-dev-secret-change-in-production"
	}
	sm := &SessionManager{
		secret:   []byte(secret),
		sessions: make(map[string]*Session),
		repo:     repo,
		stop:     make(chan struct{}),
	}
	go sm.cleanupLoop(constants.SessionCleanupInterval)
	return sm
}

// OnRemove registers fn to run with the id of every session that is deleted
// or expires out of the cache.
func (sm *SessionManager) OnRemove(fn func(sessionID string)) {
	sm.mu.Lock()
	sm.onRemove = fn
	sm.mu.Unlock()
}

// CreateSession creates a new session for a user
func (sm *SessionManager) CreateSession(ctx context.Context, userID string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(idBytes),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(constants.SessionDuration),
	}

	if sm.repo != nil {
		err := sm.repo.Save(ctx, database.StoredSession{
			ID:        session.ID,
			UserID:    session.UserID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	return session, nil
}

// GetSession retrieves a live session by ID, falling back to the repository
// for sessions created by another instance or before a restart.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if ok {
		if time.Now().After(session.ExpiresAt) {
			sm.forget(sessionID)
			return nil
		}
		return session
	}

	if sm.repo == nil {
		return nil
	}
	stored, err := sm.repo.Get(ctx, sessionID)
	if err != nil {
		logging.FromContext(ctx).Warn("session lookup failed", zap.Error(err))
		return nil
	}
	if stored == nil {
		return nil
	}

	session = &Session{
		ID:        stored.ID,
		UserID:    stored.UserID,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.forget(sessionID)
	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			logging.FromContext(ctx).Warn("failed to delete session", zap.Error(err))
		}
	}
}

// DeleteUserSessions removes every session of a user
func (sm *SessionManager) DeleteUserSessions(ctx context.Context, userID string) {
	sm.mu.Lock()
	var removed []string
	for id, s := range sm.sessions {
		if s.UserID == userID {
			delete(sm.sessions, id)
			removed = append(removed, id)
		}
	}
	hook := sm.onRemove
	sm.mu.Unlock()
	notifyRemoved(hook, removed...)

	if sm.repo != nil {
		if err := sm.repo.DeleteByUser(ctx, userID); err != nil {
			logging.FromContext(ctx).Warn("failed to delete user sessions", zap.Error(err))
		}
	}
}

func (sm *SessionManager) forget(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	hook := sm.onRemove
	sm.mu.Unlock()
	notifyRemoved(hook, sessionID)
}

// purgeExpired drops expired sessions from the memory cache.
func (sm *SessionManager) purgeExpired(now time.Time) int {
	sm.mu.Lock()
	var expired []string
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
			expired = append(expired, id)
		}
	}
	hook := sm.onRemove
	sm.mu.Unlock()
	notifyRemoved(hook, expired...)
	return len(expired)
}

// notifyRemoved runs outside sm.mu so hooks may call back into the manager.
func notifyRemoved(hook func(string), ids ...string) {
	if hook == nil {
		return
	}
	for _, id := range ids {
		hook(id)
	}
}

func (sm *SessionManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case now := <-ticker.C:
			sm.purgeExpired(now)
		}
	}
}

// Stop ends the cache cleanup goroutine
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.Sign(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(constants.SessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from the cookie or a Bearer header
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	ctx := r.Context()

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, ok := sm.Verify(cookie.Value); ok {
			if session := sm.GetSession(ctx, sessionID); session != nil {
				return session
			}
		}
	}

	authHeader := r.Header.Get("Authorization")
	if sessionID, ok := strings.CutPrefix(authHeader, "Bearer "); ok && sessionID != "" {
		if session := sm.GetSession(ctx, sessionID); session != nil {
			return session
		}
	}

	return nil
}

// Sign creates an HMAC signature for data
func (sm *SessionManager) Sign(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Verify splits "<data>.<sig>" and checks the signature.
func (sm *SessionManager) Verify(signed string) (string, bool) {
	data, signature, ok := strings.Cut(signed, ".")
	if !ok || data == "" {
		return "", false
	}
	expected := sm.Sign(data)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}
	return data, true
}

// SessionData is a helper struct for JSON responses
type SessionData struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler (excludes the user id)
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
