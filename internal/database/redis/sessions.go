// Package redis persists login sessions in Redis via rueidis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kozaktomas/sketch-match/internal/database"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user_sessions:"
)

// Compile-time check: SessionStore implements database.SessionRepository.
var _ database.SessionRepository = (*SessionStore)(nil)

// SessionStore keeps sessions as JSON values with a TTL matching their expiry.
// A per-user set indexes session ids so logout-everywhere is a single call.
type SessionStore struct {
	client rueidis.Client
	now    func() time.Time
}

// NewSessionStore connects to Redis at addr.
func NewSessionStore(addr, password string) (*SessionStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		Password:     password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &SessionStore{client: client, now: time.Now}, nil
}

// NewSessionStoreForTest wraps an existing client.
func NewSessionStoreForTest(client rueidis.Client, now func() time.Time) *SessionStore {
	return &SessionStore{client: client, now: now}
}

// Initialize connects and routes session persistence to Redis.
func Initialize(ctx context.Context, addr, password string) (*SessionStore, error) {
	store, err := NewSessionStore(addr, password)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	database.RegisterSessionRepository(func() database.SessionRepository {
		return store
	})
	return store, nil
}

// Ping checks connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *SessionStore) Close() {
	s.client.Close()
}

// Save stores the session until its expiry.
func (s *SessionStore) Save(ctx context.Context, session database.StoredSession) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	b := s.client.B()
	cmds := rueidis.Commands{
		b.Set().Key(sessionPrefix + session.ID).Value(string(data)).Ex(ttl).Build(),
		b.Sadd().Key(userSessionPrefix + session.UserID).Member(session.ID).Build(),
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

// Get returns the session or nil when it is missing or expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	cmd := s.client.B().Get().Key(sessionPrefix + sessionID).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session database.StoredSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, nil
	}
	return &session, nil
}

// Delete removes one session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	cmd := s.client.B().Del().Key(sessionPrefix + sessionID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session of the user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) error {
	setKey := userSessionPrefix + userID
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(setKey).Build()).AsStrSlice()
	if err != nil && !rueidis.IsRedisNil(err) {
		return fmt.Errorf("list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionPrefix+id)
	}
	keys = append(keys, setKey)

	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis expires session keys itself.
func (s *SessionStore) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}
