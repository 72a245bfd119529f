// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/sketch-match/internal/database"
)

// MockDetailStore is a mock implementation of database.DetailWriter
type MockDetailStore struct {
	mu      sync.RWMutex
	details map[string]database.DetailRecord
	calls   int

	// Error injection
	GetError    error
	UpsertError error
}

// NewMockDetailStore creates a new mock detail store
func NewMockDetailStore() *MockDetailStore {
	return &MockDetailStore{details: make(map[string]database.DetailRecord)}
}

// AddDetail adds a record to the mock store
func (m *MockDetailStore) AddDetail(d database.DetailRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[d.ImageID] = d
}

// Calls returns how many times GetDetails was invoked
func (m *MockDetailStore) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// GetDetails returns stored records in request order
func (m *MockDetailStore) GetDetails(ctx context.Context, ids []string) ([]database.DetailRecord, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.DetailRecord
	seen := make(map[string]bool)
	for _, id := range ids {
		if d, ok := m.details[id]; ok && !seen[id] {
			seen[id] = true
			result = append(result, d)
		}
	}
	return result, nil
}

// GetDetail retrieves one record
func (m *MockDetailStore) GetDetail(ctx context.Context, id string) (*database.DetailRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.details[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// CountDetails returns the number of records
func (m *MockDetailStore) CountDetails(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.details), nil
}

// UpsertDetail inserts or replaces a record
func (m *MockDetailStore) UpsertDetail(ctx context.Context, d database.DetailRecord) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.AddDetail(d)
	return nil
}

// SetDetailURL sets the url, creating the record when missing
func (m *MockDetailStore) SetDetailURL(ctx context.Context, id, url string) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.details[id]
	d.ImageID = id
	d.URL = url
	m.details[id] = d
	return nil
}

// MockUserRepository is a mock implementation of database.UserRepository
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]database.User

	CreateError error
	GetError    error
}

// NewMockUserRepository creates a new mock user repository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]database.User)}
}

// CreateUser stores a user, rejecting duplicate emails
func (m *MockUserRepository) CreateUser(ctx context.Context, user *database.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return database.ErrDuplicate
		}
	}
	m.users[user.ID] = *user
	return nil
}

// GetUserByEmail returns nil if not found
func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

// GetUserByID returns nil if not found
func (m *MockUserRepository) GetUserByID(ctx context.Context, id string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// UpdatePassword replaces the stored hash
func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = passwordHash
		u.UpdatedAt = time.Now()
		m.users[userID] = u
	}
	return nil
}

// MockSessionRepository is a mock implementation of database.SessionRepository
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]database.StoredSession
}

// NewMockSessionRepository creates a new mock session repository
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]database.StoredSession)}
}

func (m *MockSessionRepository) Save(ctx context.Context, s database.StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MockSessionRepository) Get(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || !time.Now().Before(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored sessions, expired ones included
func (m *MockSessionRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// MockResetTokenRepository is a mock implementation of database.ResetTokenRepository
type MockResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]database.ResetToken
}

// NewMockResetTokenRepository creates a new mock reset token repository
func NewMockResetTokenRepository() *MockResetTokenRepository {
	return &MockResetTokenRepository{tokens: make(map[string]database.ResetToken)}
}

func (m *MockResetTokenRepository) SaveResetToken(ctx context.Context, t database.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *MockResetTokenRepository) GetResetToken(ctx context.Context, id string) (*database.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MockResetTokenRepository) MarkResetTokenUsed(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.UsedAt = &now
	m.tokens[id] = t
	return true, nil
}

func (m *MockResetTokenRepository) DeleteExpiredResetTokens(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, t := range m.tokens {
		if !now.Before(t.ExpiresAt) || t.UsedAt != nil {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// MockHistoryRepository is a mock implementation of database.HistoryRepository
type MockHistoryRepository struct {
	mu    sync.RWMutex
	items []database.HistoryItem

	SaveError error
}

// NewMockHistoryRepository creates a new mock history repository
func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{}
}

func (m *MockHistoryRepository) SaveHistory(ctx context.Context, item *database.HistoryItem) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *item)
	return nil
}

// ListHistory returns the user's items, newest first
func (m *MockHistoryRepository) ListHistory(ctx context.Context, userID string) ([]database.HistoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.HistoryItem
	for _, item := range m.items {
		if item.UserID == userID {
			result = append(result, item)
		}
	}
	slices.Reverse(result)
	return result, nil
}

// MockGeneratedImageRepository is a mock implementation of database.GeneratedImageRepository
type MockGeneratedImageRepository struct {
	mu     sync.RWMutex
	images []database.GeneratedImage
}

// NewMockGeneratedImageRepository creates a new mock generated image repository
func NewMockGeneratedImageRepository() *MockGeneratedImageRepository {
	return &MockGeneratedImageRepository{}
}

func (m *MockGeneratedImageRepository) SaveGeneratedImage(ctx context.Context, img *database.GeneratedImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, *img)
	return nil
}

// ListGeneratedImages returns the user's images, newest first
func (m *MockGeneratedImageRepository) ListGeneratedImages(ctx context.Context, userID string) ([]database.GeneratedImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.GeneratedImage
	for _, img := range m.images {
		if img.UserID == userID {
			result = append(result, img)
		}
	}
	slices.Reverse(result)
	return result, nil
}

// Backend returns a database.Backend serving the given mocks.
func Backend(details *MockDetailStore, users *MockUserRepository, sessions *MockSessionRepository,
	tokens *MockResetTokenRepository, history *MockHistoryRepository, generated *MockGeneratedImageRepository,
) database.Backend {
	return database.Backend{
		Details:         func() database.DetailWriter { return details },
		Users:           func() database.UserRepository { return users },
		Sessions:        func() database.SessionRepository { return sessions },
		ResetTokens:     func() database.ResetTokenRepository { return tokens },
		History:         func() database.HistoryRepository { return history },
		GeneratedImages: func() database.GeneratedImageRepository { return generated },
	}
}
