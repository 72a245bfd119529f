package database

import (
	"context"
	"errors"
	"sync"
)

// Backend bundles the repository constructors of a storage backend.
type Backend struct {
	Details         func() DetailWriter
	Users           func() UserRepository
	Sessions        func() SessionRepository
	ResetTokens     func() ResetTokenRepository
	History         func() HistoryRepository
	GeneratedImages func() GeneratedImageRepository
}

var (
	providerMu          sync.RWMutex
	postgresBackend     *Backend
	detailReaderBackend func() DetailReader
	sessionBackend      func() SessionRepository
)

// ErrNotInitialized is returned by the getters when no backend is registered.
var ErrNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(b Backend) {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresBackend = &b
}

// RegisterDetailReader overrides where detail lookups are served from (e.g. a legacy MariaDB table).
func RegisterDetailReader(fn func() DetailReader) {
	providerMu.Lock()
	defer providerMu.Unlock()
	detailReaderBackend = fn
}

// RegisterSessionRepository overrides where sessions are persisted (e.g. Redis).
func RegisterSessionRepository(fn func() SessionRepository) {
	providerMu.Lock()
	defer providerMu.Unlock()
	sessionBackend = fn
}

// ResetForTesting clears every registration.
func ResetForTesting() {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresBackend = nil
	detailReaderBackend = nil
	sessionBackend = nil
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return postgresBackend != nil
}

// GetDetailReader returns the registered detail reader override, or the PostgreSQL one.
func GetDetailReader(ctx context.Context) (DetailReader, error) {
	providerMu.RLock()
	override := detailReaderBackend
	providerMu.RUnlock()
	if override != nil {
		return override(), nil
	}
	return GetDetailWriter(ctx)
}

// GetDetailWriter returns a DetailWriter from the PostgreSQL backend.
func GetDetailWriter(_ context.Context) (DetailWriter, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.Details(), nil
}

// GetUserRepository returns a UserRepository from the PostgreSQL backend.
func GetUserRepository(_ context.Context) (UserRepository, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.Users(), nil
}

// GetSessionRepository returns the registered session store override, or the PostgreSQL one.
func GetSessionRepository(_ context.Context) (SessionRepository, error) {
	providerMu.RLock()
	override := sessionBackend
	providerMu.RUnlock()
	if override != nil {
		return override(), nil
	}
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.Sessions(), nil
}

// GetResetTokenRepository returns a ResetTokenRepository from the PostgreSQL backend.
func GetResetTokenRepository(_ context.Context) (ResetTokenRepository, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.ResetTokens(), nil
}

// GetHistoryRepository returns a HistoryRepository from the PostgreSQL backend.
func GetHistoryRepository(_ context.Context) (HistoryRepository, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.History(), nil
}

// GetGeneratedImageRepository returns a GeneratedImageRepository from the PostgreSQL backend.
func GetGeneratedImageRepository(_ context.Context) (GeneratedImageRepository, error) {
	b, err := backend()
	if err != nil {
		return nil, err
	}
	return b.GeneratedImages(), nil
}

func backend() (*Backend, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if postgresBackend == nil {
		return nil, ErrNotInitialized
	}
	return postgresBackend, nil
}
