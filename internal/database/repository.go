package database

import "context"

// DetailReader provides read-only access to case metadata
type DetailReader interface {
	// GetDetails returns the stored records for ids; ids without a record are absent from the result
	GetDetails(ctx context.Context, ids []string) ([]DetailRecord, error)
	// GetDetail retrieves one record, returns nil if not found
	GetDetail(ctx context.Context, id string) (*DetailRecord, error)
	// CountDetails returns the total number of records
	CountDetails(ctx context.Context) (int, error)
}

// DetailWriter provides write access to case metadata
type DetailWriter interface {
	DetailReader

	// UpsertDetail inserts or replaces a record
	UpsertDetail(ctx context.Context, rec DetailRecord) error
	// SetDetailURL sets the display url, creating an otherwise empty record when missing
	SetDetailURL(ctx context.Context, id, url string) error
}

// UserRepository stores accounts
type UserRepository interface {
	// CreateUser inserts a user, returns ErrDuplicate when the email is taken
	CreateUser(ctx context.Context, user *User) error
	// GetUserByEmail returns nil if not found
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns nil if not found
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// SessionRepository persists login sessions
type SessionRepository interface {
	Save(ctx context.Context, session StoredSession) error
	// Get returns nil if not found or expired
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
	// DeleteExpired removes expired sessions and returns the count deleted
	DeleteExpired(ctx context.Context) (int64, error)
}

// ResetTokenRepository persists password reset grants
type ResetTokenRepository interface {
	SaveResetToken(ctx context.Context, token ResetToken) error
	// GetResetToken returns nil if not found
	GetResetToken(ctx context.Context, id string) (*ResetToken, error)
	// MarkResetTokenUsed returns false when the token was already used
	MarkResetTokenUsed(ctx context.Context, id string) (bool, error)
	DeleteExpiredResetTokens(ctx context.Context) (int64, error)
}

// HistoryRepository stores saved retrievals
type HistoryRepository interface {
	SaveHistory(ctx context.Context, item *HistoryItem) error
	ListHistory(ctx context.Context, userID string) ([]HistoryItem, error)
}

// GeneratedImageRepository stores generator output per user
type GeneratedImageRepository interface {
	SaveGeneratedImage(ctx context.Context, img *GeneratedImage) error
	// ListGeneratedImages returns the user's images, newest first
	ListGeneratedImages(ctx context.Context, userID string) ([]GeneratedImage, error)
}
