package database

import (
	"errors"
	"time"

	"github.com/kozaktomas/sketch-match/internal/constants"
)

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("record already exists")

// DetailRecord holds case metadata for one catalog image. Empty fields mean "not stored".
type DetailRecord struct {
	ImageID            string `json:"id" yaml:"id"`
	Offense            string `json:"offense" yaml:"offense"`
	Mittimus           string `json:"mittimus" yaml:"mittimus"`
	Class              string `json:"class" yaml:"class"`
	Count              string `json:"count" yaml:"count"`
	CustodyDate        string `json:"custody_date" yaml:"custody_date"`
	Sentence           string `json:"sentence" yaml:"sentence"`
	County             string `json:"county" yaml:"county"`
	SentenceDischarged string `json:"sentence_discharged" yaml:"sentence_discharged"`
	Mark               string `json:"mark" yaml:"mark"`
	URL                string `json:"url" yaml:"url"`
}

// WithDefaults returns a copy where every empty field reads "N/A".
func (d DetailRecord) WithDefaults() DetailRecord {
	for _, f := range []*string{
		&d.Offense, &d.Mittimus, &d.Class, &d.Count, &d.CustodyDate,
		&d.Sentence, &d.County, &d.SentenceDischarged, &d.Mark, &d.URL,
	} {
		if *f == "" {
			*f = constants.NotAvailable
		}
	}
	return d
}

// HasURL reports whether the record carries a usable display url.
func (d DetailRecord) HasURL() bool {
	return d.URL != "" && d.URL != constants.NotAvailable
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StoredSession is the persisted form of a login session.
type StoredSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ResetToken is a one-time password reset grant.
type ResetToken struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the token is unused and not expired at now.
func (t *ResetToken) Usable(now time.Time) bool {
	return t != nil && t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// HistoryResult is one saved match inside a history item.
type HistoryResult struct {
	ResImage    string  `json:"resImage" validate:"required"`
	Accuracy    float64 `json:"accuracy" validate:"gte=0,lte=100"`
	Description string  `json:"description" validate:"max=2000"`
}

// HistoryItem is a saved retrieval session.
type HistoryItem struct {
	ID        string          `json:"itemId"`
	UserID    string          `json:"userId"`
	SrcImages []string        `json:"srcImages"`
	Results   []HistoryResult `json:"results"`
	CreatedAt time.Time       `json:"created_at"`
}

// GeneratedImage is a photo produced by the generator for a user.
type GeneratedImage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"datetime"`
}
