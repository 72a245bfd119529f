// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Ranking constants
const (
	// MaxRankedResults is the number of merged matches kept after sorting
	MaxRankedResults = 5

	// NotAvailable is the placeholder for detail fields without a stored value
	NotAvailable = "N/A"

	// NoMatchesNotice is the informational message for an empty retrieval
	NoMatchesNotice = "No matches found for either image."
)

// Source tags for similarity matches
const (
	SourceDigital = "digital"
	SourceActual  = "actual"
)

// Pipeline constants
const (
	// MaxConcurrentCalls bounds outbound network calls per retrieval invocation
	MaxConcurrentCalls = 4

	// DefaultFaceAPITimeout is the transport timeout for the similarity and generator services
	DefaultFaceAPITimeout = 60 * time.Second

	// DefaultImageFetchTimeout is the timeout for fetching remote source images
	DefaultImageFetchTimeout = 30 * time.Second

	// MaxImageSize is the maximum dimension (width or height) forwarded to the generator
	MaxImageSize = 1024
)

// Auth constants
const (
	// BcryptCost matches the hashes already stored by the legacy backend
	BcryptCost = 10

	// DefaultResetTokenTTL is how long a password reset link stays valid
	DefaultResetTokenTTL = time.Hour

	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 6
)
