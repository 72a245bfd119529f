// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (50MB, same as the legacy body limit)
	MaxUploadSize = 50 << 20

	// MaxDetailIDs is the maximum number of ids accepted by a single detail lookup
	MaxDetailIDs = 500
)

// Session constants
const (
	// SessionDuration is how long a login session stays valid
	SessionDuration = 24 * time.Hour

	// SessionCleanupInterval is how often expired in-memory sessions are dropped
	SessionCleanupInterval = 15 * time.Minute
)
