package retrieval

import (
	"errors"

	"github.com/kozaktomas/sketch-match/internal/imagesource"
)

var (
	// ErrMissingInput is returned before any network call when an image is absent.
	ErrMissingInput = errors.New("both digital and actual images are required")

	// ErrInvalidImageFormat is returned when an input cannot be normalized.
	ErrInvalidImageFormat = imagesource.ErrInvalidFormat

	// ErrSimilarityServiceUnavailable marks a failed similarity query. The pipeline
	// absorbs it and degrades that source to no matches.
	ErrSimilarityServiceUnavailable = errors.New("similarity service unavailable")

	// ErrDetailServiceUnavailable is returned when a detail fetch fails.
	ErrDetailServiceUnavailable = errors.New("detail service unavailable")
)
