// Package retrieval runs the two-source similarity search and joins the matches
// with their case details into one ranked result.
package retrieval

import (
	"context"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/faceapi"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
)

// Source tags which input image produced a match.
type Source string

const (
	SourceDigital Source = constants.SourceDigital
	SourceActual  Source = constants.SourceActual
)

// SimilarityMatch is one candidate of one similarity query.
// (ImageID, Source) identifies it; an id may appear once per source.
type SimilarityMatch struct {
	ImageID    string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Source     Source  `json:"source"`
}

// RankedResult is a match joined with the detail record fetched for its own source.
type RankedResult struct {
	database.DetailRecord
	Similarity float64 `json:"similarity"`
	Source     Source  `json:"source"`
}

// Status is the terminal outcome of an aggregation.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusNoMatches Status = "no_matches"
	StatusError     Status = "error"
)

// AggregationResult is the consolidated outcome of one pipeline run.
// Matches is non-empty for success; no_matches carries Notice; error carries Error.
type AggregationResult struct {
	Status  Status         `json:"status"`
	Matches []RankedResult `json:"matches"`
	Error   string         `json:"error,omitempty"`
	Notice  string         `json:"notice,omitempty"`
}

// Inputs are the two caller supplied images.
type Inputs struct {
	Digital *imagesource.Source
	Actual  *imagesource.Source
}

// Normalizer turns a source image into bytes.
type Normalizer interface {
	Normalize(ctx context.Context, src *imagesource.Source) ([]byte, error)
}

// SimilaritySearcher queries the similarity service.
type SimilaritySearcher interface {
	FindSimilar(ctx context.Context, imageData []byte, filename string) ([]faceapi.Match, error)
}

// DetailFetcher returns the detail records for one batch of ids.
// Ids without a record are absent from the result.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, ids []string) ([]database.DetailRecord, error)
}

// FallbackPicker supplies a display url for records without one.
type FallbackPicker interface {
	Pick() string
}

// Runner runs one aggregation.
type Runner interface {
	Run(ctx context.Context, in Inputs) (AggregationResult, error)
}

func errorResult(err error) AggregationResult {
	return AggregationResult{Status: StatusError, Matches: []RankedResult{}, Error: err.Error()}
}
