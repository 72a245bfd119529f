package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/faceapi"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/metrics"
)

// Pipeline drives the two-source similarity and detail flow.
type Pipeline struct {
	normalizer Normalizer
	similarity SimilaritySearcher
	details    DetailFetcher
	fallback   FallbackPicker
	limiter    *rate.Limiter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimiter shares an outbound call budget across pipeline runs.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// NewPipeline creates a pipeline. fallback may be nil, in which case records
// without a url keep "N/A".
func NewPipeline(normalizer Normalizer, similarity SimilaritySearcher, details DetailFetcher, fallback FallbackPicker, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer,
		similarity: similarity,
		details:    details,
		fallback:   fallback,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// sourceRun is the outcome of one source's query and detail fetch.
type sourceRun struct {
	matches []SimilarityMatch
	details []database.DetailRecord
	err     error
}

// Run produces one AggregationResult. The returned error is non-nil for
// MissingInput, InvalidImageFormat, DetailServiceUnavailable and cancellation;
// the result then has status error.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (AggregationResult, error) {
	start := time.Now()
	res, err := p.run(ctx, in)
	if errors.Is(err, context.Canceled) {
		// Superseded or abandoned runs are not outcomes.
		return res, err
	}
	metrics.RetrievalTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	return res, err
}

func (p *Pipeline) run(ctx context.Context, in Inputs) (AggregationResult, error) {
	if in.Digital == nil || in.Actual == nil {
		return errorResult(ErrMissingInput), ErrMissingInput
	}

	digital, actual, err := p.normalizeBoth(ctx, in)
	if err != nil {
		return errorResult(err), err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, constants.MaxConcurrentCalls)
	var runs [2]sourceRun
	var wg sync.WaitGroup

	sources := [2]struct {
		tag      Source
		data     []byte
		filename string
	}{
		{SourceDigital, digital, in.Digital.Filename("digital.png")},
		{SourceActual, actual, in.Actual.Filename("actual.png")},
	}

	for i, s := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runs[i] = p.runSource(ctx, sem, s.tag, s.data, s.filename)
			if runs[i].err != nil {
				cancel()
			}
		}()
	}
	wg.Wait()

	if err := firstError(runs[:]); err != nil {
		return errorResult(err), err
	}
	if err := ctx.Err(); err != nil {
		return errorResult(err), err
	}

	matches := merge(
		join(runs[0].matches, runs[0].details, p.fallback),
		join(runs[1].matches, runs[1].details, p.fallback),
	)
	if len(matches) == 0 {
		return AggregationResult{Status: StatusNoMatches, Matches: matches, Notice: constants.NoMatchesNotice}, nil
	}
	return AggregationResult{Status: StatusSuccess, Matches: matches}, nil
}

// firstError prefers a detail failure over the cancellation it caused in the other source.
func firstError(runs []sourceRun) error {
	var fallback error
	for _, r := range runs {
		if r.err == nil {
			continue
		}
		if errors.Is(r.err, ErrDetailServiceUnavailable) {
			return r.err
		}
		if fallback == nil {
			fallback = r.err
		}
	}
	return fallback
}

func (p *Pipeline) normalizeBoth(ctx context.Context, in Inputs) ([]byte, []byte, error) {
	var digital, actual []byte
	var digitalErr, actualErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		digital, digitalErr = p.normalizer.Normalize(ctx, in.Digital)
	}()
	go func() {
		defer wg.Done()
		actual, actualErr = p.normalizer.Normalize(ctx, in.Actual)
	}()
	wg.Wait()

	if digitalErr != nil {
		return nil, nil, fmt.Errorf("digital image: %w", digitalErr)
	}
	if actualErr != nil {
		return nil, nil, fmt.Errorf("actual image: %w", actualErr)
	}
	return digital, actual, nil
}

// runSource queries similarity for one image and fetches details for its ids.
// Similarity failures degrade to no matches; detail failures are returned.
func (p *Pipeline) runSource(ctx context.Context, sem chan struct{}, source Source, data []byte, filename string) sourceRun {
	log := logging.FromContext(ctx).With(zap.String("source", string(source)))

	var raw []faceapi.Match
	err := p.call(ctx, sem, func() (err error) {
		raw, err = p.similarity.FindSimilar(ctx, data, filename)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("similarity query degraded to no matches",
				zap.Error(fmt.Errorf("%w: %w", ErrSimilarityServiceUnavailable, err)))
			metrics.SimilarityDegradedTotal.WithLabelValues(string(source)).Inc()
		}
		return sourceRun{}
	}
	if len(raw) == 0 {
		return sourceRun{}
	}

	found := make([]SimilarityMatch, len(raw))
	ids := make([]string, len(raw))
	for i, m := range raw {
		found[i] = SimilarityMatch{ImageID: m.ImageID, Similarity: m.Similarity, Source: source}
		ids[i] = m.ImageID
	}

	var details []database.DetailRecord
	err = p.call(ctx, sem, func() (err error) {
		details, err = p.details.FetchDetails(ctx, ids)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return sourceRun{err: ctx.Err()}
		}
		return sourceRun{err: fmt.Errorf("%w: %s: %w", ErrDetailServiceUnavailable, source, err)}
	}

	log.Debug("source complete", zap.Int("matches", len(found)), zap.Int("details", len(details)))
	return sourceRun{matches: found, details: details}
}

// call runs fn inside the per-invocation concurrency bound and the shared rate budget.
func (p *Pipeline) call(ctx context.Context, sem chan struct{}, fn func() error) error {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn()
}
