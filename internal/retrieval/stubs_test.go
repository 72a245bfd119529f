package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/faceapi"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
)

var errServiceDown = errors.New("connection refused")

type countingNormalizer struct {
	mu    sync.Mutex
	calls int
	inner *imagesource.Normalizer
}

func (n *countingNormalizer) Normalize(ctx context.Context, src *imagesource.Source) ([]byte, error) {
	n.mu.Lock()
	n.calls++
	if n.inner == nil {
		n.inner = imagesource.NewNormalizer(0)
	}
	inner := n.inner
	n.mu.Unlock()
	return inner.Normalize(ctx, src)
}

// stubSimilarity answers by image payload.
type stubSimilarity struct {
	mu      sync.Mutex
	calls   int
	results map[string][]faceapi.Match
	errs    map[string]error
	gates   map[string]chan struct{}
}

func (s *stubSimilarity) FindSimilar(_ context.Context, data []byte, _ string) ([]faceapi.Match, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gates[string(data)]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err := s.errs[string(data)]; err != nil {
		return nil, err
	}
	return s.results[string(data)], nil
}

func (s *stubSimilarity) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubDetails answers by the comma joined id batch.
type stubDetails struct {
	mu        sync.Mutex
	requested [][]string
	results   map[string][]database.DetailRecord
	err       error
	gates     map[string]chan struct{}
}

func (d *stubDetails) FetchDetails(_ context.Context, ids []string) ([]database.DetailRecord, error) {
	key := strings.Join(ids, ",")
	d.mu.Lock()
	d.requested = append(d.requested, ids)
	gate := d.gates[key]
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.results[key], nil
}

func (d *stubDetails) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requested)
}

func inputs(digital, actual string) Inputs {
	return Inputs{
		Digital: imagesource.FromBytes("digital.png", []byte(digital)),
		Actual:  imagesource.FromBytes("actual.png", []byte(actual)),
	}
}
