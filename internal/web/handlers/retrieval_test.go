package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
	"github.com/kozaktomas/sketch-match/internal/retrieval"
)

// stubRunner returns a fixed outcome, optionally blocking until gate closes
type stubRunner struct {
	mu     sync.Mutex
	result retrieval.AggregationResult
	err    error
	gate   chan struct{}
	inputs []retrieval.Inputs
}

func (s *stubRunner) Run(ctx context.Context, in retrieval.Inputs) (retrieval.AggregationResult, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return retrieval.AggregationResult{Status: retrieval.StatusError, Error: ctx.Err().Error()}, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubRunner) lastInputs() retrieval.Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[len(s.inputs)-1]
}

func successResult() retrieval.AggregationResult {
	return retrieval.AggregationResult{
		Status: retrieval.StatusSuccess,
		Matches: []retrieval.RankedResult{{
			DetailRecord: database.DetailRecord{ImageID: "A01", Offense: "Theft"},
			Similarity:   0.9,
			Source:       retrieval.SourceDigital,
		}},
	}
}

func TestRetrievalHandler_Run_Success(t *testing.T) {
	runner := &stubRunner{result: successResult()}
	handler := NewRetrievalHandler(runner, retrieval.NewRegistry(runner))

	req := multipartRequest(t, "/api/v1/retrieval",
		map[string][]byte{"digitalImage": pngBytes(t, 4, 4)},
		map[string]string{"actualImage": "https://example.com/photo.jpg"})
	recorder := httptest.NewRecorder()
	handler.Run(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var res retrieval.AggregationResult
	parseJSONResponse(t, recorder, &res)
	if res.Status != retrieval.StatusSuccess || len(res.Matches) != 1 || res.Matches[0].ImageID != "A01" {
		t.Errorf("unexpected result %+v", res)
	}

	in := runner.lastInputs()
	if in.Digital == nil || in.Digital.Kind != imagesource.KindBinary || in.Digital.Name != "digitalImage.png" {
		t.Errorf("expected binary digital source, got %+v", in.Digital)
	}
	if in.Actual == nil || in.Actual.Kind != imagesource.KindURL || in.Actual.Ref != "https://example.com/photo.jpg" {
		t.Errorf("expected url actual source, got %+v", in.Actual)
	}
}

func TestRetrievalHandler_Run_FormEncoded(t *testing.T) {
	runner := &stubRunner{result: successResult()}
	handler := NewRetrievalHandler(runner, retrieval.NewRegistry(runner))

	body := "digitalImage=" + "data%3Aimage%2Fpng%3Bbase64%2CAAAA" + "&actualImage=https%3A%2F%2Fexample.com%2Fa.jpg"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieval", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	handler.Run(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	in := runner.lastInputs()
	if in.Digital == nil || in.Digital.Kind != imagesource.KindDataURI {
		t.Errorf("expected data uri digital source, got %+v", in.Digital)
	}
}

func TestRetrievalHandler_Run_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing input", retrieval.ErrMissingInput, http.StatusBadRequest},
		{"invalid format", fmt.Errorf("digital: %w", retrieval.ErrInvalidImageFormat), http.StatusUnprocessableEntity},
		{"detail outage", fmt.Errorf("%w: timeout", retrieval.ErrDetailServiceUnavailable), http.StatusBadGateway},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{
				result: retrieval.AggregationResult{Status: retrieval.StatusError, Matches: []retrieval.RankedResult{}, Error: tt.err.Error()},
				err:    tt.err,
			}
			handler := NewRetrievalHandler(runner, retrieval.NewRegistry(runner))

			req := multipartRequest(t, "/api/v1/retrieval", nil, map[string]string{"digitalImage": "https://example.com/a.jpg"})
			recorder := httptest.NewRecorder()
			handler.Run(recorder, req)

			assertStatusCode(t, recorder, tt.wantStatus)
			var res retrieval.AggregationResult
			parseJSONResponse(t, recorder, &res)
			if res.Status != retrieval.StatusError || res.Error == "" {
				t.Errorf("expected error result, got %+v", res)
			}
		})
	}
}

func TestRetrievalHandler_Run_MissingFieldsReachRunner(t *testing.T) {
	runner := &stubRunner{result: successResult()}
	handler := NewRetrievalHandler(runner, retrieval.NewRegistry(runner))

	req := multipartRequest(t, "/api/v1/retrieval", nil, map[string]string{"digitalImage": "https://example.com/a.jpg"})
	handler.Run(httptest.NewRecorder(), req)

	in := runner.lastInputs()
	if in.Actual != nil {
		t.Errorf("expected nil actual source, got %+v", in.Actual)
	}
}

func TestRetrievalHandler_TrackedLifecycle(t *testing.T) {
	runner := &stubRunner{result: successResult(), gate: make(chan struct{})}
	registry := retrieval.NewRegistry(runner)
	t.Cleanup(registry.Shutdown)
	handler := NewRetrievalHandler(runner, registry)

	// Current before any run is idle
	req := requestWithSession(httptest.NewRequest(http.MethodGet, "/api/v1/retrievals/current", nil), "s1", "user-1")
	recorder := httptest.NewRecorder()
	handler.Current(recorder, req)
	var snap retrieval.Snapshot
	parseJSONResponse(t, recorder, &snap)
	if snap.State != retrieval.StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}

	// Start
	req = multipartRequest(t, "/api/v1/retrievals", nil, map[string]string{
		"digitalImage": "https://example.com/a.jpg",
		"actualImage":  "https://example.com/b.jpg",
	})
	req = requestWithSession(req, "s1", "user-1")
	recorder = httptest.NewRecorder()
	handler.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	var started StartResponse
	parseJSONResponse(t, recorder, &started)
	if started.Invocation == 0 {
		t.Fatal("expected non-zero invocation token")
	}

	req = requestWithSession(httptest.NewRequest(http.MethodGet, "/api/v1/retrievals/current", nil), "s1", "user-1")
	recorder = httptest.NewRecorder()
	handler.Current(recorder, req)
	snap = retrieval.Snapshot{}
	parseJSONResponse(t, recorder, &snap)
	if snap.State != retrieval.StateLoading || snap.Invocation != started.Invocation {
		t.Errorf("expected loading for invocation %d, got %+v", started.Invocation, snap)
	}

	// Stream until terminal
	eventsRecorder := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := requestWithSession(httptest.NewRequest(http.MethodGet, "/api/v1/retrievals/events", nil), "s1", "user-1")
		handler.Events(eventsRecorder, req)
	}()

	close(runner.gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not finish")
	}

	body := eventsRecorder.Body.String()
	if !strings.Contains(body, "event: success") {
		t.Errorf("expected success event, got:\n%s", body)
	}
	if got := eventsRecorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected event stream content type, got '%s'", got)
	}

	req = requestWithSession(httptest.NewRequest(http.MethodGet, "/api/v1/retrievals/current", nil), "s1", "user-1")
	recorder = httptest.NewRecorder()
	handler.Current(recorder, req)
	snap = retrieval.Snapshot{}
	parseJSONResponse(t, recorder, &snap)
	if snap.State != retrieval.StateSuccess || snap.Result == nil || len(snap.Result.Matches) != 1 {
		t.Errorf("expected committed success, got %+v", snap)
	}
}

func TestRetrievalHandler_EventsTerminalSnapshot(t *testing.T) {
	runner := &stubRunner{result: retrieval.AggregationResult{
		Status:  retrieval.StatusNoMatches,
		Matches: []retrieval.RankedResult{},
		Notice:  "no matches",
	}}
	registry := retrieval.NewRegistry(runner)
	t.Cleanup(registry.Shutdown)
	handler := NewRetrievalHandler(runner, registry)

	tracker := registry.Get("s1")
	tracker.Start(t.Context(), retrieval.Inputs{})
	tracker.Wait()

	req := requestWithSession(httptest.NewRequest(http.MethodGet, "/api/v1/retrievals/events", nil), "s1", "user-1")
	recorder := httptest.NewRecorder()
	handler.Events(recorder, req)

	body := recorder.Body.String()
	if strings.Count(body, "event: ") != 1 || !strings.Contains(body, "event: no_matches") {
		t.Errorf("expected a single no_matches event, got:\n%s", body)
	}
}

func TestRetrievalHandler_RequiresSession(t *testing.T) {
	runner := &stubRunner{result: successResult()}
	handler := NewRetrievalHandler(runner, retrieval.NewRegistry(runner))

	endpoints := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"start", handler.Start},
		{"current", handler.Current},
		{"events", handler.Events},
	}

	for _, e := range endpoints {
		t.Run(e.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			e.fn(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
			assertStatusCode(t, recorder, http.StatusUnauthorized)
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{retrieval.ErrMissingInput, http.StatusBadRequest},
		{retrieval.ErrInvalidImageFormat, http.StatusUnprocessableEntity},
		{retrieval.ErrDetailServiceUnavailable, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{retrieval.ErrSimilarityServiceUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
