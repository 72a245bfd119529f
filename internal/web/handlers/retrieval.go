package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/retrieval"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

// RetrievalHandler runs the two-source aggregation, synchronously or tracked per session.
type RetrievalHandler struct {
	runner   retrieval.Runner
	trackers *retrieval.Registry
}

// NewRetrievalHandler creates a new retrieval handler
func NewRetrievalHandler(runner retrieval.Runner, trackers *retrieval.Registry) *RetrievalHandler {
	return &RetrievalHandler{runner: runner, trackers: trackers}
}

// StartResponse is returned when a tracked invocation is accepted
type StartResponse struct {
	Invocation uint64 `json:"invocation"`
}

// parseInputs reads digitalImage and actualImage, each either a file part or a
// form value holding a data URI or URL. Absent fields stay nil.
func parseInputs(w http.ResponseWriter, r *http.Request) (retrieval.Inputs, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*constants.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return retrieval.Inputs{}, err
		}
		if err := r.ParseForm(); err != nil {
			return retrieval.Inputs{}, err
		}
	}

	digital, err := formSource(r, "digitalImage")
	if err != nil {
		return retrieval.Inputs{}, err
	}
	actual, err := formSource(r, "actualImage")
	if err != nil {
		return retrieval.Inputs{}, err
	}
	return retrieval.Inputs{Digital: digital, Actual: actual}, nil
}

func formSource(r *http.Request, field string) (*imagesource.Source, error) {
	if r.MultipartForm != nil {
		if headers := r.MultipartForm.File[field]; len(headers) > 0 {
			f, err := headers[0].Open()
			if err != nil {
				return nil, err
			}
			defer f.Close()
			data, err := io.ReadAll(f)
			if err != nil {
				return nil, err
			}
			return imagesource.FromBytes(headers[0].Filename, data), nil
		}
	}
	if v := r.FormValue(field); v != "" {
		return imagesource.FromString(v), nil
	}
	return nil, nil
}

// statusForError maps pipeline errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, retrieval.ErrMissingInput):
		return http.StatusBadRequest
	case errors.Is(err, retrieval.ErrInvalidImageFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, retrieval.ErrDetailServiceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Run executes the pipeline and returns the AggregationResult.
func (h *RetrievalHandler) Run(w http.ResponseWriter, r *http.Request) {
	in, err := parseInputs(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	res, err := h.runner.Run(r.Context(), in)
	if err != nil {
		logging.FromContext(r.Context()).Warn("retrieval failed", zap.String("error", sanitizeForLog(err.Error())))
		respondJSON(w, statusForError(err), res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Start begins a tracked invocation for the session, superseding any in flight.
func (h *RetrievalHandler) Start(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	in, err := parseInputs(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	token := h.trackers.Get(session.ID).Start(r.Context(), in)
	respondJSON(w, http.StatusAccepted, StartResponse{Invocation: token})
}

// Current returns the session's committed retrieval state.
func (h *RetrievalHandler) Current(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tracker := h.trackers.Lookup(session.ID)
	if tracker == nil {
		respondJSON(w, http.StatusOK, retrieval.Snapshot{State: retrieval.StateIdle})
		return
	}
	respondJSON(w, http.StatusOK, tracker.Snapshot())
}

// Events streams state transitions as server-sent events until a terminal state.
func (h *RetrievalHandler) Events(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}
	streamSnapshots(w, r, flusher, h.trackers.Get(session.ID))
}
