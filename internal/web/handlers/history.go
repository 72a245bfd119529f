package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

// HistoryHandler stores and lists saved retrievals
type HistoryHandler struct{}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler() *HistoryHandler {
	return &HistoryHandler{}
}

type saveHistoryRequest struct {
	SrcImages []string                 `json:"srcImages" validate:"required,min=1,max=2,dive,required"`
	Results   []database.HistoryResult `json:"results" validate:"max=20,dive"`
}

// List returns the user's history items, newest first
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	repo, err := database.GetHistoryRepository(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}

	items, err := repo.ListHistory(r.Context(), session.UserID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list history", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if items == nil {
		items = []database.HistoryItem{}
	}
	respondJSON(w, http.StatusOK, items)
}

// Save stores a history item for the user
func (h *HistoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req saveHistoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	repo, err := database.GetHistoryRepository(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}

	if req.Results == nil {
		req.Results = []database.HistoryResult{}
	}
	item := &database.HistoryItem{
		ID:        uuid.NewString(),
		UserID:    session.UserID,
		SrcImages: req.SrcImages,
		Results:   req.Results,
		CreatedAt: timeNow(),
	}
	if err := repo.SaveHistory(r.Context(), item); err != nil {
		logging.FromContext(r.Context()).Error("failed to save history", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save history")
		return
	}
	respondJSON(w, http.StatusCreated, item)
}
