package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

// ListGenerated returns the user's generated images, newest first
func (h *ImageHandler) ListGenerated(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	repo, err := database.GetGeneratedImageRepository(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "image store unavailable")
		return
	}

	images, err := repo.ListGeneratedImages(r.Context(), session.UserID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list generated images", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list generated images")
		return
	}
	if images == nil {
		images = []database.GeneratedImage{}
	}
	respondJSON(w, http.StatusOK, images)
}
