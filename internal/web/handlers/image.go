package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/retrieval"
	"github.com/kozaktomas/sketch-match/internal/textnorm"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

// Generator turns a sketch into a photo.
type Generator interface {
	Generate(ctx context.Context, sketch []byte, filename string) (string, error)
}

// ImageHandler serves the upload proxy, detail lookup and generation routes.
type ImageHandler struct {
	config     *config.Config
	similarity retrieval.SimilaritySearcher
	generator  Generator
}

// NewImageHandler creates a new image handler
func NewImageHandler(cfg *config.Config, similarity retrieval.SimilaritySearcher, generator Generator) *ImageHandler {
	return &ImageHandler{config: cfg, similarity: similarity, generator: generator}
}

// RecognitionResult is one entry of the upload proxy response
type RecognitionResult struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Offense    string  `json:"offense"`
	Mittimus   string  `json:"mittimus"`
}

type recognitionFailure struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// readUpload returns the bytes and filename of a multipart file field.
func readUpload(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) > constants.MaxUploadSize {
		return nil, "", errors.New("upload too large")
	}
	return data, header.Filename, nil
}

// Upload forwards an image to the similarity service and joins the matches with their details.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	data, filename, err := readUpload(r, "image")
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "No image uploaded")
		return
	}

	ctx := r.Context()
	log := logging.FromContext(ctx)

	fail := func(details string) {
		respondJSON(w, http.StatusInternalServerError, recognitionFailure{
			Error:   "Failed to process recognition",
			Details: details,
		})
	}

	matches, err := h.similarity.FindSimilar(ctx, data, filename)
	if err != nil {
		log.Error("similarity query failed", zap.Error(err))
		fail(err.Error())
		return
	}
	if len(matches) == 0 {
		fail("similarity service returned no matches")
		return
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ImageID
	}
	byID, err := lookupDetails(ctx, ids)
	if err != nil {
		log.Error("detail lookup failed", zap.Error(err))
		fail(err.Error())
		return
	}

	results := make([]RecognitionResult, len(matches))
	for i, m := range matches {
		rec := byID[m.ImageID]
		results[i] = RecognitionResult{
			ID:         m.ImageID,
			Similarity: m.Similarity,
			Offense:    rec.Offense,
			Mittimus:   rec.Mittimus,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": results})
}

// lookupDetails returns a defaulted record for every id.
func lookupDetails(ctx context.Context, ids []string) (map[string]database.DetailRecord, error) {
	reader, err := database.GetDetailReader(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = textnorm.ImageID(id)
	}
	records, err := reader.GetDetails(ctx, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]database.DetailRecord, len(records))
	for _, rec := range records {
		byKey[rec.ImageID] = rec
	}

	out := make(map[string]database.DetailRecord, len(ids))
	for i, id := range ids {
		rec := byKey[keys[i]]
		rec.ImageID = id
		out[id] = rec.WithDefaults()
	}
	return out, nil
}

// FetchDetails returns a record for every requested id, "N/A" where nothing is stored.
func (h *ImageHandler) FetchDetails(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := decodeJSON(r, &ids); err != nil || len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "No image IDs provided")
		return
	}
	if len(ids) > constants.MaxDetailIDs {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d image IDs per request", constants.MaxDetailIDs))
		return
	}

	byID, err := lookupDetails(r.Context(), ids)
	if err != nil {
		logging.FromContext(r.Context()).Error("detail lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch details")
		return
	}

	result := make([]database.DetailRecord, len(ids))
	for i, id := range ids {
		result[i] = byID[id]
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": result})
}

// Generate turns an uploaded sketch into a photo.
func (h *ImageHandler) Generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	data, filename, err := readUpload(r, "digitalImage")
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "No image uploaded")
		return
	}

	ctx := r.Context()
	log := logging.FromContext(ctx)

	if _, _, err := imagesource.Sniff(data); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "unsupported image format")
		return
	}
	if resized, changed, err := imagesource.Downscale(data, h.config.Image.MaxDimension); err == nil && changed {
		log.Debug("downscaled sketch", zap.Int("from_bytes", len(data)), zap.Int("to_bytes", len(resized)))
		data = resized
		filename = "sketch.jpg"
	}

	generated, err := h.generator.Generate(ctx, data, filename)
	if err != nil {
		log.Error("generation failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to generate image")
		return
	}

	if session := middleware.GetSessionFromContext(ctx); session != nil {
		h.recordGenerated(ctx, session.UserID, filename, generated)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"result": map[string]string{"generatedImage": generated},
	})
}

func (h *ImageHandler) recordGenerated(ctx context.Context, userID, name, image string) {
	repo, err := database.GetGeneratedImageRepository(ctx)
	if err != nil {
		return
	}
	err = repo.SaveGeneratedImage(ctx, &database.GeneratedImage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Image:     image,
		CreatedAt: timeNow(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("failed to record generated image", zap.Error(err))
	}
}
