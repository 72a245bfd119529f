package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/textnorm"
)

const fetchDetailsPath = "/api/v1/image/fetch-details"

// StoreDetails reads details from the registered database backend. Ids are
// looked up by their normalized key and returned under the id asked for.
type StoreDetails struct{}

func (StoreDetails) FetchDetails(ctx context.Context, ids []string) ([]database.DetailRecord, error) {
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

	out := make([]database.DetailRecord, 0, len(records))
	for i, id := range ids {
		rec, ok := byKey[keys[i]]
		if !ok {
			continue
		}
		rec.ImageID = id
		out = append(out, rec)
	}
	return out, nil
}

// HTTPDetails fetches details from a remote backend's fetch-details route.
type HTTPDetails struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDetails creates a remote detail fetcher.
func NewHTTPDetails(baseURL string, timeout time.Duration) *HTTPDetails {
	return NewHTTPDetailsWithClient(baseURL, &http.Client{Timeout: timeout})
}

// NewHTTPDetailsWithClient creates a remote detail fetcher around an existing client.
func NewHTTPDetailsWithClient(baseURL string, client *http.Client) *HTTPDetails {
	return &HTTPDetails{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type fetchDetailsResponse struct {
	Result []database.DetailRecord `json:"result"`
}

// FetchDetails posts the ids as a JSON array and decodes {result: [...]}.
func (h *HTTPDetails) FetchDetails(ctx context.Context, ids []string) ([]database.DetailRecord, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal ids: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+fetchDetailsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch-details returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded fetchDetailsResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return decoded.Result, nil
}
