// Package faceapi talks to the external face services: similarity search and sketch-to-photo generation.
package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/sketch-match/internal/constants"
)

const (
	defaultSimilarityURL = "http://localhost:5004"
	defaultGeneratorURL  = "http://localhost:5003"

	findSimilarEndpoint = "/find_similar/"
	generateEndpoint    = "/image/upload"
)

// Client calls the similarity and generator services.
type Client struct {
	similarityURL string
	generatorURL  string
	client        *http.Client
}

// NewClient creates a face service client. Empty URLs fall back to the local defaults.
func NewClient(similarityURL, generatorURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultFaceAPITimeout
	}
	return NewClientWithHTTP(similarityURL, generatorURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a client around an existing HTTP client.
func NewClientWithHTTP(similarityURL, generatorURL string, httpClient *http.Client) *Client {
	if similarityURL == "" {
		similarityURL = defaultSimilarityURL
	}
	if generatorURL == "" {
		generatorURL = defaultGeneratorURL
	}
	return &Client{
		similarityURL: strings.TrimSuffix(similarityURL, "/"),
		generatorURL:  strings.TrimSuffix(generatorURL, "/"),
		client:        httpClient,
	}
}

// StatusError is returned when a face service answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error %s (status %d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// Detail returns the FastAPI "detail" message when the body carries one.
func (e *StatusError) Detail() string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return e.Body
}

// postMultipartImage posts the image as a single multipart file part to baseURL+endpoint.
// The part always carries an explicit image Content-Type; both services reject parts without one.
func (c *Client) postMultipartImage(ctx context.Context, baseURL, endpoint, field, filename string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if filename == "" {
		filename = "image" + extensionFor(detectMIMEType(imageData))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
