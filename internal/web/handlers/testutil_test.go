package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/database/mock"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Image: config.ImageConfig{MaxDimension: 1024},
		Auth: config.AuthConfig{
			ResetSecret: "test-reset-secret",
			ResetTTL:    time.Hour,
			ClientURL:   "http://localhost:3000",
		},
	}
}

// testBackend bundles the mock repositories registered for a test
type testBackend struct {
	details   *mock.MockDetailStore
	users     *mock.MockUserRepository
	sessions  *mock.MockSessionRepository
	tokens    *mock.MockResetTokenRepository
	history   *mock.MockHistoryRepository
	generated *mock.MockGeneratedImageRepository
}

// setupMockBackend registers fresh mock repositories and resets them on cleanup
func setupMockBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		details:   mock.NewMockDetailStore(),
		users:     mock.NewMockUserRepository(),
		sessions:  mock.NewMockSessionRepository(),
		tokens:    mock.NewMockResetTokenRepository(),
		history:   mock.NewMockHistoryRepository(),
		generated: mock.NewMockGeneratedImageRepository(),
	}
	database.ResetForTesting()
	database.RegisterPostgresBackend(mock.Backend(b.details, b.users, b.sessions, b.tokens, b.history, b.generated))
	t.Cleanup(database.ResetForTesting)
	return b
}

// newSessionManager creates a session manager that stops on cleanup
func newSessionManager(t *testing.T) *middleware.SessionManager {
	t.Helper()
	sm := middleware.NewSessionManager("test-secret", nil)
	t.Cleanup(sm.Stop)
	return sm
}

// requestWithSession attaches a session for userID to the request context
func requestWithSession(r *http.Request, sessionID, userID string) *http.Request {
	session := &middleware.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// jsonRequest builds a JSON POST request
func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart POST with the given file parts and plain fields
func multipartRequest(t *testing.T, path string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, data := range files {
		part, err := mw.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// pngBytes encodes a solid w x h PNG
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.Gray{Y: 0})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// recordingNotifier captures reset links instead of sending them
type recordingNotifier struct {
	links []string
	err   error
}

func (n *recordingNotifier) SendResetLink(ctx context.Context, user *database.User, link string) error {
	if n.err != nil {
		return n.err
	}
	n.links = append(n.links, link)
	return nil
}
