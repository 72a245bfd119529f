package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/textnorm"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

const (
	msgUserExists         = "User already exists"
	msgInvalidCredentials = "Invalid credentials"
	msgPasswordIncorrect  = "password incorrect"
	msgUserNotFound       = "User not found"
	msgResetSent          = "Password reset email sent"
	msgInvalidResetToken  = "Invalid or expired token"
)

// ResetNotifier delivers password reset links.
type ResetNotifier interface {
	SendResetLink(ctx context.Context, user *database.User, link string) error
}

// LogNotifier writes reset links to the request logger instead of sending mail.
type LogNotifier struct{}

func (LogNotifier) SendResetLink(ctx context.Context, user *database.User, link string) error {
	logging.FromContext(ctx).Info("password reset requested",
		zap.String("user_id", user.ID),
		zap.String("link", link))
	return nil
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	config         *config.Config
	sessionManager *middleware.SessionManager
	notifier       ResetNotifier
	now            func() time.Time
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, sm *middleware.SessionManager, notifier ResetNotifier) *AuthHandler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &AuthHandler{
		config:         cfg,
		sessionManager: sm,
		notifier:       notifier,
		now:            time.Now,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User      *database.User `json:"user"`
	SessionID string         `json:"session_id"`
	ExpiresAt string         `json:"expires_at"`
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          *database.User `json:"user,omitempty"`
	ExpiresAt     string         `json:"expires_at,omitempty"`
}

// MessageResponse carries a user-facing confirmation
type MessageResponse struct {
	Msg string `json:"msg"`
}

// Register creates an account and logs it in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeNormalized(w, r, &req, func() {
		req.Email = textnorm.Email(req.Email)
		req.Username = textnorm.Username(req.Username)
	}) {
		return
	}

	ctx := r.Context()
	users, err := database.GetUserRepository(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	existing, err := users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		logging.FromContext(ctx).Error("user lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	if existing != nil {
		respondError(w, http.StatusBadRequest, msgUserExists)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), constants.BcryptCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	now := h.now()
	user := &database.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusBadRequest, msgUserExists)
			return
		}
		logging.FromContext(ctx).Error("failed to create user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	h.startSession(w, r, user)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeNormalized(w, r, &req, func() { req.Email = textnorm.Email(req.Email) }) {
		return
	}

	ctx := r.Context()
	users, err := database.GetUserRepository(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	user, err := users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		logging.FromContext(ctx).Error("user lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if user == nil {
		respondError(w, http.StatusBadRequest, msgInvalidCredentials)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondError(w, http.StatusBadRequest, msgPasswordIncorrect)
		return
	}

	h.startSession(w, r, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *database.User) {
	session, err := h.sessionManager.CreateSession(r.Context(), user.ID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create session", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.sessionManager.SetSessionCookie(w, r, session)

	respondJSON(w, http.StatusOK, AuthResponse{
		User:      user,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Status checks if the user is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}

	resp := StatusResponse{
		Authenticated: true,
		ExpiresAt:     session.ExpiresAt.Format(time.RFC3339),
	}
	if users, err := database.GetUserRepository(r.Context()); err == nil {
		if user, err := users.GetUserByID(r.Context(), session.UserID); err == nil {
			resp.User = user
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// ChangePassword issues a one-time reset link for the account
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeNormalized(w, r, &req, func() { req.Email = textnorm.Email(req.Email) }) {
		return
	}

	ctx := r.Context()
	users, err := database.GetUserRepository(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}
	tokens, err := database.GetResetTokenRepository(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	user, err := users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		logging.FromContext(ctx).Error("user lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to send reset email")
		return
	}
	if user == nil {
		respondError(w, http.StatusBadRequest, msgUserNotFound)
		return
	}

	now := h.now()
	token := database.ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(h.config.Auth.ResetTTL),
	}
	if err := tokens.SaveResetToken(ctx, token); err != nil {
		logging.FromContext(ctx).Error("failed to save reset token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to send reset email")
		return
	}

	link := h.config.Auth.ResetLink(h.signResetToken(token.ID))
	if err := h.notifier.SendResetLink(ctx, user, link); err != nil {
		logging.FromContext(ctx).Error("failed to send reset link", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to send reset email")
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Msg: msgResetSent})
}

// ResetPassword consumes a reset token and sets a new password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tokenID, ok := h.verifyResetToken(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, msgInvalidResetToken)
		return
	}

	ctx := r.Context()
	tokens, err := database.GetResetTokenRepository(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}
	users, err := database.GetUserRepository(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	token, err := tokens.GetResetToken(ctx, tokenID)
	if err != nil {
		logging.FromContext(ctx).Error("reset token lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if !token.Usable(h.now()) {
		respondError(w, http.StatusBadRequest, msgInvalidResetToken)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), constants.BcryptCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	claimed, err := tokens.MarkResetTokenUsed(ctx, token.ID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to mark reset token used", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if !claimed {
		respondError(w, http.StatusBadRequest, msgInvalidResetToken)
		return
	}

	if err := users.UpdatePassword(ctx, token.UserID, string(hash)); err != nil {
		logging.FromContext(ctx).Error("failed to update password", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	h.sessionManager.DeleteUserSessions(ctx, token.UserID)

	respondJSON(w, http.StatusOK, MessageResponse{Msg: "Password has been reset"})
}

// decodeNormalized decodes the body, applies normalize, then validates.
func decodeNormalized(w http.ResponseWriter, r *http.Request, dst any, normalize func()) bool {
	if err := decodeJSON(r, dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	normalize()
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}
