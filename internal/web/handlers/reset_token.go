package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const resetTokenContext = "password-reset:"

func (h *AuthHandler) resetSecret() []byte {
	if h.config.Auth.ResetSecret != "" {
		return []byte(h.config.Auth.ResetSecret)
	}
	return []byte("sketch-match-dev-reset-secret")
}

// signResetToken returns "<id>.<sig>".
func (h *AuthHandler) signResetToken(id string) string {
	return id + "." + h.resetSignature(id)
}

func (h *AuthHandler) resetSignature(id string) string {
	mac := hmac.New(sha256.New, h.resetSecret())
	mac.Write([]byte(resetTokenContext + id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verifyResetToken checks the signature and returns the token id.
func (h *AuthHandler) verifyResetToken(token string) (string, bool) {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || id == "" {
		return "", false
	}
	return id, hmac.Equal([]byte(sig), []byte(h.resetSignature(id)))
}
