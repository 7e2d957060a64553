package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// AuthHandler handles admin PIN login
type AuthHandler struct {
	pin            string
	sessionManager *middleware.SessionManager
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler. An empty pin disables login.
func NewAuthHandler(pin string, sm *middleware.SessionManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		pin:            pin,
		sessionManager: sm,
		logger:         logging.OrNop(logger),
	}
}

// loginRequest represents a login request
type loginRequest struct {
	PIN string `json:"pin"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Login handles admin login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.pin == "" {
		respondError(w, http.StatusServiceUnavailable, "admin login is disabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PIN == "" {
		respondError(w, http.StatusBadRequest, "pin is required")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.PIN), []byte(h.pin)) != 1 {
		h.logger.Info("admin login rejected", zap.String("remote", r.RemoteAddr))
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid pin",
		})
		return
	}

	session, err := h.sessionManager.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("failed to create admin session", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, session)
	h.logger.Info("admin logged in",
		zap.String("admin", middleware.SessionTag(middleware.SetSessionInContext(r.Context(), session))),
		zap.String("remote", r.RemoteAddr))

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout handles admin logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	LoginEnabled  bool   `json:"login_enabled"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status checks if the user is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false, LoginEnabled: h.pin != ""})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		LoginEnabled:  h.pin != "",
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
