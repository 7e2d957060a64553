package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extraction"
	"github.com/kozaktomas/face-attendance/internal/report"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadBytes bounds image uploads and JSON bodies carrying base64 images.
const maxUploadBytes = 10 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, database.ErrLedgerUnavailable),
		errors.Is(err, attendance.ErrGalleryUnavailable),
		errors.Is(err, attendance.ErrNoExtractor):
		return http.StatusServiceUnavailable
	case errors.Is(err, database.ErrDuplicateName),
		errors.Is(err, attendance.ErrDayNotClosed):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrNoFace),
		errors.Is(err, attendance.ErrMultipleFaces):
		return http.StatusUnprocessableEntity
	case errors.Is(err, database.ErrDimensionMismatch),
		errors.Is(err, extraction.ErrInvalidImage),
		errors.Is(err, attendance.ErrInvalidEnrollment),
		errors.Is(err, report.ErrInvalidDateRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError logs err and answers with the mapped status. Server-side
// failures get a generic message; retryable ones get a Retry-After hint.
func respondDomainError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status := statusForError(err)
	switch {
	case status == http.StatusServiceUnavailable:
		logger.Warn(op+" unavailable", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		respondError(w, status, "service temporarily unavailable, retry")
	case status >= http.StatusInternalServerError:
		logger.Error(op+" failed", zap.Error(err))
		respondError(w, status, op+" failed")
	default:
		respondError(w, status, err.Error())
	}
}

// identityResponse is the public view of an identity.
type identityResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Group     string `json:"group,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toIdentityResponse(id *database.Identity) *identityResponse {
	if id == nil {
		return nil
	}
	resp := &identityResponse{
		ID:       id.ID,
		Name:     id.DisplayName,
		Category: string(id.Category),
		Group:    id.Group,
	}
	if !id.CreatedAt.IsZero() {
		resp.CreatedAt = id.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// parseFilter reads category and group query parameters.
func parseFilter(r *http.Request) (database.IdentityFilter, error) {
	var f database.IdentityFilter
	if c := r.URL.Query().Get("category"); c != "" {
		cat, err := database.ParseCategory(c)
		if err != nil {
			return f, err
		}
		f.Category = cat
	}
	f.Group = strings.TrimSpace(r.URL.Query().Get("group"))
	return f, nil
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and, when a Pinger is set, database reachability.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles the health check endpoint.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":     false,
				"status": "database unavailable",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": "ok",
	})
}
