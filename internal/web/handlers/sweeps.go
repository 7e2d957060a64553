package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// SweepsHandler triggers absence sweeps for closed days.
type SweepsHandler struct {
	service *attendance.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewSweepsHandler creates a sweeps handler.
func NewSweepsHandler(service *attendance.Service, logger *zap.Logger) *SweepsHandler {
	return &SweepsHandler{service: service, logger: logging.OrNop(logger), now: time.Now}
}

type sweepRequest struct {
	Date string `json:"date"`
}

// SweepResponse reports how many identities were newly marked absent.
type SweepResponse struct {
	Date         string `json:"date"`
	MarkedAbsent int    `json:"marked_absent"`
}

// Create handles POST /api/v1/sweeps {"date": "YYYY-MM-DD"}.
func (h *SweepsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	day, err := database.ParseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	marked, err := h.service.SweepDay(r.Context(), day, h.now())
	if err != nil {
		if marked > 0 {
			h.logger.Warn("sweep partially applied",
				zap.Stringer("day", day),
				zap.Int("marked_absent", marked),
				zap.String("admin", middleware.SessionTag(r.Context())))
		}
		respondDomainError(w, h.logger, "sweep", err)
		return
	}
	h.logger.Info("manual sweep",
		zap.Stringer("day", day),
		zap.Int("marked_absent", marked),
		zap.String("admin", middleware.SessionTag(r.Context())))
	respondJSON(w, http.StatusOK, SweepResponse{Date: day.String(), MarkedAbsent: marked})
}
