package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/report"
)

// ReportsHandler exports monthly and daily attendance as CSV.
type ReportsHandler struct {
	service *attendance.Service
	builder *report.Builder
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(service *attendance.Service, builder *report.Builder, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{
		service: service,
		builder: builder,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

type monthlyReportRequest struct {
	Category string `json:"category"`
	Group    string `json:"group"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
}

// Monthly handles POST /api/v1/reports/monthly.
func (h *ReportsHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	var req monthlyReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	category, err := database.ParseCategory(req.Category)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := report.ValidateMonth(req.Year, req.Month); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	group := strings.TrimSpace(req.Group)
	if category != database.CategoryStudent {
		group = ""
	}

	people, err := h.service.ListPeople(r.Context(), database.IdentityFilter{Category: category, Group: group})
	if err != nil {
		respondDomainError(w, h.logger, "monthly report", err)
		return
	}
	grid, err := h.builder.BuildMonth(r.Context(), people, req.Year, req.Month, h.now())
	if err != nil {
		respondDomainError(w, h.logger, "monthly report", err)
		return
	}
	h.sendCSV(w, report.MonthFilename(string(category), group, req.Year, req.Month), grid)
}

// Daily handles GET /api/v1/reports/daily?date=YYYY-MM-DD (default today).
func (h *ReportsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	day := attendance.Today(h.now(), h.service.Window)
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := database.ParseDate(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	people, err := h.service.ListPeople(r.Context(), filter)
	if err != nil {
		respondDomainError(w, h.logger, "daily report", err)
		return
	}
	table, err := h.builder.BuildDay(r.Context(), people, day)
	if err != nil {
		respondDomainError(w, h.logger, "daily report", err)
		return
	}
	h.sendCSV(w, report.DayFilename(day.String()), table)
}

// sendCSV renders the whole table before writing headers, so failures can
// still be reported as JSON.
func (h *ReportsHandler) sendCSV(w http.ResponseWriter, filename string, t report.Table) {
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, t); err != nil {
		respondDomainError(w, h.logger, "csv export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
