package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// IdentitiesHandler lists and enrolls identities.
type IdentitiesHandler struct {
	service *attendance.Service
	logger  *zap.Logger
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(service *attendance.Service, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{service: service, logger: logging.OrNop(logger)}
}

// IdentitiesResponse lists identities and the known groups.
type IdentitiesResponse struct {
	Identities []*identityResponse `json:"identities"`
	Groups     []string            `json:"groups"`
	Count      int                 `json:"count"`
}

// List handles GET /api/v1/identities?category=&group=
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	people, err := h.service.ListPeople(r.Context(), filter)
	if err != nil {
		respondDomainError(w, h.logger, "list identities", err)
		return
	}
	groups, err := h.service.Identities.ListGroups(r.Context())
	if err != nil {
		respondDomainError(w, h.logger, "list groups", err)
		return
	}

	resp := IdentitiesResponse{
		Identities: make([]*identityResponse, 0, len(people)),
		Groups:     groups,
		Count:      len(people),
	}
	if resp.Groups == nil {
		resp.Groups = []string{}
	}
	for i := range people {
		resp.Identities = append(resp.Identities, toIdentityResponse(&people[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/v1/identities (multipart: name, category, group, image).
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	image, err := readFormImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	category := r.FormValue("category")
	if category == "" {
		category = "student"
	}
	created, err := h.service.Enroll(r.Context(), attendance.EnrollRequest{
		Name:     r.FormValue("name"),
		Category: category,
		Group:    r.FormValue("group"),
		Image:    image,
	})
	if err != nil {
		h.logger.Info("enrollment rejected",
			zap.String("name", sanitizeForLog(r.FormValue("name"))),
			zap.String("admin", middleware.SessionTag(r.Context())),
			zap.Error(err))
		respondDomainError(w, h.logger, "enrollment", err)
		return
	}
	respondJSON(w, http.StatusCreated, toIdentityResponse(&created))
}
