package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// KioskHandler exposes the window configuration shown on kiosk screens.
type KioskHandler struct {
	window attendance.WindowSpec
	now    func() time.Time
}

// NewKioskHandler creates a kiosk handler.
func NewKioskHandler(window attendance.WindowSpec) *KioskHandler {
	return &KioskHandler{window: window, now: time.Now}
}

// KioskResponse describes today's window.
type KioskResponse struct {
	Window      string `json:"window"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Timezone    string `json:"timezone"`
	Today       string `json:"today"`
	WindowState string `json:"window_state"`
}

// Config handles GET /api/v1/kiosk.
func (h *KioskHandler) Config(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	today := attendance.Today(now, h.window)
	tz := "UTC"
	if h.window.Location != nil {
		tz = h.window.Location.String()
	}
	respondJSON(w, http.StatusOK, KioskResponse{
		Window:      h.window.String(),
		Start:       h.window.Start.String(),
		End:         h.window.End.String(),
		Timezone:    tz,
		Today:       today.String(),
		WindowState: string(attendance.Classify(now, h.window, today)),
	})
}
