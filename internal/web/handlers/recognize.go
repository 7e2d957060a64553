package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extraction"
	"github.com/kozaktomas/face-attendance/internal/logging"
)

// RecognizeHandler serves kiosk recognition requests.
type RecognizeHandler struct {
	recognizer *attendance.Recognizer
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecognizeHandler creates a recognize handler.
func NewRecognizeHandler(recognizer *attendance.Recognizer, logger *zap.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		recognizer: recognizer,
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
}

// recognizeRequest carries either a precomputed embedding or a base64 image.
type recognizeRequest struct {
	Embedding []float32 `json:"embedding"`
	ImageB64  string    `json:"image_b64"`
}

// RecognizeResponse is the result of one recognition request.
type RecognizeResponse struct {
	OK            bool              `json:"ok"`
	Outcome       string            `json:"outcome"`
	Identity      *identityResponse `json:"identity"`
	Distance      float64           `json:"distance"`
	WindowState   string            `json:"window_state"`
	MarkedPresent bool              `json:"marked_present"`
	Ambiguous     bool              `json:"ambiguous,omitempty"`
	Date          string            `json:"date"`
}

// Recognize handles POST /api/v1/recognize with a JSON body
// ({"embedding": [...]} or {"image_b64": "..."}) or a multipart "image" file.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	now := h.now()

	var (
		res attendance.RecognitionResult
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		image, readErr := readFormImage(r, "image")
		if readErr != nil {
			respondError(w, http.StatusBadRequest, readErr.Error())
			return
		}
		res, err = h.recognizer.RecognizeImage(r.Context(), image, now)
	} else {
		var req recognizeRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		switch {
		case len(req.Embedding) > 0:
			res, err = h.recognizer.Recognize(r.Context(), database.Embedding(req.Embedding), now)
		case req.ImageB64 != "":
			image, decodeErr := extraction.DecodeBase64Image(req.ImageB64)
			if decodeErr != nil {
				respondError(w, http.StatusBadRequest, decodeErr.Error())
				return
			}
			res, err = h.recognizer.RecognizeImage(r.Context(), image, now)
		default:
			respondError(w, http.StatusBadRequest, "embedding or image_b64 is required")
			return
		}
	}
	if err != nil {
		respondDomainError(w, h.logger, "recognition", err)
		return
	}

	respondJSON(w, http.StatusOK, RecognizeResponse{
		OK:            true,
		Outcome:       res.Outcome(),
		Identity:      toIdentityResponse(res.Identity),
		Distance:      res.Distance,
		WindowState:   string(res.WindowState),
		MarkedPresent: res.MarkedPresent,
		Ambiguous:     res.Ambiguous,
		Date:          res.Day.String(),
	})
}

// readFormImage reads one uploaded file from a multipart form.
func readFormImage(r *http.Request, field string) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.New("invalid multipart form")
	}
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, errors.New(field + " file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read " + field)
	}
	if len(data) == 0 {
		return nil, errors.New(field + " file is empty")
	}
	return data, nil
}
