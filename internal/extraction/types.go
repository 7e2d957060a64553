// Package extraction turns a face image into a single embedding using the external embedding server.
package extraction

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Outcome of an extraction attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeNoFace        Outcome = "no_face"
	OutcomeMultipleFaces Outcome = "multiple_faces"
)

// Result is the typed result of extracting one face. Embedding is set only
// when Outcome is OutcomeSuccess.
type Result struct {
	Outcome    Outcome
	Embedding  database.Embedding
	BBox       []float64 // [x1, y1, x2, y2] in pixels of the normalized image
	DetScore   float64
	FacesCount int
}

// Success reports whether exactly one face was found.
func (r Result) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// Extractor produces a face embedding from image bytes. Face-count failures
// are reported through Result.Outcome, errors are reserved for transport,
// decoding and dimension problems.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Result, error)
}

// ErrInvalidImage is returned when the input cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}
