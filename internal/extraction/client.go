package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
)

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL string
	dim     int
	maxSide int
	client  *http.Client
}

// NewClient creates a new embedding client. Embeddings are checked against dim;
// images are downscaled to maxSide before upload.
func NewClient(baseURL string, dim, maxSide int) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		maxSide: maxSide,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// WithHTTPClient replaces the HTTP client (tests, custom transports).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Extract normalizes the image, asks the server for faces and requires exactly one.
func (c *Client) Extract(ctx context.Context, image []byte) (Result, error) {
	normalized, err := NormalizeImage(image, c.maxSide)
	if err != nil {
		return Result{}, err
	}

	resp, err := c.ComputeFaceEmbeddings(ctx, normalized)
	if err != nil {
		return Result{}, err
	}

	faces := dedupeDetections(resp.Faces, duplicateIoU)
	res := Result{FacesCount: len(faces)}
	switch len(faces) {
	case 0:
		res.Outcome = OutcomeNoFace
		return res, nil
	case 1:
	default:
		res.Outcome = OutcomeMultipleFaces
		return res, nil
	}

	face := faces[0]
	emb := database.Embedding(face.Embedding)
	if err := emb.Validate(c.dim); err != nil {
		return Result{}, fmt.Errorf("embedding server returned bad face: %w", err)
	}
	res.Outcome = OutcomeSuccess
	res.Embedding = emb
	res.BBox = face.BBox
	res.DetScore = face.DetScore
	return res, nil
}
