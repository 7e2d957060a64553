package database

import (
	"encoding/json"
	"fmt"
)

// DefaultEmbeddingDim is the dimension of the face embeddings produced by the
// embedding server (512 for buffalo_l / Facenet512).
const DefaultEmbeddingDim = 512

// Embedding is a fixed-length face embedding vector.
type Embedding []float32

// Dim returns the number of components.
func (e Embedding) Dim() int {
	return len(e)
}

// Validate checks that the embedding has exactly dim components.
// A dim of zero or less only rejects empty embeddings.
func (e Embedding) Validate(dim int) error {
	if len(e) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	if dim > 0 && len(e) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e), dim)
	}
	return nil
}

// DecodeEmbeddingJSON parses the legacy JSON-array text encoding and checks its dimension.
func DecodeEmbeddingJSON(text string, dim int) (Embedding, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(text), &vec); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	emb := Embedding(vec)
	if err := emb.Validate(dim); err != nil {
		return nil, err
	}
	return emb, nil
}

// EncodeEmbeddingJSON renders the embedding as a JSON array.
func EncodeEmbeddingJSON(e Embedding) (string, error) {
	data, err := json.Marshal([]float32(e))
	if err != nil {
		return "", fmt.Errorf("encode embedding: %w", err)
	}
	return string(data), nil
}
