package database

import "math"

// cosineEpsilon keeps the distance defined for all-zero vectors.
const cosineEpsilon = 1e-8

// MaxCosineDistance is returned for vectors that cannot be compared.
const MaxCosineDistance = 2.0

// CosineDistance computes 1 - (a·b)/(‖a‖‖b‖ + ε).
// Returns 0 for identical directions and up to 2 for opposite ones.
// Vectors of different (or zero) length get MaxCosineDistance.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return MaxCosineDistance
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	return 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB)+cosineEpsilon)
}
