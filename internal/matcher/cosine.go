package matcher

import "math"

// Similarity computes the cosine similarity between two vectors of equal length
// in float64. Returns a value between -1 (opposite) and 1 (identical).
// A zero vector on either side yields -1.
func Similarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity
}

// Distance is the cosine distance, 1 - Similarity, between 0 and 2.
func Distance(a, b []float32) float64 {
	return 1 - Similarity(a, b)
}
