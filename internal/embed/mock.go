package embed

import (
	"context"
	"crypto/sha256"
	"math"
)

// Mock is a deterministic in-process provider for tests. Vectors are derived
// from a hash of the input so identical texts embed identically and distinct
// texts diverge.
type Mock struct {
	Dims int
	// Err, when set, is returned by every call.
	Err error
	// Calls counts EmbedDocuments and EmbedQuery invocations.
	Calls int
}

func (m *Mock) ID() string    { return "mock" }
func (m *Mock) Model() string { return "mock-embed" }

func (m *Mock) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *Mock) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.vector(text), nil
}

func (m *Mock) vector(text string) []float32 {
	dims := m.Dims
	if dims <= 0 {
		dims = 8
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) - 128
		norm += float64(vec[i]) * float64(vec[i])
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
