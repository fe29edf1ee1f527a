package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// mockDims matches the dimensionality of the default embedding model.
const mockDims = 384

// MockEmbedder is a test double for ai.Embedder. Behavior is injected
// through the function fields; when a field is nil the embedder falls
// back to deterministic hash-derived vectors, so tests that only need
// "same text, same vector" work without any setup.
type MockEmbedder struct {
	EmbedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	callCount int
}

// NewMockEmbedder returns the concrete type so tests can reach the
// function fields and call counters directly.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// EmbedText embeds one text deterministically unless EmbedTextFunc is set.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount++
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return textVector(text), nil
}

// EmbedTexts embeds each text independently, so a batch result always
// agrees with the corresponding single-text calls.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount++
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = textVector(text)
	}
	return vectors, nil
}

// CallCount returns how many times either embed method was called.
func (m *MockEmbedder) CallCount() int {
	return m.callCount
}

// Reset clears the call count and any injected behavior.
func (m *MockEmbedder) Reset() {
	m.callCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// textVector derives a unit vector from the text alone: an FNV hash
// seeds a small LCG that fills the components, then the result is
// normalized. Equal texts always map to equal vectors.
func textVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	v := make([]float32, mockDims)
	var sum float64
	for i := range v {
		state = state*6364136223846793005 + 1442695040888963407
		v[i] = float32(state>>40) / float32(1<<24)
		sum += float64(v[i]) * float64(v[i])
	}

	if norm := math.Sqrt(sum); norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v
}
