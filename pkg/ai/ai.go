// Package ai defines the model capabilities the pipeline consumes. The
// pipeline depends on these narrow interfaces; concrete providers live in
// subpackages.
package ai

import "context"

// Embedder turns query text into a vector for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelMetrics aggregates token usage across model calls.
type ModelMetrics struct {
	InputTokens int
	TotalTokens int
	DurationMs  int64
}

// Add merges another measurement into m.
func (m *ModelMetrics) Add(other ModelMetrics) {
	m.InputTokens += other.InputTokens
	m.TotalTokens += other.TotalTokens
	m.DurationMs += other.DurationMs
}
