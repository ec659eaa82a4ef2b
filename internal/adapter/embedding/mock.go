package embedding

import (
	"context"
	"math"
	"sync/atomic"
)

// MockEmbedder produces deterministic pseudo-embeddings from character
// histograms. Useful for tests and for trying the pipeline without a
// provider; similar texts get similar vectors.
type MockEmbedder struct {
	dimension int
	calls     atomic.Int64
	failWith  error
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	if e.failWith != nil {
		return nil, e.failWith
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		for _, r := range text {
			vec[int(r)%e.dimension]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range vec {
				vec[j] *= scale
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

// Calls returns how many Embed invocations have been made.
func (e *MockEmbedder) Calls() int {
	return int(e.calls.Load())
}

// FailWith makes every subsequent Embed call return err; pass nil to
// restore normal behavior.
func (e *MockEmbedder) FailWith(err error) {
	e.failWith = err
}
