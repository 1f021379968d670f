package services

import (
	"context"
	"fmt"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/logger"
)

// DefaultEmbedBatchSize is used when no batch size is configured.
const DefaultEmbedBatchSize = 32

// Embedder turns chunks and queries into vectors of a fixed dimension.
// A nil provider disables embedding: chunks are indexed for keyword
// search only and queries produce no vector.
type Embedder struct {
	provider   driven.EmbeddingService
	batchSize  int
	dimensions int
}

// NewEmbedder wraps provider. dimensions <= 0 takes the provider's own.
func NewEmbedder(provider driven.EmbeddingService, batchSize, dimensions int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	if dimensions <= 0 && provider != nil {
		dimensions = provider.Dimensions()
	}
	return &Embedder{
		provider:   provider,
		batchSize:  batchSize,
		dimensions: dimensions,
	}
}

// Enabled reports whether a provider is configured.
func (e *Embedder) Enabled() bool {
	return e != nil && e.provider != nil
}

// Dimensions returns the enforced vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// ModelVersion identifies the model that produced the vectors.
func (e *Embedder) ModelVersion() string {
	if !e.Enabled() {
		return ""
	}
	return e.provider.ModelName()
}

// EmbedChunks pairs every chunk with its embedding, in input order.
// Texts are sent in batches; any wrong-sized vector fails the whole call.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexedChunk, error) {
	out := make([]domain.IndexedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = domain.IndexedChunk{Chunk: c}
	}
	if !e.Enabled() || len(chunks) == 0 {
		return out, nil
	}

	model := e.provider.ModelName()
	for start := 0; start < len(chunks); start += e.batchSize {
		end := min(start+e.batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := e.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(vectors), len(texts))
		}

		for i, vec := range vectors {
			if err := e.check(vec); err != nil {
				return nil, err
			}
			idx := start + i
			out[idx].Embedding = &domain.ChunkEmbedding{
				ChunkID:      chunks[idx].ID,
				Vector:       vec,
				ModelVersion: model,
			}
		}
		logger.Debug("Embedded chunks %d-%d with %s", start, end-1, model)
	}
	return out, nil
}

// EmbedQuery returns the query vector, or nil when embedding is disabled.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !e.Enabled() {
		return nil, nil
	}
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if err := e.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) check(vec []float32) error {
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), e.dimensions)
	}
	return nil
}
