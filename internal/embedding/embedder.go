// Package embedding provides text embedders and an embedding cache.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingUnavailable is returned when no embedding service is configured.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable: no credentials configured")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// UnavailableEmbedder fails every call with ErrEmbeddingUnavailable.
// It stands in for a real embedder when credentials are missing so that
// location-only searches keep working.
type UnavailableEmbedder struct {
	dimensions int
}

// NewUnavailableEmbedder returns an embedder that always fails.
func NewUnavailableEmbedder(dimensions int) *UnavailableEmbedder {
	return &UnavailableEmbedder{dimensions: dimensions}
}

func (e *UnavailableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingUnavailable
}

func (e *UnavailableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrEmbeddingUnavailable
}

func (e *UnavailableEmbedder) Dimensions() int { return e.dimensions }

func (e *UnavailableEmbedder) Close() error { return nil }

// Available reports whether e can produce embeddings at all.
func Available(e Embedder) bool {
	for e != nil {
		switch v := e.(type) {
		case *UnavailableEmbedder:
			return false
		case interface{ Unwrap() Embedder }:
			e = v.Unwrap()
		default:
			return true
		}
	}
	return false
}
