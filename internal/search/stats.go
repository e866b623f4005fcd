package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/nearby/internal/embedding"
)

// Statistics describes the engine's state and tunables.
type Statistics struct {
	CachedEmbeddings    int     `json:"cached_embeddings"`
	StoredEmbeddings    int64   `json:"stored_embeddings"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MinSimilarity       float64 `json:"min_similarity"`
	LocationWeight      float64 `json:"location_weight"`
	DefaultRadiusKm     float64 `json:"default_radius_km"`
	CandidateMultiplier int     `json:"candidate_multiplier"`
	Dimensions          int     `json:"embedding_dimensions"`
	StoreDriver         string  `json:"store_driver"`
	EmbeddingsAvailable bool    `json:"embeddings_available"`
	StorageBytes        int64   `json:"storage_bytes,omitempty"`
}

// Statistics reports cache and store counts alongside the configured thresholds.
func (e *Engine) Statistics(ctx context.Context) (*Statistics, error) {
	stored, err := e.store.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	st := &Statistics{
		CachedEmbeddings:    e.vectorizer.CacheSize(),
		StoredEmbeddings:    stored,
		SimilarityThreshold: e.config.SimilarityThreshold,
		MinSimilarity:       e.config.Defaults.MinSimilarity,
		LocationWeight:      e.config.Defaults.LocationWeight,
		DefaultRadiusKm:     e.config.Defaults.RadiusKm,
		CandidateMultiplier: e.config.CandidateMultiplier,
		Dimensions:          e.embedder.Dimensions(),
		EmbeddingsAvailable: embedding.Available(e.embedder),
		StoreDriver:         "unknown",
	}
	if d, ok := e.store.(interface{ Driver() string }); ok {
		st.StoreDriver = d.Driver()
	}
	if e.footprint != nil {
		n, err := e.footprint()
		if err != nil {
			return nil, fmt.Errorf("storage size: %w", err)
		}
		st.StorageBytes = n
	}
	return st, nil
}
