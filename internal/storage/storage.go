// Package storage defines persistence for user profiles and profile embeddings
// and implements it on SQLite, PostgreSQL with pgvector, and memory.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/nearby/internal/models"
)

// ErrNotFound is returned when a profile or embedding does not exist.
var ErrNotFound = errors.New("not found")

// ProfileStore is the read-only profile access the retrieval engine needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetTags(ctx context.Context, userID string) ([]string, error)
	GetLocation(ctx context.Context, userID string) (*models.Location, error)
}

// ProfileWriter maintains profiles; used by import and bulk vectorization.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, p *models.UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error
	ListProfileIDs(ctx context.Context) ([]string, error)
}

// EmbeddingStore persists profile embeddings and answers the retrieval queries.
type EmbeddingStore interface {
	// UpsertEmbedding replaces vector, text and metadata of one user as a unit.
	UpsertEmbedding(ctx context.Context, e *models.ProfileEmbedding) error
	GetEmbedding(ctx context.Context, userID string) (*models.ProfileEmbedding, error)
	DeleteEmbedding(ctx context.Context, userID string) error
	SemanticSearch(ctx context.Context, p SemanticSearchParams) ([]*SemanticHit, error)
	GeoSearch(ctx context.Context, p GeoSearchParams) ([]*GeoHit, error)
	HybridGeoSemanticSearch(ctx context.Context, p HybridSearchParams) ([]*HybridHit, error)
	CitySearch(ctx context.Context, p CitySearchParams) ([]*GeoHit, error)
	CountEmbeddings(ctx context.Context) (int64, error)
	Close() error
}

// Store is a backend holding both profiles and embeddings.
type Store interface {
	ProfileStore
	ProfileWriter
	EmbeddingStore
	// Driver names the backend, e.g. "sqlite".
	Driver() string
}

// SemanticSearchParams is a nearest-neighbour query over profile embeddings.
type SemanticSearchParams struct {
	Vector        []float32
	Limit         int
	MinSimilarity float64
	ExcludeUserID string
}

// GeoSearchParams is a radius query over profile coordinates.
type GeoSearchParams struct {
	Origin        models.Coordinates
	RadiusKm      float64
	Limit         int
	ExcludeUserID string
}

// HybridSearchParams is a radius query ranked by fused location and semantic score.
type HybridSearchParams struct {
	Vector          []float32
	Origin          models.Coordinates
	RadiusKm        float64
	LocationWeight  float64
	DistanceScaleKm float64
	MinSimilarity   float64
	Limit           int
	ExcludeUserID   string
}

// CitySearchParams matches users declaring the same city (and state, when given).
type CitySearchParams struct {
	City          string
	State         string
	Limit         int
	ExcludeUserID string
}

// SemanticHit is a user returned by SemanticSearch.
type SemanticHit struct {
	UserID      string
	Similarity  float64
	ProfileText string
	Metadata    models.EmbeddingMetadata
}

// GeoHit is a user returned by GeoSearch or CitySearch.
type GeoHit struct {
	UserID     string
	DistanceKm float64
	Metadata   models.EmbeddingMetadata
}

// HybridHit is a user returned by HybridGeoSemanticSearch.
type HybridHit struct {
	UserID        string
	Similarity    float64
	DistanceKm    float64
	CombinedScore float64
	ProfileText   string
	Metadata      models.EmbeddingMetadata
}
