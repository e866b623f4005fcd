package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/vector"
)

// MemoryStore keeps profiles and embeddings in process memory.
// It is meant for tests, demos and the MCP server running without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	profiles   map[string]*models.UserProfile
	embeddings map[string]*models.ProfileEmbedding
	index      *vector.MemoryIndex
}

// NewMemoryStore returns an empty store for vectors of the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	idx, err := vector.NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		profiles:   make(map[string]*models.UserProfile),
		embeddings: make(map[string]*models.ProfileEmbedding),
		index:      idx,
	}, nil
}

// Driver returns "memory".
func (s *MemoryStore) Driver() string { return "memory" }

// UpsertProfile stores a normalized copy of p.
func (s *MemoryStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("profile requires a user_id")
	}
	cp := cloneProfile(p)
	cp.Normalize()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.profiles[cp.UserID] = cp
	s.mu.Unlock()
	return nil
}

// GetProfile returns a copy of the profile of userID.
func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	return cloneProfile(p), nil
}

// GetTags returns the tags of userID.
func (s *MemoryStore) GetTags(ctx context.Context, userID string) ([]string, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Tags, nil
}

// GetLocation returns the location of userID.
func (s *MemoryStore) GetLocation(ctx context.Context, userID string) (*models.Location, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &p.Location, nil
}

// DeleteProfile removes the profile and embedding of userID.
func (s *MemoryStore) DeleteProfile(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.profiles, userID)
	delete(s.embeddings, userID)
	s.mu.Unlock()
	return s.index.Remove(ctx, userID)
}

// ListProfileIDs returns all profile IDs in ascending order.
func (s *MemoryStore) ListProfileIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// UpsertEmbedding replaces the embedding of e.UserID.
func (s *MemoryStore) UpsertEmbedding(ctx context.Context, e *models.ProfileEmbedding) error {
	if e == nil || e.UserID == "" {
		return fmt.Errorf("embedding requires a user_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Upsert(ctx, e.UserID, e.Vector); err != nil {
		return err
	}
	cp := e.Clone()
	if prev, ok := s.embeddings[e.UserID]; ok && !prev.CreatedAt.IsZero() {
		cp.CreatedAt = prev.CreatedAt
	}
	s.embeddings[e.UserID] = cp
	return nil
}

// GetEmbedding returns a copy of the embedding of userID.
func (s *MemoryStore) GetEmbedding(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[userID]
	if !ok {
		return nil, fmt.Errorf("embedding %s: %w", userID, ErrNotFound)
	}
	return e.Clone(), nil
}

// DeleteEmbedding removes the embedding of userID.
func (s *MemoryStore) DeleteEmbedding(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.embeddings, userID)
	s.mu.Unlock()
	return s.index.Remove(ctx, userID)
}

// SemanticSearch returns embeddings most similar to p.Vector.
func (s *MemoryStore) SemanticSearch(ctx context.Context, p SemanticSearchParams) ([]*SemanticHit, error) {
	results, err := s.index.Search(ctx, p.Vector, vector.SearchOptions{
		Limit:         p.Limit,
		MinSimilarity: p.MinSimilarity,
		Exclude:       p.ExcludeUserID,
	})
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]*SemanticHit, 0, len(results))
	for _, r := range results {
		e, ok := s.embeddings[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, &SemanticHit{
			UserID:      r.ID,
			Similarity:  r.Score,
			ProfileText: e.ProfileText,
			Metadata:    e.Clone().Metadata,
		})
	}
	return hits, nil
}

// GeoSearch returns profiles with coordinates within p.RadiusKm of p.Origin.
func (s *MemoryStore) GeoSearch(ctx context.Context, p GeoSearchParams) ([]*GeoHit, error) {
	s.mu.RLock()
	hits := make([]*GeoHit, 0)
	for id, prof := range s.profiles {
		if id == p.ExcludeUserID || prof.Location.Coordinates == nil {
			continue
		}
		d := geo.Haversine(p.Origin, *prof.Location.Coordinates)
		if d > p.RadiusKm {
			continue
		}
		hits = append(hits, &GeoHit{UserID: id, DistanceKm: d, Metadata: models.MetadataFromProfile(prof)})
	}
	s.mu.RUnlock()
	return sortGeoHits(hits, p.Limit), nil
}

// HybridGeoSemanticSearch ranks embedded users within the radius by fused score.
func (s *MemoryStore) HybridGeoSemanticSearch(ctx context.Context, p HybridSearchParams) ([]*HybridHit, error) {
	return hybridFromIndex(ctx, s.index, s.GeoSearch, s.GetEmbedding, p)
}

// CitySearch returns profiles declaring the same city, at distance 0.
func (s *MemoryStore) CitySearch(ctx context.Context, p CitySearchParams) ([]*GeoHit, error) {
	s.mu.RLock()
	hits := make([]*GeoHit, 0)
	for id, prof := range s.profiles {
		if id == p.ExcludeUserID || !sameCity(prof, p.City, p.State) {
			continue
		}
		hits = append(hits, &GeoHit{UserID: id, Metadata: models.MetadataFromProfile(prof)})
	}
	s.mu.RUnlock()
	return sortGeoHits(hits, p.Limit), nil
}

// CountEmbeddings returns the number of stored embeddings.
func (s *MemoryStore) CountEmbeddings(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.embeddings)), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error { return nil }

func cloneProfile(p *models.UserProfile) *models.UserProfile {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	cp.Languages.Preferred = append([]string(nil), p.Languages.Preferred...)
	if p.Location.Coordinates != nil {
		c := *p.Location.Coordinates
		cp.Location.Coordinates = &c
	}
	return &cp
}
