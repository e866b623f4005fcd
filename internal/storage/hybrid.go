package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/vector"
)

// hybridFromIndex answers a hybrid query for stores that keep vectors in a
// vector.Index: the geo channel picks candidates, the index scores them.
func hybridFromIndex(
	ctx context.Context,
	idx vector.Index,
	geoSearch func(context.Context, GeoSearchParams) ([]*GeoHit, error),
	embedding func(context.Context, string) (*models.ProfileEmbedding, error),
	p HybridSearchParams,
) ([]*HybridHit, error) {
	nearby, err := geoSearch(ctx, GeoSearchParams{
		Origin:        p.Origin,
		RadiusKm:      p.RadiusKm,
		ExcludeUserID: p.ExcludeUserID,
	})
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}
	allow := make(map[string]struct{}, len(nearby))
	distance := make(map[string]float64, len(nearby))
	for _, h := range nearby {
		allow[h.UserID] = struct{}{}
		distance[h.UserID] = h.DistanceKm
	}
	scored, err := idx.Search(ctx, p.Vector, vector.SearchOptions{
		MinSimilarity: p.MinSimilarity,
		Exclude:       p.ExcludeUserID,
		Allow:         allow,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]*HybridHit, 0, len(scored))
	for _, r := range scored {
		e, err := embedding(ctx, r.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load embedding %s: %w", r.ID, err)
		}
		d := distance[r.ID]
		hits = append(hits, &HybridHit{
			UserID:        r.ID,
			Similarity:    r.Score,
			DistanceKm:    d,
			CombinedScore: p.LocationWeight*geo.LocationScore(d, p.DistanceScaleKm) + (1-p.LocationWeight)*r.Score,
			ProfileText:   e.ProfileText,
			Metadata:      e.Metadata,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].CombinedScore != hits[j].CombinedScore {
			return hits[i].CombinedScore > hits[j].CombinedScore
		}
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].UserID < hits[j].UserID
	})
	if p.Limit > 0 && len(hits) > p.Limit {
		hits = hits[:p.Limit]
	}
	return hits, nil
}

func sortGeoHits(hits []*GeoHit, limit int) []*GeoHit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].UserID < hits[j].UserID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sameCity(p *models.UserProfile, city, state string) bool {
	if city == "" || !strings.EqualFold(strings.TrimSpace(p.Location.City), strings.TrimSpace(city)) {
		return false
	}
	return state == "" || strings.EqualFold(strings.TrimSpace(p.Location.State), strings.TrimSpace(state))
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
