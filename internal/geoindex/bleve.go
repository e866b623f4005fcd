// Package geoindex provides a Bleve geo-point index for radius queries over user coordinates.
package geoindex

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"

	"github.com/hyperjump/nearby/internal/models"
)

const locationField = "location"

// BleveIndex indexes one geo point per user.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(locationField, bleve.NewGeoPointFieldMapping())
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory geo index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open geo index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create geo index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index stores or replaces the point of userID.
func (b *BleveIndex) Index(ctx context.Context, userID string, c models.Coordinates) error {
	doc := map[string]interface{}{
		locationField: map[string]interface{}{"lat": c.Lat, "lon": c.Lng},
	}
	if err := b.index.Index(userID, doc); err != nil {
		return fmt.Errorf("geo index %s: %w", userID, err)
	}
	return nil
}

// Delete removes the point of userID.
func (b *BleveIndex) Delete(ctx context.Context, userID string) error {
	return b.index.Delete(userID)
}

// Within returns the IDs of users within radiusKm of origin. limit <= 0 returns all.
func (b *BleveIndex) Within(ctx context.Context, origin models.Coordinates, radiusKm float64, limit int) ([]string, error) {
	if limit <= 0 {
		n, err := b.index.DocCount()
		if err != nil {
			return nil, fmt.Errorf("geo index count failed: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		limit = int(n)
	}
	q := bleve.NewGeoDistanceQuery(origin.Lng, origin.Lat, fmt.Sprintf("%.3fkm", radiusKm))
	q.SetField(locationField)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("geo search failed: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of indexed points.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
