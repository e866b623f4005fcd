package search

import (
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/ranking"
	"github.com/hyperjump/nearby/internal/storage"
)

func candidateFromMetadata(userID string, md models.EmbeddingMetadata) *models.ScoredCandidate {
	return &models.ScoredCandidate{
		UserID:   userID,
		Name:     md.Name,
		Tags:     append([]string(nil), md.Tags...),
		Metadata: md,
	}
}

func fromSemanticHits(hits []*storage.SemanticHit) []*models.ScoredCandidate {
	out := make([]*models.ScoredCandidate, 0, len(hits))
	for _, h := range hits {
		c := candidateFromMetadata(h.UserID, h.Metadata)
		c.HasSemantic = true
		c.SemanticScore = h.Similarity
		c.ProfileText = h.ProfileText
		out = append(out, c)
	}
	return out
}

func fromGeoHits(hits []*storage.GeoHit) []*models.ScoredCandidate {
	out := make([]*models.ScoredCandidate, 0, len(hits))
	for _, h := range hits {
		c := candidateFromMetadata(h.UserID, h.Metadata)
		c.HasLocation = true
		d := h.DistanceKm
		c.DistanceKm = &d
		out = append(out, c)
	}
	return out
}

// fromHybridHits keeps the store's combined score and fills in the location
// score for display.
func fromHybridHits(hits []*storage.HybridHit, f *ranking.Fuser) []*models.ScoredCandidate {
	out := make([]*models.ScoredCandidate, 0, len(hits))
	for _, h := range hits {
		c := candidateFromMetadata(h.UserID, h.Metadata)
		c.HasSemantic = true
		c.HasLocation = true
		c.SemanticScore = h.Similarity
		c.ProfileText = h.ProfileText
		d := h.DistanceKm
		c.DistanceKm = &d
		c.LocationScore = f.LocationScore(d)
		c.CombinedScore = h.CombinedScore
		out = append(out, c)
	}
	return out
}

// shapeLocation exposes only the location fields the candidate's privacy
// level allows. Distances are shown for exact locations only.
func shapeLocation(c *models.ScoredCandidate) {
	md := c.Metadata
	level := md.PrivacyLevel.OrDefault()
	view := models.LocationView{PrivacyLevel: level}
	switch level {
	case models.PrivacyExact:
		view.City, view.State, view.Country = md.City, md.State, md.Country
	case models.PrivacyCityOnly:
		view.City, view.State, view.Country = md.City, md.State, md.Country
		c.DistanceKm = nil
	case models.PrivacyStateOnly:
		view.State, view.Country = md.State, md.Country
		c.DistanceKm = nil
	case models.PrivacyCountryOnly:
		view.Country = md.Country
		c.DistanceKm = nil
	default:
		c.DistanceKm = nil
	}
	c.Location = view
}
