package models

import (
	"fmt"
	"math"
	"strings"
)

// SearchMode selects which retrieval channels a search uses.
type SearchMode string

const (
	ModeLocation SearchMode = "location"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// ParseSearchMode parses a mode name; the empty string maps to hybrid.
func ParseSearchMode(s string) (SearchMode, error) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeHybrid, nil
	case ModeLocation, ModeSemantic, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

// QueryDefaults are applied to unset query fields by Validate.
type QueryDefaults struct {
	MaxResults      int
	MaxResultsLimit int
	RadiusKm        float64
	MinSimilarity   float64
	LocationWeight  float64
}

// SearchQuery is a single nearby-user search request. It is constructed per call.
type SearchQuery struct {
	RequesterID   string     `json:"requester_id"`
	Mode          SearchMode `json:"mode"`
	SemanticQuery string     `json:"semantic_query,omitempty"`
	RadiusKm      float64    `json:"radius_km,omitempty"`
	MaxResults    int        `json:"max_results,omitempty"`
	// MinSimilarity and LocationWeight are pointers because zero is a valid value.
	MinSimilarity  *float64 `json:"min_similarity,omitempty"`
	LocationWeight *float64 `json:"location_weight,omitempty"`
}

// Threshold returns the minimum semantic similarity, or 0 when unset.
func (q *SearchQuery) Threshold() float64 {
	if q.MinSimilarity == nil {
		return 0
	}
	return *q.MinSimilarity
}

// Weight returns the location weight, or 0 when unset.
func (q *SearchQuery) Weight() float64 {
	if q.LocationWeight == nil {
		return 0
	}
	return *q.LocationWeight
}

// Validate ensures the query has valid fields and fills unset ones from d.
func (q *SearchQuery) Validate(d QueryDefaults) error {
	q.RequesterID = strings.TrimSpace(q.RequesterID)
	if q.RequesterID == "" {
		return fmt.Errorf("requester_id cannot be empty")
	}
	mode, err := ParseSearchMode(string(q.Mode))
	if err != nil {
		return err
	}
	q.Mode = mode
	q.SemanticQuery = strings.TrimSpace(q.SemanticQuery)

	if q.MaxResults <= 0 {
		q.MaxResults = d.MaxResults
	}
	if d.MaxResultsLimit > 0 && q.MaxResults > d.MaxResultsLimit {
		q.MaxResults = d.MaxResultsLimit
	}
	if q.RadiusKm < 0 || math.IsNaN(q.RadiusKm) || math.IsInf(q.RadiusKm, 0) {
		return fmt.Errorf("radius_km must be a finite non-negative number, got %v", q.RadiusKm)
	}
	if q.RadiusKm == 0 {
		q.RadiusKm = d.RadiusKm
	}
	if q.MinSimilarity == nil {
		m := d.MinSimilarity
		q.MinSimilarity = &m
	}
	if m := *q.MinSimilarity; math.IsNaN(m) || m > 1 || m < -1 {
		return fmt.Errorf("min_similarity must be within [-1, 1], got %v", m)
	}
	if q.LocationWeight == nil {
		w := d.LocationWeight
		q.LocationWeight = &w
	}
	if w := *q.LocationWeight; math.IsNaN(w) || w < 0 || w > 1 {
		return fmt.Errorf("location_weight must be within [0, 1], got %v", w)
	}
	return nil
}
