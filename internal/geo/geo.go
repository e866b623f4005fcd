// Package geo provides great-circle distance and distance-based scoring.
package geo

import (
	"math"

	blevegeo "github.com/blevesearch/bleve/v2/geo"

	"github.com/hyperjump/nearby/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by SQL distance expressions.
const EarthRadiusKm = 6371.0

// DefaultScaleKm is the distance at which LocationScore drops to one half.
const DefaultScaleKm = 10.0

// Haversine returns the great-circle distance between a and b in kilometers.
// It uses the same distance function as the Bleve geo index, so exact radius
// checks agree with index hits.
func Haversine(a, b models.Coordinates) float64 {
	return blevegeo.Haversin(a.Lng, a.Lat, b.Lng, b.Lat)
}

// LocationScore maps a distance to (0, 1]: 1 at distance 0, strictly decreasing after.
// scaleKm <= 0 uses DefaultScaleKm. Negative distances are treated as 0.
func LocationScore(distanceKm, scaleKm float64) float64 {
	if scaleKm <= 0 {
		scaleKm = DefaultScaleKm
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	return 1 / (1 + distanceKm/scaleKm)
}

// Valid reports whether c is a plausible coordinate pair.
func Valid(c *models.Coordinates) bool {
	if c == nil {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180 &&
		!math.IsNaN(c.Lat) && !math.IsNaN(c.Lng)
}
