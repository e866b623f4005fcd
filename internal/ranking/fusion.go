// Package ranking fuses the location and semantic channels and re-ranks for interest diversity.
package ranking

import (
	"sort"

	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/models"
)

// FusionMode selects how channel scores combine into the combined score.
type FusionMode int

const (
	// FuseHybrid weights location by w and semantic by 1-w; a missing channel contributes 0.
	FuseHybrid FusionMode = iota
	// FuseSemanticOnly uses the semantic score and ignores the weight. Hybrid searches
	// without requester coordinates degrade to this mode.
	FuseSemanticOnly
	// FuseLocationOnly uses the location score and ignores semantics.
	FuseLocationOnly
)

// Fuser merges channel results and computes combined scores.
type Fuser struct {
	scaleKm float64
}

// NewFuser returns a fuser using cfg's distance scale. A nil cfg uses defaults.
func NewFuser(cfg *RankingConfig) *Fuser {
	if cfg == nil {
		cfg = DefaultRankingConfig()
	}
	return &Fuser{scaleKm: cfg.DistanceScaleKm}
}

// LocationScore maps a distance in km to (0, 1].
func (f *Fuser) LocationScore(distanceKm float64) float64 {
	return geo.LocationScore(distanceKm, f.scaleKm)
}

// Fuse merges location and semantic candidates by user ID, scores them for
// mode and returns them sorted. Inputs are not modified.
func (f *Fuser) Fuse(location, semantic []*models.ScoredCandidate, weight float64, mode FusionMode) []*models.ScoredCandidate {
	merged := Merge(location, semantic)
	for _, c := range merged {
		f.Score(c, weight, mode)
	}
	Sort(merged)
	return merged
}

// Score sets c's location and combined scores in place.
func (f *Fuser) Score(c *models.ScoredCandidate, weight float64, mode FusionMode) {
	c.LocationScore = 0
	if c.HasLocation && c.DistanceKm != nil && mode != FuseSemanticOnly {
		c.LocationScore = f.LocationScore(*c.DistanceKm)
	}
	sem := 0.0
	if c.HasSemantic {
		sem = c.SemanticScore
	}
	switch mode {
	case FuseSemanticOnly:
		c.CombinedScore = sem
	case FuseLocationOnly:
		c.CombinedScore = c.LocationScore
	default:
		c.CombinedScore = weight*c.LocationScore + (1-weight)*sem
	}
}

// Merge combines candidates of the two channels into one entry per user.
func Merge(location, semantic []*models.ScoredCandidate) []*models.ScoredCandidate {
	byID := make(map[string]*models.ScoredCandidate, len(location)+len(semantic))
	out := make([]*models.ScoredCandidate, 0, len(location)+len(semantic))
	for _, c := range location {
		if _, ok := byID[c.UserID]; ok {
			continue
		}
		cp := *c
		byID[c.UserID] = &cp
		out = append(out, &cp)
	}
	for _, c := range semantic {
		existing, ok := byID[c.UserID]
		if !ok {
			cp := *c
			byID[c.UserID] = &cp
			out = append(out, &cp)
			continue
		}
		existing.HasSemantic = c.HasSemantic
		existing.SemanticScore = c.SemanticScore
		if existing.ProfileText == "" {
			existing.ProfileText = c.ProfileText
		}
		if len(existing.Tags) == 0 {
			existing.Tags = c.Tags
		}
	}
	return out
}

// Sort orders candidates by combined score descending, then semantic score
// descending, then user ID ascending.
func Sort(cands []*models.ScoredCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		return a.UserID < b.UserID
	})
}
