package ranking

import (
	"math"
	"sort"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/tags"
)

// Diversifier re-ranks candidates to favor users who bring interest
// categories not already covered by higher-ranked users.
type Diversifier struct {
	table *tags.Table
	step  float64
	floor float64
	bonus float64
}

// NewDiversifier returns a diversifier over table. Nil arguments use defaults.
func NewDiversifier(table *tags.Table, cfg *RankingConfig) *Diversifier {
	if table == nil {
		table = tags.DefaultTable()
	}
	if cfg == nil {
		cfg = DefaultRankingConfig()
	}
	return &Diversifier{table: table, step: cfg.DiversityStep, floor: cfg.DiversityFloor, bonus: cfg.CategoryBonus}
}

// Rerank applies the diversity adjustment and returns at most maxResults
// candidates ranked by adjusted score. Candidates are visited by combined
// score; among equal scores users with more categories go first.
// maxResults <= 0 keeps everything.
func (d *Diversifier) Rerank(cands []*models.ScoredCandidate, maxResults int) []*models.ScoredCandidate {
	ordered := append([]*models.ScoredCandidate(nil), cands...)
	sets := make(map[*models.ScoredCandidate][]tags.Category, len(ordered))
	for _, c := range ordered {
		sets[c] = d.table.CategorySet(c.Tags)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		return len(sets[a]) > len(sets[b])
	})

	seen := make(map[tags.Category]struct{})
	for _, c := range ordered {
		cats := sets[c]
		penalty := 0
		for _, cat := range cats {
			if _, ok := seen[cat]; ok {
				penalty++
			}
		}
		factor := math.Max(d.floor, 1-d.step*float64(penalty))
		c.DiversityFactor = factor
		c.DiversityAdjustedScore = c.CombinedScore*factor + d.bonus*float64(len(cats)-penalty)
		c.Categories = make([]string, len(cats))
		for i, cat := range cats {
			c.Categories[i] = string(cat)
			seen[cat] = struct{}{}
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DiversityAdjustedScore > ordered[j].DiversityAdjustedScore
	})
	if maxResults > 0 && len(ordered) > maxResults {
		ordered = ordered[:maxResults]
	}
	for i, c := range ordered {
		c.Rank = i + 1
	}
	return ordered
}
