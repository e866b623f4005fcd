package ranking

// RankingConfig holds the tunables of fusion and diversity re-ranking.
type RankingConfig struct {
	// DistanceScaleKm is the distance at which the location score halves.
	DistanceScaleKm float64 `yaml:"distance_scale_km"` // default: 10
	// DiversityStep is the factor lost per already-seen category.
	DiversityStep float64 `yaml:"diversity_step"` // default: 0.2
	// DiversityFloor bounds the diversity factor from below.
	DiversityFloor float64 `yaml:"diversity_floor"` // default: 0.1
	// CategoryBonus is added per newly introduced category.
	CategoryBonus float64 `yaml:"category_bonus"` // default: 0.05
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	c := &RankingConfig{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with defaults.
func (c *RankingConfig) ApplyDefaults() {
	if c.DistanceScaleKm <= 0 {
		c.DistanceScaleKm = 10
	}
	if c.DiversityStep <= 0 {
		c.DiversityStep = 0.2
	}
	if c.DiversityFloor <= 0 {
		c.DiversityFloor = 0.1
	}
	if c.CategoryBonus <= 0 {
		c.CategoryBonus = 0.05
	}
}
