package models

// SearchMethod records which path a search actually took.
type SearchMethod string

const (
	MethodLocationOnly   SearchMethod = "location_only"
	MethodSemanticOnly   SearchMethod = "semantic_only"
	MethodHybridSuccess  SearchMethod = "hybrid_success"
	MethodHybridDegraded SearchMethod = "hybrid_degraded_to_semantic"
	MethodFailed         SearchMethod = "failed"
)

// FailureKind classifies a failed search.
type FailureKind string

const (
	FailureConfiguration    FailureKind = "configuration"
	FailureStoreUnavailable FailureKind = "store_unavailable"
	FailureNoCoordinates    FailureKind = "no_coordinates"
	FailureInvalidQuery     FailureKind = "invalid_query"
)

// Failure describes why a search produced no result list.
type Failure struct {
	Mode   SearchMode  `json:"mode"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
	Cause  string      `json:"cause,omitempty"`
}

// LocationView is the part of a candidate's location their privacy level allows others to see.
type LocationView struct {
	City         string       `json:"city,omitempty"`
	State        string       `json:"state,omitempty"`
	Country      string       `json:"country,omitempty"`
	PrivacyLevel PrivacyLevel `json:"privacy_level"`
}

// ScoredCandidate is a user surfaced by a search together with its per-channel scores.
type ScoredCandidate struct {
	UserID                 string       `json:"user_id"`
	Name                   string       `json:"name"`
	Tags                   []string     `json:"tags"`
	Categories             []string     `json:"categories,omitempty"`
	SemanticScore          float64      `json:"semantic_score"`
	LocationScore          float64      `json:"location_score"`
	CombinedScore          float64      `json:"combined_score"`
	DiversityFactor        float64      `json:"diversity_factor"`
	DiversityAdjustedScore float64      `json:"diversity_adjusted_score"`
	DistanceKm             *float64     `json:"distance_km,omitempty"`
	Location               LocationView `json:"location"`
	Rank                   int          `json:"rank"`

	HasSemantic bool `json:"-"`
	HasLocation bool `json:"-"`
	// ProfileText and Metadata feed the keyword filter and privacy shaping; not serialized.
	ProfileText string            `json:"-"`
	Metadata    EmbeddingMetadata `json:"-"`
}

// SearchResponse is the result of a search. Failed searches carry Error and no results.
type SearchResponse struct {
	Success          bool               `json:"success"`
	RequestID        string             `json:"request_id"`
	RequesterID      string             `json:"requester_id"`
	Mode             SearchMode         `json:"mode"`
	SearchMethod     SearchMethod       `json:"search_method"`
	SemanticQuery    string             `json:"semantic_query,omitempty"`
	RadiusKm         float64            `json:"radius_km"`
	LocationWeight   float64            `json:"location_weight"`
	Results          []*ScoredCandidate `json:"results"`
	Total            int                `json:"total"`
	FilteredOut      int                `json:"filtered_out"`
	StoreFusion      bool               `json:"store_fusion,omitempty"`
	UsedCityFallback bool               `json:"used_city_fallback,omitempty"`
	// Steps lists the fallback transitions taken, in order.
	Steps     []string `json:"steps,omitempty"`
	QueryTime int64    `json:"query_time_ms"`
	Error     *Failure `json:"error,omitempty"`
}
