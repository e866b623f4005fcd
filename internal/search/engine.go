// Package search is the nearby-user retrieval engine. It selects the retrieval
// channels for a query, falls back when a channel fails, filters and fuses the
// candidates, and re-ranks them for interest diversity.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/metrics"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/ranking"
	"github.com/hyperjump/nearby/internal/relevance"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/tags"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

// ErrNoCoordinates is returned when a location search has neither requester
// coordinates nor a city to fall back to.
var ErrNoCoordinates = errors.New("requester has no coordinates or city")

// Config holds engine tunables.
type Config struct {
	Defaults models.QueryDefaults
	// CandidateMultiplier scales MaxResults into the channel fetch size.
	CandidateMultiplier int
	// SimilarityThreshold is the nominal match threshold; Defaults.MinSimilarity
	// is usually derived from it.
	SimilarityThreshold float64
	Ranking             *ranking.RankingConfig
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Defaults: models.QueryDefaults{
			MaxResults:      10,
			MaxResultsLimit: 50,
			RadiusKm:        50,
			MinSimilarity:   0.7 * 0.8,
			LocationWeight:  0.3,
		},
		CandidateMultiplier: 3,
		SimilarityThreshold: 0.7,
		Ranking:             ranking.DefaultRankingConfig(),
	}
}

// Engine answers nearby-user searches.
type Engine struct {
	profiles    storage.ProfileStore
	store       storage.EmbeddingStore
	vectorizer  *vectorizer.Vectorizer
	embedder    embedding.Embedder
	filter      *relevance.Filter
	table       *tags.Table
	fuser       *ranking.Fuser
	diversifier *ranking.Diversifier
	config      Config
	footprint   func() (int64, error)
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for per-step traces and degraded-path warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records search outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFilter replaces the default keyword relevance filter.
func WithFilter(f *relevance.Filter) Option {
	return func(e *Engine) {
		if f != nil {
			e.filter = f
		}
	}
}

// WithTagTable sets the category table used for diversity re-ranking.
func WithTagTable(t *tags.Table) Option {
	return func(e *Engine) {
		if t != nil {
			e.table = t
		}
	}
}

// WithFootprint reports on-disk storage size in Statistics.
func WithFootprint(fn func() (int64, error)) Option {
	return func(e *Engine) { e.footprint = fn }
}

// NewEngine creates an engine over the given stores. The embedder embeds
// free-text queries; v keeps requester embeddings current.
func NewEngine(
	profiles storage.ProfileStore,
	store storage.EmbeddingStore,
	v *vectorizer.Vectorizer,
	embedder embedding.Embedder,
	cfg Config,
	opts ...Option,
) *Engine {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultConfig().CandidateMultiplier
	}
	if cfg.Ranking == nil {
		cfg.Ranking = ranking.DefaultRankingConfig()
	}
	e := &Engine{
		profiles:   profiles,
		store:      store,
		vectorizer: v,
		embedder:   embedder,
		table:      tags.DefaultTable(),
		config:     cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.filter == nil {
		e.filter = relevance.NewFilter(relevance.WithLogger(e.logger))
	}
	e.fuser = ranking.NewFuser(cfg.Ranking)
	e.diversifier = ranking.NewDiversifier(e.table, cfg.Ranking)
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// searchRun is the per-call state of one search.
type searchRun struct {
	query     *models.SearchQuery
	requester *models.UserProfile
	origin    *models.Coordinates
	resp      *models.SearchResponse

	// vector is the query vector; nil when none could be produced.
	vector    []float32
	vectorErr error

	candidates []*models.ScoredCandidate
	cause      error
}

func (r *searchRun) step(format string, args ...interface{}) {
	r.resp.Steps = append(r.resp.Steps, fmt.Sprintf(format, args...))
}

// Search runs q. Failures are reported in the response, never as a Go error:
// external failures degrade to another path where one exists, and only a
// search with no usable path returns Success false.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) *models.SearchResponse {
	start := time.Now()
	resp := &models.SearchResponse{
		RequestID: uuid.NewString(),
		Results:   []*models.ScoredCandidate{},
	}
	defer func() {
		resp.QueryTime = time.Since(start).Milliseconds()
		e.metrics.RecordSearch(string(resp.Mode), string(resp.SearchMethod), time.Since(start), resp.Total, resp.FilteredOut)
	}()

	if q == nil {
		return e.fail(resp, models.FailureInvalidQuery, "query is required", nil)
	}
	resp.RequesterID = q.RequesterID
	resp.Mode = q.Mode
	if err := q.Validate(e.config.Defaults); err != nil {
		return e.fail(resp, models.FailureInvalidQuery, "invalid query", err)
	}
	resp.RequesterID = q.RequesterID
	resp.Mode = q.Mode
	resp.SemanticQuery = q.SemanticQuery
	resp.RadiusKm = q.RadiusKm
	resp.LocationWeight = q.Weight()

	requester, err := e.profiles.GetProfile(ctx, q.RequesterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return e.fail(resp, models.FailureInvalidQuery, "unknown requester", err)
		}
		return e.fail(resp, models.FailureStoreUnavailable, "could not load requester profile", err)
	}

	run := &searchRun{query: q, requester: requester, resp: resp}
	if c := requester.Location.Coordinates; geo.Valid(c) {
		run.origin = c
	}
	e.prepareVector(ctx, run)

	switch q.Mode {
	case models.ModeLocation:
		err = e.locationSearch(ctx, run)
	case models.ModeSemantic:
		err = e.semanticSearch(ctx, run)
	default:
		err = e.hybridSearch(ctx, run)
	}
	if err != nil {
		kind, reason := classify(err)
		return e.fail(resp, kind, reason, err)
	}

	kept := e.applyFilters(run)
	ranked := e.diversifier.Rerank(kept, q.MaxResults)
	for _, c := range ranked {
		shapeLocation(c)
	}
	resp.Success = true
	resp.Results = ranked
	resp.Total = len(ranked)

	e.logger.Debug("search completed",
		zap.String("request_id", resp.RequestID),
		zap.String("requester_id", q.RequesterID),
		zap.String("mode", string(q.Mode)),
		zap.String("search_method", string(resp.SearchMethod)),
		zap.Int("results", resp.Total),
		zap.Int("filtered_out", resp.FilteredOut),
		zap.Strings("steps", resp.Steps),
	)
	return resp
}

// prepareVector refreshes the requester embedding and resolves the query
// vector: the embedded semantic query, or the requester's own embedding when
// the query is empty.
func (e *Engine) prepareVector(ctx context.Context, run *searchRun) {
	self, selfErr := e.vectorizer.Ensure(ctx, run.query.RequesterID)
	if selfErr != nil {
		e.logger.Warn("requester not vectorized", zap.String("requester_id", run.query.RequesterID), zap.Error(selfErr))
	}
	if run.query.Mode == models.ModeLocation {
		return
	}
	if run.query.SemanticQuery == "" {
		if selfErr != nil {
			run.vectorErr = selfErr
			return
		}
		run.vector = self.Vector
		return
	}
	vec, err := e.embedder.Embed(ctx, run.query.SemanticQuery)
	if err != nil {
		e.logger.Warn("query embedding failed", zap.String("query", run.query.SemanticQuery), zap.Error(err))
		run.vectorErr = fmt.Errorf("embed query: %w", err)
		return
	}
	run.vector = vec
}

func (e *Engine) locationSearch(ctx context.Context, run *searchRun) error {
	cands, err := e.locationChannel(ctx, run)
	if err != nil {
		return err
	}
	run.candidates = e.fuser.Fuse(cands, nil, 0, ranking.FuseLocationOnly)
	run.resp.SearchMethod = models.MethodLocationOnly
	return nil
}

func (e *Engine) semanticSearch(ctx context.Context, run *searchRun) error {
	cands, err := e.semanticChannel(ctx, run)
	if err != nil {
		return err
	}
	run.candidates = e.fuser.Fuse(nil, cands, 0, ranking.FuseSemanticOnly)
	run.resp.SearchMethod = models.MethodSemanticOnly
	return nil
}

// fetchLimit is the channel fetch size for a query.
func (e *Engine) fetchLimit(q *models.SearchQuery) int {
	return q.MaxResults * e.config.CandidateMultiplier
}

// semanticChannel is the nearest-neighbour channel shared by semantic-only
// searches and every hybrid path.
func (e *Engine) semanticChannel(ctx context.Context, run *searchRun) ([]*models.ScoredCandidate, error) {
	if run.vector == nil {
		if run.vectorErr != nil {
			return nil, run.vectorErr
		}
		return nil, vectorizer.ErrNotVectorized
	}
	hits, err := e.store.SemanticSearch(ctx, storage.SemanticSearchParams{
		Vector:        run.vector,
		Limit:         e.fetchLimit(run.query),
		MinSimilarity: run.query.Threshold(),
		ExcludeUserID: run.query.RequesterID,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return fromSemanticHits(hits), nil
}

// geoChannel is the radius channel around the requester's coordinates.
func (e *Engine) geoChannel(ctx context.Context, run *searchRun) ([]*models.ScoredCandidate, error) {
	if run.origin == nil {
		return nil, ErrNoCoordinates
	}
	hits, err := e.store.GeoSearch(ctx, storage.GeoSearchParams{
		Origin:        *run.origin,
		RadiusKm:      run.query.RadiusKm,
		Limit:         e.fetchLimit(run.query),
		ExcludeUserID: run.query.RequesterID,
	})
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	return fromGeoHits(hits), nil
}

// locationChannel is the geo channel with a same-city fallback for requesters
// without coordinates.
func (e *Engine) locationChannel(ctx context.Context, run *searchRun) ([]*models.ScoredCandidate, error) {
	if run.origin != nil {
		return e.geoChannel(ctx, run)
	}
	loc := run.requester.Location
	if loc.City == "" {
		return nil, ErrNoCoordinates
	}
	hits, err := e.store.CitySearch(ctx, storage.CitySearchParams{
		City:          loc.City,
		State:         loc.State,
		Limit:         e.fetchLimit(run.query),
		ExcludeUserID: run.query.RequesterID,
	})
	if err != nil {
		return nil, fmt.Errorf("city search: %w", err)
	}
	run.resp.UsedCityFallback = true
	run.step("location:city_fallback")
	return fromGeoHits(hits), nil
}

// applyFilters drops candidates that fail the keyword relevance check (only
// those the semantic channel touched) and candidates whose privacy level hides them.
func (e *Engine) applyFilters(run *searchRun) []*models.ScoredCandidate {
	kept := make([]*models.ScoredCandidate, 0, len(run.candidates))
	for _, c := range run.candidates {
		if !c.Metadata.PrivacyLevel.OrDefault().Visible() {
			continue
		}
		if c.HasSemantic && !e.filter.Relevant(run.query.SemanticQuery, c.ProfileText, c.Tags, c.SemanticScore) {
			run.resp.FilteredOut++
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (e *Engine) fail(resp *models.SearchResponse, kind models.FailureKind, reason string, cause error) *models.SearchResponse {
	resp.Success = false
	resp.SearchMethod = models.MethodFailed
	resp.Results = []*models.ScoredCandidate{}
	resp.Total = 0
	resp.Error = &models.Failure{Mode: resp.Mode, Kind: kind, Reason: reason}
	if cause != nil {
		resp.Error.Cause = cause.Error()
	}
	e.logger.Warn("search failed",
		zap.String("request_id", resp.RequestID),
		zap.String("requester_id", resp.RequesterID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	return resp
}

// classify maps a search error to a failure kind and reason.
func classify(err error) (models.FailureKind, string) {
	switch {
	case errors.Is(err, ErrNoCoordinates):
		return models.FailureNoCoordinates, "requester location unknown"
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		return models.FailureConfiguration, "embedding service not configured"
	case errors.Is(err, vectorizer.ErrNotVectorized):
		return models.FailureConfiguration, "requester could not be vectorized"
	default:
		return models.FailureStoreUnavailable, "retrieval failed"
	}
}
