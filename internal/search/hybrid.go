package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/ranking"
	"github.com/hyperjump/nearby/internal/storage"
)

// hybridState is a state of the hybrid fallback chain.
type hybridState int

const (
	hsStart hybridState = iota
	hsStoreHybrid
	hsClientFusion
	hsSemanticFallback
	hsLocationFallback

	// terminal states
	hsHybridSuccess
	hsDegradedToSemantic
	hsLocationOnly
	hsFailed
)

var hybridStateNames = map[hybridState]string{
	hsStart:              "start",
	hsStoreHybrid:        "store_hybrid",
	hsClientFusion:       "client_fusion",
	hsSemanticFallback:   "semantic_fallback",
	hsLocationFallback:   "location_fallback",
	hsHybridSuccess:      "hybrid_success",
	hsDegradedToSemantic: "hybrid_degraded_to_semantic",
	hsLocationOnly:       "location_only",
	hsFailed:             "failed",
}

func (s hybridState) String() string { return hybridStateNames[s] }

func (s hybridState) terminal() bool { return s >= hsHybridSuccess }

// method is the search method reported for a terminal state.
func (s hybridState) method() models.SearchMethod {
	switch s {
	case hsHybridSuccess:
		return models.MethodHybridSuccess
	case hsDegradedToSemantic:
		return models.MethodHybridDegraded
	case hsLocationOnly:
		return models.MethodLocationOnly
	default:
		return models.MethodFailed
	}
}

// hybridEvent is the outcome of executing a state.
type hybridEvent int

const (
	evNoCoordinates hybridEvent = iota
	evNoQueryVector
	evReady
	evOK
	evFailed
	evGeoFailed
	evSemanticFailed
	evBothFailed
)

var hybridEventNames = map[hybridEvent]string{
	evNoCoordinates:  "no_coordinates",
	evNoQueryVector:  "no_query_vector",
	evReady:          "ready",
	evOK:             "ok",
	evFailed:         "failed",
	evGeoFailed:      "geo_failed",
	evSemanticFailed: "semantic_failed",
	evBothFailed:     "both_failed",
}

func (ev hybridEvent) String() string { return hybridEventNames[ev] }

// next is the transition function of the hybrid fallback chain. Any pair not
// listed leads to hsFailed.
func next(s hybridState, ev hybridEvent) hybridState {
	switch s {
	case hsStart:
		switch ev {
		case evNoCoordinates:
			return hsSemanticFallback
		case evNoQueryVector:
			return hsLocationFallback
		case evReady:
			return hsStoreHybrid
		}
	case hsStoreHybrid:
		switch ev {
		case evOK:
			return hsHybridSuccess
		case evFailed:
			return hsClientFusion
		}
	case hsClientFusion:
		switch ev {
		case evOK:
			return hsHybridSuccess
		case evGeoFailed:
			return hsDegradedToSemantic
		case evSemanticFailed:
			return hsLocationOnly
		}
	case hsSemanticFallback:
		if ev == evOK {
			return hsDegradedToSemantic
		}
	case hsLocationFallback:
		if ev == evOK {
			return hsLocationOnly
		}
	}
	return hsFailed
}

// hybridSearch drives the fallback chain until it reaches a terminal state.
func (e *Engine) hybridSearch(ctx context.Context, run *searchRun) error {
	state := hsStart
	for !state.terminal() {
		ev := e.execute(ctx, state, run)
		to := next(state, ev)
		run.step("%s:%s->%s", state, ev, to)
		if to != hsHybridSuccess && to != hsStoreHybrid {
			e.logger.Debug("hybrid search transition",
				zap.String("from", state.String()),
				zap.String("event", ev.String()),
				zap.String("to", to.String()),
				zap.Error(run.cause),
			)
		}
		state = to
	}
	if state == hsFailed {
		return run.cause
	}
	if state == hsDegradedToSemantic || state == hsLocationOnly {
		e.logger.Warn("hybrid search degraded",
			zap.String("requester_id", run.query.RequesterID),
			zap.String("search_method", string(state.method())),
			zap.Error(run.cause),
		)
	}
	run.resp.SearchMethod = state.method()
	return nil
}

// execute runs the work of a non-terminal state and reports its outcome.
func (e *Engine) execute(ctx context.Context, s hybridState, run *searchRun) hybridEvent {
	switch s {
	case hsStart:
		switch {
		case run.origin == nil:
			run.cause = ErrNoCoordinates
			return evNoCoordinates
		case run.vector == nil:
			run.cause = run.vectorErr
			return evNoQueryVector
		default:
			return evReady
		}

	case hsStoreHybrid:
		hits, err := e.store.HybridGeoSemanticSearch(ctx, storage.HybridSearchParams{
			Vector:          run.vector,
			Origin:          *run.origin,
			RadiusKm:        run.query.RadiusKm,
			LocationWeight:  run.query.Weight(),
			DistanceScaleKm: e.config.Ranking.DistanceScaleKm,
			MinSimilarity:   run.query.Threshold(),
			Limit:           e.fetchLimit(run.query),
			ExcludeUserID:   run.query.RequesterID,
		})
		if err != nil {
			run.cause = err
			return evFailed
		}
		run.candidates = fromHybridHits(hits, e.fuser)
		ranking.Sort(run.candidates)
		run.resp.StoreFusion = true
		return evOK

	case hsClientFusion:
		geoCands, geoErr := e.geoChannel(ctx, run)
		semCands, semErr := e.semanticChannel(ctx, run)
		switch {
		case geoErr != nil && semErr != nil:
			run.cause = semErr
			return evBothFailed
		case geoErr != nil:
			run.cause = geoErr
			run.candidates = e.fuser.Fuse(nil, semCands, 0, ranking.FuseSemanticOnly)
			return evGeoFailed
		case semErr != nil:
			run.cause = semErr
			run.candidates = e.fuser.Fuse(geoCands, nil, 0, ranking.FuseLocationOnly)
			return evSemanticFailed
		}
		run.candidates = e.fuser.Fuse(geoCands, semCands, run.query.Weight(), ranking.FuseHybrid)
		return evOK

	case hsSemanticFallback:
		cands, err := e.semanticChannel(ctx, run)
		if err != nil {
			run.cause = err
			return evFailed
		}
		run.candidates = e.fuser.Fuse(nil, cands, 0, ranking.FuseSemanticOnly)
		return evOK

	case hsLocationFallback:
		cands, err := e.geoChannel(ctx, run)
		if err != nil {
			run.cause = err
			return evFailed
		}
		run.candidates = e.fuser.Fuse(cands, nil, 0, ranking.FuseLocationOnly)
		return evOK
	}
	return evFailed
}
