package search

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

// vocabEmbedder counts known words; synonyms share a dimension.
type vocabEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	dims  int
	err   error
}

func newVocabEmbedder() *vocabEmbedder {
	return &vocabEmbedder{
		vocab: map[string]int{"food": 0, "cricket": 1, "painting": 2, "jazz": 3, "guitar": 3, "hiking": 4},
		dims:  5,
	}
}

func (v *vocabEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v.mu.Lock()
	err := v.err
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	vec := make([]float32, v.dims)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		if i, ok := v.vocab[tok]; ok {
			vec[i]++
		}
	}
	return vec, nil
}

func (v *vocabEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *vocabEmbedder) Dimensions() int { return v.dims }
func (v *vocabEmbedder) Close() error    { return nil }

func (v *vocabEmbedder) fail(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

var errStoreDown = errors.New("store down")

// flakyStore fails selected retrieval queries.
type flakyStore struct {
	*storage.MemoryStore
	failHybrid, failGeo, failSemantic bool
	// calls records the retrieval queries issued, in order.
	calls []string
}

func (s *flakyStore) HybridGeoSemanticSearch(ctx context.Context, p storage.HybridSearchParams) ([]*storage.HybridHit, error) {
	if s.failHybrid {
		return nil, errStoreDown
	}
	return s.MemoryStore.HybridGeoSemanticSearch(ctx, p)
}

func (s *flakyStore) GeoSearch(ctx context.Context, p storage.GeoSearchParams) ([]*storage.GeoHit, error) {
	s.calls = append(s.calls, "geo")
	if s.failGeo {
		return nil, errStoreDown
	}
	return s.MemoryStore.GeoSearch(ctx, p)
}

func (s *flakyStore) SemanticSearch(ctx context.Context, p storage.SemanticSearchParams) ([]*storage.SemanticHit, error) {
	s.calls = append(s.calls, "semantic")
	if s.failSemantic {
		return nil, errStoreDown
	}
	return s.MemoryStore.SemanticSearch(ctx, p)
}

type fixture struct {
	store  *flakyStore
	emb    *vocabEmbedder
	vec    *vectorizer.Vectorizer
	engine *Engine
}

var origin = models.Coordinates{Lat: 33.0, Lng: -97.0}

// north returns the point km kilometres due north of c.
func north(c models.Coordinates, km float64) *models.Coordinates {
	return &models.Coordinates{Lat: c.Lat + km*180/(math.Pi*geo.EarthRadiusKm), Lng: c.Lng}
}

func user(id string, coords *models.Coordinates, tags ...string) *models.UserProfile {
	return &models.UserProfile{
		UserID: id,
		Name:   strings.ToUpper(id[:1]) + id[1:],
		Tags:   tags,
		Location: models.Location{
			City: "Frisco", State: "Texas", Country: "USA",
			Coordinates:  coords,
			PrivacyLevel: models.PrivacyExact,
		},
	}
}

// newFixture stores profiles and vectorizes all of them except skip.
func newFixture(t *testing.T, profiles []*models.UserProfile, skip ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	emb := newVocabEmbedder()
	mem, err := storage.NewMemoryStore(emb.Dimensions())
	require.NoError(t, err)
	store := &flakyStore{MemoryStore: mem}

	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	var toEmbed []string
	for _, p := range profiles {
		require.NoError(t, store.UpsertProfile(ctx, p))
		if !skipped[p.UserID] {
			toEmbed = append(toEmbed, p.UserID)
		}
	}
	cache, err := vectorizer.NewCache(100)
	require.NoError(t, err)
	v := vectorizer.New(store, store, emb, nil, cache)
	res, err := v.VectorizeAll(ctx, toEmbed)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	return &fixture{
		store:  store,
		emb:    emb,
		vec:    v,
		engine: NewEngine(store, store, v, emb, DefaultConfig()),
	}
}

func ids(cands []*models.ScoredCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.UserID
	}
	return out
}

func weight(w float64) *float64 { return &w }
