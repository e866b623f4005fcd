// Package vectorizer keeps profile embeddings current: it builds profile text,
// embeds it, and persists the result in the embedding store and a per-user cache.
package vectorizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/metrics"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/profiletext"
	"github.com/hyperjump/nearby/internal/storage"
)

// ErrNotVectorized is returned when a user has no usable embedding and a new
// one could not be produced.
var ErrNotVectorized = errors.New("user is not vectorized")

const (
	// DefaultStaleAfter is the age after which a cached embedding is refreshed.
	DefaultStaleAfter = time.Hour
	// DefaultConcurrency bounds parallel embedding calls in VectorizeAll.
	DefaultConcurrency = 4
)

const (
	outcomeEmbedded = "embedded"
	outcomeCached   = "cached"
	outcomeStale    = "stale_fallback"
	outcomeFailed   = "failed"
)

// Vectorizer produces and refreshes profile embeddings.
type Vectorizer struct {
	profiles    storage.ProfileStore
	store       storage.EmbeddingStore
	embedder    embedding.Embedder
	builder     *profiletext.Builder
	cache       *Cache
	staleAfter  time.Duration
	concurrency int
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// Option configures a Vectorizer.
type Option func(*Vectorizer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(v *Vectorizer) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithMetrics records vectorization outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vectorizer) { v.metrics = m }
}

// WithStaleAfter sets the maximum age of an embedding before it is refreshed.
func WithStaleAfter(d time.Duration) Option {
	return func(v *Vectorizer) {
		if d > 0 {
			v.staleAfter = d
		}
	}
}

// WithConcurrency sets the number of parallel embedding calls in VectorizeAll.
func WithConcurrency(n int) Option {
	return func(v *Vectorizer) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Vectorizer) { v.now = now }
}

// New creates a vectorizer. builder may be nil to use the default tag table.
func New(
	profiles storage.ProfileStore,
	store storage.EmbeddingStore,
	embedder embedding.Embedder,
	builder *profiletext.Builder,
	cache *Cache,
	opts ...Option,
) *Vectorizer {
	if builder == nil {
		builder = profiletext.NewBuilder(nil)
	}
	v := &Vectorizer{
		profiles:    profiles,
		store:       store,
		embedder:    embedder,
		builder:     builder,
		cache:       cache,
		staleAfter:  DefaultStaleAfter,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Ensure returns a current embedding of userID. The embedding is rebuilt when
// it is missing, older than the stale window, or when the profile text changed.
// If rebuilding fails the previous embedding is returned; with no previous
// embedding the error wraps ErrNotVectorized. A reused embedding always carries
// metadata re-derived from the current profile.
func (v *Vectorizer) Ensure(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	profile, err := v.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	text := v.builder.Build(profile)

	prev, ok := v.cache.Get(userID)
	if !ok {
		stored, err := v.store.GetEmbedding(ctx, userID)
		switch {
		case err == nil:
			prev, ok = stored, true
			v.cache.Put(stored)
		case !errors.Is(err, storage.ErrNotFound):
			v.logger.Warn("vectorizer could not read stored embedding", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if ok && prev.ProfileText == text && !v.stale(prev) {
		v.metrics.RecordVectorization(outcomeCached)
		return v.syncMetadata(ctx, profile, prev)
	}

	e, err := v.embed(ctx, profile, text, prev)
	if err != nil {
		if ok && len(prev.Vector) > 0 {
			v.metrics.RecordVectorization(outcomeStale)
			v.logger.Warn("vectorizer using previous embedding", zap.String("user_id", userID), zap.Error(err))
			return v.syncMetadata(ctx, profile, prev)
		}
		v.metrics.RecordVectorization(outcomeFailed)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotVectorized, userID, err)
	}
	return e, nil
}

// Vectorize rebuilds the embedding of userID regardless of cache state.
func (v *Vectorizer) Vectorize(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	v.cache.Remove(userID)
	profile, err := v.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	var prev *models.ProfileEmbedding
	if stored, err := v.store.GetEmbedding(ctx, userID); err == nil {
		prev = stored
	}
	e, err := v.embed(ctx, profile, v.builder.Build(profile), prev)
	if err != nil {
		v.metrics.RecordVectorization(outcomeFailed)
		return nil, err
	}
	return e, nil
}

// Invalidate drops the cached embedding of userID so the next Ensure rebuilds
// it when the profile changed.
func (v *Vectorizer) Invalidate(userID string) {
	v.cache.Remove(userID)
}

// SyncMetadata drops the cached embedding of userID and rewrites the stored
// metadata snapshot when it no longer matches the profile. The vector is left
// alone; users without an embedding are skipped.
func (v *Vectorizer) SyncMetadata(ctx context.Context, userID string) error {
	v.cache.Remove(userID)
	profile, err := v.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	stored, err := v.store.GetEmbedding(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load embedding: %w", err)
	}
	_, err = v.syncMetadata(ctx, profile, stored)
	return err
}

// Cached returns the cached embedding of userID without touching the store.
func (v *Vectorizer) Cached(userID string) (*models.ProfileEmbedding, bool) {
	return v.cache.Get(userID)
}

// CacheSize returns the number of cached users.
func (v *Vectorizer) CacheSize() int {
	return v.cache.Len()
}

// BulkResult summarizes VectorizeAll.
type BulkResult struct {
	Vectorized int               `json:"vectorized"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// VectorizeAll rebuilds the embeddings of userIDs in parallel. Per-user
// failures are collected in the result; only cancellation returns an error.
func (v *Vectorizer) VectorizeAll(ctx context.Context, userIDs []string) (*BulkResult, error) {
	res := &BulkResult{Failed: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for _, id := range userIDs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := v.Vectorize(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[id] = err.Error()
				v.logger.Debug("vectorizer bulk failure", zap.String("user_id", id), zap.Error(err))
				return nil
			}
			res.Vectorized++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (v *Vectorizer) stale(e *models.ProfileEmbedding) bool {
	return v.now().Sub(e.UpdatedAt) > v.staleAfter
}

// syncMetadata returns e with metadata derived from profile, persisting the
// snapshot when it changed.
func (v *Vectorizer) syncMetadata(ctx context.Context, profile *models.UserProfile, e *models.ProfileEmbedding) (*models.ProfileEmbedding, error) {
	meta := models.MetadataFromProfile(profile)
	if e.Metadata.Equal(meta) {
		return e, nil
	}
	updated := e.Clone()
	updated.Metadata = meta
	if err := v.store.UpsertEmbedding(ctx, updated); err != nil {
		v.cache.Remove(profile.UserID)
		return nil, fmt.Errorf("store embedding metadata %s: %w", profile.UserID, err)
	}
	v.cache.Put(updated)
	v.logger.Debug("vectorizer metadata refreshed", zap.String("user_id", profile.UserID))
	return updated, nil
}

func (v *Vectorizer) embed(ctx context.Context, profile *models.UserProfile, text string, prev *models.ProfileEmbedding) (*models.ProfileEmbedding, error) {
	if text == "" {
		return nil, fmt.Errorf("profile %s has no content to embed", profile.UserID)
	}
	start := v.now()
	vec, err := v.embedder.Embed(ctx, text)
	v.metrics.RecordEmbedLatency(v.now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("embed profile %s: %w", profile.UserID, err)
	}
	now := v.now()
	e := &models.ProfileEmbedding{
		UserID:      profile.UserID,
		Vector:      vec,
		ProfileText: text,
		Metadata:    models.MetadataFromProfile(profile),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev != nil && !prev.CreatedAt.IsZero() {
		e.CreatedAt = prev.CreatedAt
	}
	if err := v.store.UpsertEmbedding(ctx, e); err != nil {
		return nil, fmt.Errorf("store embedding %s: %w", profile.UserID, err)
	}
	v.cache.Put(e)
	v.metrics.RecordVectorization(outcomeEmbedded)
	v.logger.Debug("vectorizer profile embedded", zap.String("user_id", profile.UserID), zap.Int("text_len", len(text)))
	return e, nil
}
