package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/models"
)

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	DSN             string
	Dimensions      int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements Store on PostgreSQL with the pgvector extension.
// Similarity, distance and the hybrid fusion are computed in SQL.
type PostgresStore struct {
	db         *sql.DB
	dimensions int
}

// NewPostgresStore connects, verifies the connection and creates the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.Errorf("invalid vector dimensions %d", cfg.Dimensions)
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	s := &PostgresStore{db: db, dimensions: cfg.Dimensions}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			tags JSONB NOT NULL DEFAULT '[]',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			privacy_level TEXT NOT NULL DEFAULT 'city_only',
			languages JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_profiles_city ON user_profiles (LOWER(city), LOWER(state))`,
		`CREATE INDEX IF NOT EXISTS idx_user_profiles_lat_lng ON user_profiles (lat, lng)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS profile_embeddings (
			user_id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			profile_text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}

// haversineSQL is the great-circle distance in km between a row of alias p and
// the point given by the two placeholders.
func haversineSQL(latArg, lngArg int) string {
	return fmt.Sprintf(`(%[3]g * 2 * ASIN(SQRT(LEAST(1,
		POWER(SIN(RADIANS(p.lat - $%[1]d) / 2), 2) +
		COS(RADIANS($%[1]d)) * COS(RADIANS(p.lat)) * POWER(SIN(RADIANS(p.lng - $%[2]d) / 2), 2)))))`,
		latArg, lngArg, geo.EarthRadiusKm)
}

// Driver returns "postgres".
func (s *PostgresStore) Driver() string { return "postgres" }

// UpsertProfile inserts or replaces a profile.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile requires a user_id")
	}
	cp := cloneProfile(p)
	cp.Normalize()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	tagsJSON, err := json.Marshal(cp.Tags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tags")
	}
	langJSON, err := json.Marshal(cp.Languages)
	if err != nil {
		return errors.Wrap(err, "failed to marshal languages")
	}
	var lat, lng sql.NullFloat64
	if c := cp.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, name, tags, city, state, country, lat, lng, privacy_level, languages, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name, tags = EXCLUDED.tags, city = EXCLUDED.city, state = EXCLUDED.state,
			country = EXCLUDED.country, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			privacy_level = EXCLUDED.privacy_level, languages = EXCLUDED.languages, updated_at = EXCLUDED.updated_at`,
		cp.UserID, cp.Name, string(tagsJSON), cp.Location.City, cp.Location.State, cp.Location.Country,
		lat, lng, string(cp.Location.PrivacyLevel), string(langJSON), cp.UpdatedAt,
	)
	return errors.Wrap(err, "failed to upsert profile")
}

const pgProfileColumns = `p.user_id, p.name, p.tags, p.city, p.state, p.country, p.lat, p.lng, p.privacy_level, p.languages, p.updated_at`

// GetProfile returns the profile of userID.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgProfileColumns+` FROM user_profiles p WHERE p.user_id = $1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get profile")
	}
	return p, nil
}

// GetTags returns the tags of userID.
func (s *PostgresStore) GetTags(ctx context.Context, userID string) ([]string, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Tags, nil
}

// GetLocation returns the location of userID.
func (s *PostgresStore) GetLocation(ctx context.Context, userID string) (*models.Location, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &p.Location, nil
}

// DeleteProfile removes the profile and embedding of userID in one transaction.
func (s *PostgresStore) DeleteProfile(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_embeddings WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "failed to delete embedding")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "failed to delete profile")
	}
	return errors.Wrap(tx.Commit(), "failed to commit delete")
}

// ListProfileIDs returns all profile IDs in ascending order.
func (s *PostgresStore) ListProfileIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list profiles")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan profile id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertEmbedding writes vector, text and metadata in one statement.
func (s *PostgresStore) UpsertEmbedding(ctx context.Context, e *models.ProfileEmbedding) error {
	if e == nil || e.UserID == "" {
		return errors.New("embedding requires a user_id")
	}
	if len(e.Vector) != s.dimensions {
		return errors.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), s.dimensions)
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}
	now := time.Now()
	created, updated := e.CreatedAt, e.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profile_embeddings (user_id, embedding, profile_text, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			embedding = EXCLUDED.embedding, profile_text = EXCLUDED.profile_text,
			metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
		e.UserID, pgvector.NewVector(e.Vector), e.ProfileText, string(metadataJSON), created, updated,
	)
	return errors.Wrap(err, "failed to upsert embedding")
}

// GetEmbedding returns the embedding of userID.
func (s *PostgresStore) GetEmbedding(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	var e models.ProfileEmbedding
	var vec pgvector.Vector
	var metadataJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, embedding, profile_text, metadata, created_at, updated_at
		FROM profile_embeddings WHERE user_id = $1`, userID,
	).Scan(&e.UserID, &vec, &e.ProfileText, &metadataJSON, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get embedding")
	}
	if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal metadata")
	}
	e.Vector = vec.Slice()
	return &e, nil
}

// DeleteEmbedding removes the embedding of userID.
func (s *PostgresStore) DeleteEmbedding(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profile_embeddings WHERE user_id = $1`, userID)
	return errors.Wrap(err, "failed to delete embedding")
}

// SemanticSearch ranks embeddings by cosine similarity computed as 1 - cosine distance.
func (s *PostgresStore) SemanticSearch(ctx context.Context, p SemanticSearchParams) ([]*SemanticHit, error) {
	if len(p.Vector) != s.dimensions {
		return nil, errors.Errorf("query dimension mismatch: got %d, expected %d", len(p.Vector), s.dimensions)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, similarity, profile_text, metadata FROM (
			SELECT user_id, 1 - (embedding <=> $1) AS similarity, profile_text, metadata
			FROM profile_embeddings
			WHERE user_id <> $2
		) ranked
		WHERE similarity >= $3
		ORDER BY similarity DESC, user_id ASC
		LIMIT $4`,
		pgvector.NewVector(p.Vector), p.ExcludeUserID, p.MinSimilarity, limitOrAll(p.Limit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run semantic search")
	}
	defer rows.Close()
	var hits []*SemanticHit
	for rows.Next() {
		var h SemanticHit
		var metadataJSON []byte
		if err := rows.Scan(&h.UserID, &h.Similarity, &h.ProfileText, &metadataJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan semantic hit")
		}
		if err := json.Unmarshal(metadataJSON, &h.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal metadata")
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}

// GeoSearch returns profiles within p.RadiusKm of p.Origin using SQL haversine.
func (s *PostgresStore) GeoSearch(ctx context.Context, p GeoSearchParams) ([]*GeoHit, error) {
	query := `
		SELECT * FROM (
			SELECT ` + pgProfileColumns + `, ` + haversineSQL(1, 2) + ` AS distance_km
			FROM user_profiles p
			WHERE p.lat IS NOT NULL AND p.lng IS NOT NULL AND p.user_id <> $3
		) d
		WHERE distance_km <= $4
		ORDER BY distance_km ASC, user_id ASC
		LIMIT $5`
	rows, err := s.db.QueryContext(ctx, query, p.Origin.Lat, p.Origin.Lng, p.ExcludeUserID, p.RadiusKm, limitOrAll(p.Limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to run geo search")
	}
	defer rows.Close()
	var hits []*GeoHit
	for rows.Next() {
		var d float64
		prof, err := scanProfileWith(rows, &d)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan geo hit")
		}
		hits = append(hits, &GeoHit{UserID: prof.UserID, DistanceKm: d, Metadata: models.MetadataFromProfile(prof)})
	}
	return hits, rows.Err()
}

// HybridGeoSemanticSearch fuses location and semantic score in a single query.
func (s *PostgresStore) HybridGeoSemanticSearch(ctx context.Context, p HybridSearchParams) ([]*HybridHit, error) {
	if len(p.Vector) != s.dimensions {
		return nil, errors.Errorf("query dimension mismatch: got %d, expected %d", len(p.Vector), s.dimensions)
	}
	scale := p.DistanceScaleKm
	if scale <= 0 {
		scale = geo.DefaultScaleKm
	}
	query := `
		WITH candidates AS (
			SELECT e.user_id, e.profile_text, e.metadata,
				1 - (e.embedding <=> $3) AS similarity,
				` + haversineSQL(1, 2) + ` AS distance_km
			FROM profile_embeddings e
			JOIN user_profiles p ON p.user_id = e.user_id
			WHERE p.lat IS NOT NULL AND p.lng IS NOT NULL AND e.user_id <> $4
		)
		SELECT user_id, similarity, distance_km,
			$5 * (1 / (1 + distance_km / $6)) + (1 - $5) * similarity AS combined,
			profile_text, metadata
		FROM candidates
		WHERE distance_km <= $7 AND similarity >= $8
		ORDER BY combined DESC, similarity DESC, user_id ASC
		LIMIT $9`
	rows, err := s.db.QueryContext(ctx, query,
		p.Origin.Lat, p.Origin.Lng, pgvector.NewVector(p.Vector), p.ExcludeUserID,
		p.LocationWeight, scale, p.RadiusKm, p.MinSimilarity, limitOrAll(p.Limit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run hybrid search")
	}
	defer rows.Close()
	var hits []*HybridHit
	for rows.Next() {
		var h HybridHit
		var metadataJSON []byte
		if err := rows.Scan(&h.UserID, &h.Similarity, &h.DistanceKm, &h.CombinedScore, &h.ProfileText, &metadataJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan hybrid hit")
		}
		if err := json.Unmarshal(metadataJSON, &h.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal metadata")
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}

// CitySearch returns profiles declaring the same city, at distance 0.
func (s *PostgresStore) CitySearch(ctx context.Context, p CitySearchParams) ([]*GeoHit, error) {
	if p.City == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgProfileColumns+` FROM user_profiles p
		WHERE LOWER(p.city) = LOWER(TRIM($1))
			AND ($2 = '' OR LOWER(p.state) = LOWER(TRIM($2)))
			AND p.user_id <> $3
		ORDER BY p.user_id ASC
		LIMIT $4`,
		p.City, p.State, p.ExcludeUserID, limitOrAll(p.Limit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run city search")
	}
	defer rows.Close()
	var hits []*GeoHit
	for rows.Next() {
		prof, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan city hit")
		}
		hits = append(hits, &GeoHit{UserID: prof.UserID, Metadata: models.MetadataFromProfile(prof)})
	}
	return hits, rows.Err()
}

// CountEmbeddings returns the number of stored embeddings.
func (s *PostgresStore) CountEmbeddings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_embeddings`).Scan(&n)
	return n, errors.Wrap(err, "failed to count embeddings")
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
