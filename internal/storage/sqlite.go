package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/nearby/internal/geo"
	"github.com/hyperjump/nearby/internal/geoindex"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/vector"
)

// SQLiteStore implements Store on SQLite. Vectors are persisted in SQLite
// and mirrored in a vector.MemoryIndex for similarity search.
type SQLiteStore struct {
	db       *sql.DB
	index    *vector.MemoryIndex
	geoIndex *geoindex.BleveIndex
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithGeoIndex answers radius queries from a Bleve geo index instead of a
// bounding-box scan. The store keeps the index in sync with profile writes.
func WithGeoIndex(idx *geoindex.BleveIndex) SQLiteOption {
	return func(s *SQLiteStore) { s.geoIndex = idx }
}

// NewSQLiteStore opens or creates a SQLite database at dbPath, initializes the
// schema and loads stored vectors of the given dimension.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, dimensions int, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	idx, err := vector.NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s := &SQLiteStore{db: db, index: idx}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.loadVectors(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		lat REAL,
		lng REAL,
		privacy_level TEXT NOT NULL DEFAULT 'city_only',
		languages TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_city ON user_profiles(city COLLATE NOCASE, state COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_profiles_lat_lng ON user_profiles(lat, lng);

	CREATE TABLE IF NOT EXISTS profile_embeddings (
		user_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		profile_text TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadVectors(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, vector, dimensions FROM profile_embeddings`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		var dims int
		if err := rows.Scan(&id, &blob, &dims); err != nil {
			return err
		}
		if dims != s.index.Dimensions() {
			return fmt.Errorf("embedding %s has %d dimensions, store expects %d", id, dims, s.index.Dimensions())
		}
		if err := s.index.Upsert(ctx, id, bytesToFloat32Slice(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Driver returns "sqlite".
func (s *SQLiteStore) Driver() string { return "sqlite" }

// UpsertProfile inserts or replaces a profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("profile requires a user_id")
	}
	cp := cloneProfile(p)
	cp.Normalize()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	tagsJSON, err := json.Marshal(cp.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	langJSON, err := json.Marshal(cp.Languages)
	if err != nil {
		return fmt.Errorf("failed to marshal languages: %w", err)
	}
	var lat, lng sql.NullFloat64
	if c := cp.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, name, tags, city, state, country, lat, lng, privacy_level, languages, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name, tags = excluded.tags, city = excluded.city, state = excluded.state,
			country = excluded.country, lat = excluded.lat, lng = excluded.lng,
			privacy_level = excluded.privacy_level, languages = excluded.languages, updated_at = excluded.updated_at`,
		cp.UserID, cp.Name, string(tagsJSON), cp.Location.City, cp.Location.State, cp.Location.Country,
		lat, lng, string(cp.Location.PrivacyLevel), string(langJSON), cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	if s.geoIndex != nil {
		if cp.Location.Coordinates != nil {
			return s.geoIndex.Index(ctx, cp.UserID, *cp.Location.Coordinates)
		}
		return s.geoIndex.Delete(ctx, cp.UserID)
	}
	return nil
}

const profileColumns = `user_id, name, tags, city, state, country, lat, lng, privacy_level, languages, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*models.UserProfile, error) {
	return scanProfileWith(row)
}

// scanProfileWith scans the profile columns followed by extra trailing columns.
func scanProfileWith(row rowScanner, extra ...interface{}) (*models.UserProfile, error) {
	var p models.UserProfile
	var tagsJSON, langJSON, privacy string
	var lat, lng sql.NullFloat64
	dest := []interface{}{&p.UserID, &p.Name, &tagsJSON, &p.Location.City, &p.Location.State, &p.Location.Country,
		&lat, &lng, &privacy, &langJSON, &p.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(langJSON), &p.Languages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal languages: %w", err)
	}
	if lat.Valid && lng.Valid {
		p.Location.Coordinates = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	p.Location.PrivacyLevel = models.PrivacyLevel(privacy)
	return &p, nil
}

// GetProfile returns the profile of userID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetTags returns the tags of userID.
func (s *SQLiteStore) GetTags(ctx context.Context, userID string) ([]string, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Tags, nil
}

// GetLocation returns the location of userID.
func (s *SQLiteStore) GetLocation(ctx context.Context, userID string) (*models.Location, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &p.Location, nil
}

// DeleteProfile removes the profile and embedding of userID.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = ?`, userID); err != nil {
		return err
	}
	if s.geoIndex != nil {
		if err := s.geoIndex.Delete(ctx, userID); err != nil {
			return err
		}
	}
	return s.DeleteEmbedding(ctx, userID)
}

// ListProfileIDs returns all profile IDs in ascending order.
func (s *SQLiteStore) ListProfileIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertEmbedding writes vector, text and metadata in one statement, then
// refreshes the in-memory index.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, e *models.ProfileEmbedding) error {
	if e == nil || e.UserID == "" {
		return fmt.Errorf("embedding requires a user_id")
	}
	if len(e.Vector) != s.index.Dimensions() {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), s.index.Dimensions())
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	now := time.Now()
	created, updated := e.CreatedAt, e.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profile_embeddings (user_id, vector, dimensions, profile_text, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			vector = excluded.vector, dimensions = excluded.dimensions, profile_text = excluded.profile_text,
			metadata = excluded.metadata, updated_at = excluded.updated_at`,
		e.UserID, float32SliceToBytes(e.Vector), len(e.Vector), e.ProfileText, string(metadataJSON), created, updated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return s.index.Upsert(ctx, e.UserID, e.Vector)
}

// GetEmbedding returns the embedding of userID.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	var e models.ProfileEmbedding
	var blob []byte
	var metadataJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, vector, profile_text, metadata, created_at, updated_at
		 FROM profile_embeddings WHERE user_id = ?`, userID,
	).Scan(&e.UserID, &blob, &e.ProfileText, &metadataJSON, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	e.Vector = bytesToFloat32Slice(blob)
	return &e, nil
}

// DeleteEmbedding removes the embedding of userID.
func (s *SQLiteStore) DeleteEmbedding(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profile_embeddings WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return s.index.Remove(ctx, userID)
}

// SemanticSearch returns embeddings most similar to p.Vector.
func (s *SQLiteStore) SemanticSearch(ctx context.Context, p SemanticSearchParams) ([]*SemanticHit, error) {
	results, err := s.index.Search(ctx, p.Vector, vector.SearchOptions{
		Limit:         p.Limit,
		MinSimilarity: p.MinSimilarity,
		Exclude:       p.ExcludeUserID,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]*SemanticHit, 0, len(results))
	for _, r := range results {
		e, err := s.GetEmbedding(ctx, r.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, &SemanticHit{UserID: r.ID, Similarity: r.Score, ProfileText: e.ProfileText, Metadata: e.Metadata})
	}
	return hits, nil
}

// GeoSearch returns profiles with coordinates within p.RadiusKm of p.Origin.
func (s *SQLiteStore) GeoSearch(ctx context.Context, p GeoSearchParams) ([]*GeoHit, error) {
	var profiles []*models.UserProfile
	var err error
	if s.geoIndex != nil {
		profiles, err = s.profilesFromGeoIndex(ctx, p)
	} else {
		profiles, err = s.profilesInBox(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	hits := make([]*GeoHit, 0, len(profiles))
	for _, prof := range profiles {
		if prof.UserID == p.ExcludeUserID || prof.Location.Coordinates == nil {
			continue
		}
		d := geo.Haversine(p.Origin, *prof.Location.Coordinates)
		if d > p.RadiusKm {
			continue
		}
		hits = append(hits, &GeoHit{UserID: prof.UserID, DistanceKm: d, Metadata: models.MetadataFromProfile(prof)})
	}
	return sortGeoHits(hits, p.Limit), nil
}

func (s *SQLiteStore) profilesFromGeoIndex(ctx context.Context, p GeoSearchParams) ([]*models.UserProfile, error) {
	ids, err := s.geoIndex.Within(ctx, p.Origin, p.RadiusKm, 0)
	if err != nil {
		return nil, err
	}
	profiles := make([]*models.UserProfile, 0, len(ids))
	for _, id := range ids {
		prof, err := s.GetProfile(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, prof)
	}
	return profiles, nil
}

// profilesInBox prefilters with a lat/lng bounding box around the radius.
func (s *SQLiteStore) profilesInBox(ctx context.Context, p GeoSearchParams) ([]*models.UserProfile, error) {
	dLat := p.RadiusKm / 111.0
	query := `SELECT ` + profileColumns + ` FROM user_profiles
		WHERE lat IS NOT NULL AND lng IS NOT NULL AND lat BETWEEN ? AND ?`
	args := []interface{}{p.Origin.Lat - dLat, p.Origin.Lat + dLat}
	if cos := math.Cos(p.Origin.Lat * math.Pi / 180); cos > 0.01 {
		dLng := p.RadiusKm / (111.0 * cos)
		if p.Origin.Lng-dLng >= -180 && p.Origin.Lng+dLng <= 180 {
			query += ` AND lng BETWEEN ? AND ?`
			args = append(args, p.Origin.Lng-dLng, p.Origin.Lng+dLng)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []*models.UserProfile
	for rows.Next() {
		prof, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, prof)
	}
	return profiles, rows.Err()
}

// HybridGeoSemanticSearch ranks embedded users within the radius by fused score.
func (s *SQLiteStore) HybridGeoSemanticSearch(ctx context.Context, p HybridSearchParams) ([]*HybridHit, error) {
	return hybridFromIndex(ctx, s.index, s.GeoSearch, s.GetEmbedding, p)
}

// CitySearch returns profiles declaring the same city, at distance 0.
func (s *SQLiteStore) CitySearch(ctx context.Context, p CitySearchParams) ([]*GeoHit, error) {
	if strings.TrimSpace(p.City) == "" {
		return nil, nil
	}
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE city = ? COLLATE NOCASE AND user_id <> ?`
	args := []interface{}{strings.TrimSpace(p.City), p.ExcludeUserID}
	if st := strings.TrimSpace(p.State); st != "" {
		query += ` AND state = ? COLLATE NOCASE`
		args = append(args, st)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []*GeoHit
	for rows.Next() {
		prof, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, &GeoHit{UserID: prof.UserID, Metadata: models.MetadataFromProfile(prof)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sortGeoHits(hits, p.Limit), nil
}

// CountEmbeddings returns the number of stored embeddings.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_embeddings`).Scan(&n)
	return n, err
}

// Close closes the database and the geo index, if any.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if s.geoIndex != nil {
		if gerr := s.geoIndex.Close(); err == nil {
			err = gerr
		}
	}
	return err
}
