package vectorizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/nearby/internal/fileid"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/storage"
)

const singleProfile = `
user_id: asha
name: Asha
tags: [Cooking, cricket, " Bollywood "]
location:
  city: Frisco
  state: Texas
  country: USA
  coordinates: {lat: 33.1507, lng: -96.8236}
  privacy_level: exact
languages:
  native: Hindi
  preferred: [English]
`

const profileList = `[
  {"user_id": "ben", "name": "Ben", "tags": ["hiking"]},
  {"name": "No Id", "tags": ["music"]}
]`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestParseProfiles(t *testing.T) {
	profiles, err := ParseProfiles("/p/asha.yaml", []byte(singleProfile))
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	p := profiles[0]
	assert.Equal(t, "asha", p.UserID)
	assert.Equal(t, []string{"bollywood", "cooking", "cricket"}, p.Tags)
	require.NotNil(t, p.Location.Coordinates)
	assert.InDelta(t, 33.1507, p.Location.Coordinates.Lat, 1e-9)
	assert.Equal(t, "exact", string(p.Location.PrivacyLevel))
	assert.Equal(t, []string{"English"}, p.Languages.Preferred)

	profiles, err = ParseProfiles("/p/team.json", []byte(profileList))
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "ben", profiles[0].UserID)
	assert.Equal(t, fileid.ProfileID("/p/team.json", 1), profiles[1].UserID)

	_, err = ParseProfiles("/p/bad.yaml", []byte("just a string"))
	assert.Error(t, err)

	profiles, err = ParseProfiles("/p/empty.yaml", nil)
	assert.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestImportDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "asha.yaml"), singleProfile)
	writeFile(t, filepath.Join(dir, "nested", "team.json"), profileList)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	v, store, emb, _ := setup(t)
	im := NewImporter(store, v)
	ctx := context.Background()

	n, err := im.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	p, err := store.GetProfile(ctx, "asha")
	require.NoError(t, err)
	assert.Equal(t, "Frisco", p.Location.City)
	assert.Equal(t, 0, emb.callCount())

	n, err = im.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, n, "unchanged files are skipped")
}

func TestImportFile_EagerVectorize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asha.yaml")
	writeFile(t, path, singleProfile)

	v, store, emb, _ := setup(t)
	im := NewImporter(store, v, WithEagerVectorize(true))
	ctx := context.Background()

	n, err := im.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, emb.callCount())

	_, err = store.GetEmbedding(ctx, "asha")
	require.NoError(t, err)
}

func TestImportFile_RefreshesEmbeddingMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asha.yaml")
	writeFile(t, path, singleProfile)

	v, store, emb, _ := setup(t)
	im := NewImporter(store, v)
	ctx := context.Background()

	_, err := im.ImportFile(ctx, path)
	require.NoError(t, err)
	_, err = v.Ensure(ctx, "asha")
	require.NoError(t, err)

	writeFile(t, path, strings.Replace(singleProfile, "privacy_level: exact", "privacy_level: private", 1))
	_, err = im.ImportFile(ctx, path)
	require.NoError(t, err)

	stored, err := store.GetEmbedding(ctx, "asha")
	require.NoError(t, err)
	assert.Equal(t, models.PrivacyPrivate, stored.Metadata.PrivacyLevel)
	assert.Equal(t, 1, emb.callCount())
}

func TestImportFile_DropsRemovedEntriesAndRemoveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.json")
	writeFile(t, path, profileList)

	v, store, _, _ := setup(t)
	im := NewImporter(store, v)
	ctx := context.Background()

	_, err := im.ImportFile(ctx, path)
	require.NoError(t, err)
	derived := fileid.ProfileID(path, 1)
	_, err = store.GetProfile(ctx, derived)
	require.NoError(t, err)

	writeFile(t, path, `[{"user_id": "ben", "name": "Ben", "tags": ["hiking", "climbing"]}]`)
	n, err := im.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.GetProfile(ctx, derived)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, im.RemoveFile(ctx, path))
	_, err = store.GetProfile(ctx, "ben")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestImportFile_Errors(t *testing.T) {
	dir := t.TempDir()
	v, store, _, _ := setup(t)
	im := NewImporter(store, v)
	ctx := context.Background()

	_, err := im.ImportFile(ctx, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = im.ImportFile(ctx, dir)
	assert.Error(t, err)
	_, err = im.ImportDirectory(ctx, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".yaml", DefaultProfileExtensions, true},
		{".YML", DefaultProfileExtensions, true},
		{".json", []string{"json"}, true},
		{".txt", DefaultProfileExtensions, false},
		{"", DefaultProfileExtensions, false},
	}
	for _, tt := range tests {
		if got := ExtensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
