package vectorizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/nearby/internal/fileid"
	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/storage"
)

// DefaultProfileExtensions are the file types ImportDirectory reads.
var DefaultProfileExtensions = []string{".yaml", ".yml", ".json"}

// Importer loads profile files into a profile store. A file holds either one
// profile or a list of profiles; JSON files are read as YAML.
type Importer struct {
	writer     storage.ProfileWriter
	vectorizer *Vectorizer
	eager      bool
	exts       []string
	logger     *zap.Logger

	mu    sync.Mutex
	files map[string]importedFile
}

type importedFile struct {
	modTime time.Time
	size    int64
	ids     []string
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImportLogger sets a logger for debug output.
func WithImportLogger(l *zap.Logger) ImporterOption {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}

// WithEagerVectorize embeds imported profiles right away instead of on first search.
func WithEagerVectorize(eager bool) ImporterOption {
	return func(im *Importer) { im.eager = eager }
}

// WithExtensions sets the file extensions ImportDirectory reads.
func WithExtensions(exts []string) ImporterOption {
	return func(im *Importer) {
		if len(exts) > 0 {
			im.exts = exts
		}
	}
}

// NewImporter creates an importer. v may be nil, in which case imported
// profiles are only stored.
func NewImporter(writer storage.ProfileWriter, v *Vectorizer, opts ...ImporterOption) *Importer {
	im := &Importer{
		writer:     writer,
		vectorizer: v,
		exts:       DefaultProfileExtensions,
		logger:     zap.NewNop(),
		files:      make(map[string]importedFile),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Extensions returns the extensions ImportDirectory reads.
func (im *Importer) Extensions() []string {
	return im.exts
}

// ParseProfiles decodes one profile or a list of profiles. Profiles without a
// user_id get an ID derived from path and their position in the file.
func ParseProfiles(path string, data []byte) ([]*models.UserProfile, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}
	node := root.Content[0]

	var profiles []*models.UserProfile
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&profiles); err != nil {
			return nil, fmt.Errorf("decode profiles in %s: %w", path, err)
		}
	case yaml.MappingNode:
		var p models.UserProfile
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode profile in %s: %w", path, err)
		}
		profiles = []*models.UserProfile{&p}
	default:
		return nil, fmt.Errorf("%s: expected a profile or a list of profiles", path)
	}

	out := profiles[:0]
	for i, p := range profiles {
		if p == nil {
			continue
		}
		p.UserID = strings.TrimSpace(p.UserID)
		if p.UserID == "" {
			p.UserID = fileid.ProfileID(path, i)
		}
		p.Normalize()
		out = append(out, p)
	}
	return out, nil
}

// ImportFile stores the profiles in path and returns how many were imported.
// Unchanged files (same mtime and size as the last import) are skipped.
func (im *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	if im.unchanged(absPath, info) {
		im.logger.Debug("importer skipping unchanged file", zap.String("path", absPath))
		return 0, nil
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	profiles, err := ParseProfiles(absPath, data)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if err := im.writer.UpsertProfile(ctx, p); err != nil {
			return len(ids), fmt.Errorf("store profile %s: %w", p.UserID, err)
		}
		ids = append(ids, p.UserID)
		im.refresh(ctx, p.UserID)
	}
	im.removeDropped(ctx, absPath, ids)

	im.mu.Lock()
	im.files[absPath] = importedFile{modTime: info.ModTime(), size: info.Size(), ids: ids}
	im.mu.Unlock()

	im.logger.Debug("importer file imported", zap.String("path", absPath), zap.Int("profiles", len(ids)))
	return len(ids), nil
}

// ImportDirectory walks dir recursively and imports every profile file. It
// returns the number of profiles imported and the first error encountered.
func (im *Importer) ImportDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(filepath.Ext(path), im.exts) {
			return nil
		}
		count, importErr := im.ImportFile(ctx, path)
		n += count
		return importErr
	})
	return n, err
}

// RemoveFile deletes the profiles last imported from path.
func (im *Importer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	im.mu.Lock()
	f, ok := im.files[absPath]
	delete(im.files, absPath)
	im.mu.Unlock()
	if !ok {
		return nil
	}
	for _, id := range f.ids {
		if err := im.writer.DeleteProfile(ctx, id); err != nil {
			return fmt.Errorf("delete profile %s: %w", id, err)
		}
		if im.vectorizer != nil {
			im.vectorizer.Invalidate(id)
		}
	}
	im.logger.Debug("importer file removed", zap.String("path", absPath), zap.Int("profiles", len(f.ids)))
	return nil
}

func (im *Importer) unchanged(absPath string, info os.FileInfo) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	f, ok := im.files[absPath]
	return ok && f.modTime.Equal(info.ModTime()) && f.size == info.Size()
}

// removeDropped deletes profiles a previous import of absPath stored that the
// file no longer contains.
func (im *Importer) removeDropped(ctx context.Context, absPath string, current []string) {
	im.mu.Lock()
	prev := im.files[absPath].ids
	im.mu.Unlock()
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	for _, id := range prev {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := im.writer.DeleteProfile(ctx, id); err != nil {
			im.logger.Warn("importer could not delete dropped profile", zap.String("user_id", id), zap.Error(err))
		}
		if im.vectorizer != nil {
			im.vectorizer.Invalidate(id)
		}
	}
}

func (im *Importer) refresh(ctx context.Context, userID string) {
	if im.vectorizer == nil {
		return
	}
	if !im.eager {
		if err := im.vectorizer.SyncMetadata(ctx, userID); err != nil {
			im.logger.Warn("importer could not refresh embedding metadata", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if _, err := im.vectorizer.Vectorize(ctx, userID); err != nil {
		im.logger.Warn("importer could not vectorize profile", zap.String("user_id", userID), zap.Error(err))
	}
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the dot.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
