package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

type recordingSink struct {
	mu       sync.Mutex
	imported []string
	removed  []string
}

func (s *recordingSink) ImportFile(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imported = append(s.imported, path)
	return 1, nil
}

func (s *recordingSink) RemoveFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
	return nil
}

func (s *recordingSink) snapshot() (imported, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.imported...), append([]string(nil), s.removed...)
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := New(&recordingSink{}, nil, []string{".yaml"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_DebouncedImportAndRemove(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	w := New(sink, []string{dir}, []string{".yaml"}, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "asha.yaml")
	writeFile(t, path, "user_id: u1\n")
	writeFile(t, path, "user_id: u1\nname: Asha\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	if !eventually(t, 2*time.Second, func() bool {
		imported, _ := sink.snapshot()
		return hasSuffix(imported, "asha.yaml")
	}) {
		t.Fatal("asha.yaml was not imported")
	}
	imported, _ := sink.snapshot()
	if hasSuffix(imported, "notes.txt") {
		t.Errorf("notes.txt should be ignored, got %v", imported)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !eventually(t, 2*time.Second, func() bool {
		_, removed := sink.snapshot()
		return hasSuffix(removed, "asha.yaml")
	}) {
		t.Fatal("removal of asha.yaml was not forwarded")
	}
}

func TestWatcher_NewDirectoryIsImported(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	w := New(sink, []string{dir}, []string{".yaml", ".json"}, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "team", "texas")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(nested, "ben.json"), `{"user_id":"u2"}`)

	if !eventually(t, 2*time.Second, func() bool {
		imported, _ := sink.snapshot()
		return hasSuffix(imported, "ben.json")
	}) {
		imported, _ := sink.snapshot()
		t.Fatalf("expected ben.json to be imported, got %v", imported)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "user_id: a\n")
	writeFile(t, filepath.Join(dir, "ignore.xyz"), "x")

	sink := &recordingSink{}
	w := New(sink, []string{dir}, []string{".yaml"})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExistingFiles()

	imported, _ := sink.snapshot()
	if len(imported) != 1 || !strings.HasSuffix(imported[0], "a.yaml") {
		t.Errorf("expected only a.yaml to be imported, got %v", imported)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "profiles", "incoming")
	w := New(&recordingSink{}, []string{root}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should exist after Start: %v", err)
	}
}

func TestWatcher_ImporterSink(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := storage.NewMemoryStore(8)
	if err != nil {
		t.Fatal(err)
	}
	cache, err := vectorizer.NewCache(16)
	if err != nil {
		t.Fatal(err)
	}
	v := vectorizer.New(store, store, embedding.NewMockEmbedder(8), nil, cache)
	im := vectorizer.NewImporter(store, v)

	w := New(im, []string{dir}, im.Extensions(), WithDebounce(50*time.Millisecond))
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "people.yaml")
	writeFile(t, path, "- user_id: u1\n  name: Asha\n  tags: [cricket]\n- user_id: u2\n  name: Ben\n")
	if !eventually(t, 2*time.Second, func() bool {
		ids, _ := store.ListProfileIDs(ctx)
		return len(ids) == 2
	}) {
		t.Fatal("profiles were not imported")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !eventually(t, 2*time.Second, func() bool {
		ids, _ := store.ListProfileIDs(ctx)
		return len(ids) == 0
	}) {
		ids, _ := store.ListProfileIDs(ctx)
		t.Fatalf("profiles should be removed with their file, still have %v", ids)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.yaml", []string{".yaml"}, true},
		{"/a/b.YAML", []string{".yaml"}, true},
		{"/a/b.json", []string{"json"}, true},
		{"/a/b.md", []string{".yaml"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.yaml", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
