package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/indexer"
)

type fakeIngester struct {
	mu        sync.Mutex
	ingested  []string
	forgotten []string
}

func (f *fakeIngester) IngestFile(_ context.Context, path string) (*indexer.FileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, path)
	return &indexer.FileResult{Path: path, Movies: 1, Persisted: true}, nil
}

func (f *fakeIngester) Forget(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, path)
}

func (f *fakeIngester) snapshot() (ingested, forgotten []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ingested...), append([]string(nil), f.forgotten...)
}

func newTestWatcher(t *testing.T, dirs ...string) (*Watcher, *fakeIngester) {
	t.Helper()
	ing := &fakeIngester{}
	w := New(config.IngestConfig{
		WatchDirectories: dirs,
		Extensions:       []string{".json", ".csv"},
		Debounce:         50 * time.Millisecond,
	}, ing, WithLogger(zap.NewNop()))
	return w, ing
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/drop/movies.json", []string{".json"}, true},
		{"/drop/movies.JSON", []string{"json"}, true},
		{"/drop/movies.csv", []string{".json"}, false},
		{"/drop/.movies.json.swp", []string{".swp"}, false},
		{"/drop/movies", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestWatcher_StartCreatesMissingDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "drop", "catalog")
	w, _ := newTestWatcher(t, root)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("drop directory not created: %v", err)
	}
}

func TestWatcher_IngestsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	w, ing := newTestWatcher(t, dir)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "batch.json"), []byte(`[{"title":"Heat"}]`), 0600); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		got, _ := ing.snapshot()
		return contains(got, "batch.json")
	})
	got, _ := ing.snapshot()
	if contains(got, "notes.txt") {
		t.Errorf("unsupported file ingested: %v", got)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w, ing := newTestWatcher(t, dir)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "2024", "q1")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "movies.csv"), []byte("title\nHeat\n"), 0600); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		got, _ := ing.snapshot()
		return contains(got, "movies.csv")
	})
}

func TestWatcher_RemoveForgetsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")
	if err := os.WriteFile(path, []byte(`[]`), 0600); err != nil {
		t.Fatal(err)
	}
	w, ing := newTestWatcher(t, dir)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, forgotten := ing.snapshot()
		return contains(forgotten, "batch.json")
	})
}

func TestWatcher_Sync(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.json"), []byte(`[]`), 0600)
	os.WriteFile(filepath.Join(dir, "b.csv"), []byte("title\n"), 0600)
	os.WriteFile(filepath.Join(dir, "c.pdf"), []byte("%PDF"), 0600)

	w, ing := newTestWatcher(t, dir)
	if n := w.Sync(context.Background()); n != 2 {
		t.Errorf("Sync() = %d, want 2", n)
	}
	got, _ := ing.snapshot()
	if !contains(got, "a.json") || !contains(got, "b.csv") {
		t.Errorf("ingested = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Sync(ctx)
	if after, _ := ing.snapshot(); len(after) != len(got) {
		t.Error("cancelled Sync should not ingest")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, _ := newTestWatcher(t, t.TempDir())
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
	if w.Pending() != 0 {
		t.Error("pending timers after Stop")
	}
}

func TestWatcher_ContextCancelStops(t *testing.T) {
	w, _ := newTestWatcher(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.fsw == nil
	})
}
