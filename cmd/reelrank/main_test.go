package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/embedding"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"heist"}, "heist"},
		{[]string{"space", "opera"}, "space opera"},
		{[]string{"  desert planet "}, "desert planet"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := buildQuery(tt.args); got != tt.want {
			t.Errorf("buildQuery(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseMovieIDs(t *testing.T) {
	ids, err := parseMovieIDs([]string{"3", "17"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 17 {
		t.Errorf("ids = %v", ids)
	}
	for _, bad := range []string{"abc", "0", "-4"} {
		if _, err := parseMovieIDs([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestOutputFormat(t *testing.T) {
	defer func() { jsonOutput = false }()
	jsonOutput = false
	if outputFormat() != "text" {
		t.Errorf("default format = %s", outputFormat())
	}
	jsonOutput = true
	if outputFormat() != "json" {
		t.Errorf("json format = %s", outputFormat())
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "movies.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// t.TempDir may sit behind a symlink (macOS /var -> /private/var).
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Recommend.DefaultK != 10 {
		t.Errorf("defaults not applied: %+v", cfg.Recommend)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRunConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	defer func() { forceInit = false }()
	forceInit = false
	if err := runConfigInit(cmd, []string{path}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), path) {
		t.Errorf("output = %q", out.String())
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 || cfg.Storage.SnapshotBackend != "file" {
		t.Errorf("unexpected config: %+v %+v", cfg.Server, cfg.Storage)
	}

	if err := runConfigInit(cmd, []string{path}); err == nil {
		t.Error("expected error when the file exists")
	}
	forceInit = true
	if err := runConfigInit(cmd, []string{path}); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)
	if got := out.String(); got != "reelrank version "+Version+"\n" {
		t.Errorf("version output = %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"server": false, "ingest": false, "search": false, "recommend": false,
		"status": false, "remove": false, "version": false, "config": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "movies.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "indices", "bleve")
	cfg.Storage.SnapshotDir = filepath.Join(dir, "indices", "vector")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 8
	cfg.Auth.JWTSecret = "test-secret"
	config.ApplyDefaults(cfg)
	return cfg
}

func TestInitializeComponents_ingestAndRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logger := zap.NewNop()

	catalog := filepath.Join(t.TempDir(), "catalog.csv")
	content := "Movie ID,Title,Overview,Genres\n" +
		"1,Dune,Spice war on a desert planet,Science Fiction\n" +
		"2,Heat,Bank heist in Los Angeles,Crime\n"
	if err := os.WriteFile(catalog, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := initializeComponents(ctx, cfg, logger, componentOptions{keyword: true})
	if err != nil {
		t.Fatal(err)
	}
	results, err := ingestPaths(ctx, c.Indexer, []string{catalog}, logger)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Movies != 2 || !results[0].Persisted {
		t.Fatalf("results = %+v", results)
	}
	if n, err := c.Keyword.DocCount(); err != nil || n != 2 {
		t.Errorf("keyword docs = %d, %v", n, err)
	}
	if _, err := ingestPaths(ctx, c.Indexer, []string{filepath.Join(t.TempDir(), "missing.csv")}, logger); err == nil {
		t.Error("expected error for a missing path")
	}
	c.Close()

	reopened, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Keyword != nil {
		t.Error("keyword index should not be opened")
	}
	if st := reopened.Engine.Stats(); st.Vectors != 2 || st.Movies != 2 || st.Dimensions != 8 {
		t.Errorf("restored stats = %+v", st)
	}
	res, err := reopened.Service.ForQuery(ctx, "desert planet", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Movies) != 2 {
		t.Errorf("expected 2 movies, got %d", len(res.Movies))
	}
	count, err := reopened.Storage.CountMovies(ctx)
	if err != nil || count != 2 {
		t.Errorf("catalog count = %d, %v", count, err)
	}
}

func TestInitializeComponents_unknownSnapshotBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.SnapshotBackend = "tape"
	if _, err := initializeComponents(context.Background(), cfg, zap.NewNop(), componentOptions{}); err == nil {
		t.Error("expected error for an unknown snapshot backend")
	}
}

func TestInitializeComponents_missingModelIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "onnx"
	cfg.Embedding.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, err := initializeComponents(context.Background(), cfg, zap.NewNop(), componentOptions{})
	if !errors.Is(err, embedding.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
