package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gamecatalog/internal/config"
	"gamecatalog/internal/service"
)

func fileConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	curatedPath := filepath.Join(dir, "curated.yaml")
	if err := os.WriteFile(curatedPath, []byte("titles:\n  - Hades\n  - Celeste\n"), 0o644); err != nil {
		t.Fatalf("write curated: %v", err)
	}
	return config.Config{
		Store:   config.StoreConfig{Backend: "file", SnapshotPath: filepath.Join(dir, "games.json")},
		Curated: config.CuratedConfig{Titles: []string{"Stardew Valley", "hades"}, Path: curatedPath},
	}
}

func TestNew_FileBackend(t *testing.T) {
	app, err := New(context.Background(), fileConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	if !app.IsFileBackend() {
		t.Fatalf("expected file backend")
	}
	if app.Redis != nil {
		t.Fatalf("redis should stay nil without an address")
	}
	if app.Sync == nil || app.Search == nil || app.Query == nil || app.Import == nil {
		t.Fatalf("services not wired: %+v", app)
	}
	if got := app.Engine.Curated.Len(); got != 3 {
		t.Fatalf("curated titles = %d, want 3", got)
	}
	if !app.Engine.IsCurated("HADES") {
		t.Fatalf("expected case-insensitive curated match")
	}
	if !app.Settings.IsEnabled(context.Background(), service.FeatureCatalogSync, false) {
		t.Fatalf("default switches were not seeded")
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Store.Backend = "db"
	cfg.DB = config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "catalog.db")}

	app, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()
	if app.IsFileBackend() || app.DB == nil {
		t.Fatalf("expected db backend")
	}
	states, err := app.Query.ListSyncStates(context.Background())
	if err != nil {
		t.Fatalf("ListSyncStates: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("fresh db has %d sync states", len(states))
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Store.Backend = "mongo"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
