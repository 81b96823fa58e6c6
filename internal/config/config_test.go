package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickerdesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  data_dir: "/tmp/tickerdesk/data"
  sqlite_path: "/tmp/tickerdesk/tickerdesk.db"
snapshot:
  source: "https://example.github.io/desk/stocks.json"
  timeout: 5s
github:
  api_url: "https://ghe.example.com/api/v3"
  list_path: "lists/stock_list.json"
  workflow: "refresh.yml"
  branch: "data"
  rate_limit_per_min: 10
watchlist:
  refresh_interval: 45s
  trigger_watch: 10m
  placeholders: false
  archive: true
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
server:
  host: "0.0.0.0"
  port: 9000
  allowed_origins:
    - "http://localhost:5173"
logging:
  level: "debug"
  format: "text"
`)

	// Clear any environment overrides that might interfere.
	for _, k := range []string{"TICKERDESK_DATA_DIR", "TICKERDESK_SNAPSHOT", "GITHUB_BRANCH", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/tickerdesk/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tickerdesk/data")
	}

	// -- Snapshot --
	if cfg.Snapshot.Source != "https://example.github.io/desk/stocks.json" {
		t.Errorf("Snapshot.Source = %q", cfg.Snapshot.Source)
	}
	if cfg.Snapshot.Timeout != 5*time.Second {
		t.Errorf("Snapshot.Timeout = %v, want 5s", cfg.Snapshot.Timeout)
	}

	// -- GitHub --
	if cfg.GitHub.Workflow != "refresh.yml" || cfg.GitHub.Branch != "data" {
		t.Errorf("GitHub = %+v", cfg.GitHub)
	}
	if cfg.GitHub.RateLimitPerMin != 10 {
		t.Errorf("GitHub.RateLimitPerMin = %d, want %d", cfg.GitHub.RateLimitPerMin, 10)
	}
	// Unset in the file, so the default survives.
	if cfg.GitHub.Timeout != 20*time.Second {
		t.Errorf("GitHub.Timeout = %v, want default 20s", cfg.GitHub.Timeout)
	}

	// -- Watchlist --
	if cfg.Watchlist.RefreshInterval != 45*time.Second {
		t.Errorf("Watchlist.RefreshInterval = %v, want 45s", cfg.Watchlist.RefreshInterval)
	}
	if cfg.Watchlist.Placeholders {
		t.Error("Watchlist.Placeholders = true, want false")
	}
	if !cfg.Watchlist.Archive {
		t.Error("Watchlist.Archive = false, want true")
	}

	// -- Server / Logging --
	if got := cfg.Server.Addr(); got != "0.0.0.0:9000" {
		t.Errorf("Server.Addr() = %q, want %q", got, "0.0.0.0:9000")
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 1 || got[0] != "http://localhost:5173" {
		t.Errorf("Server.AllowedOrigins = %v", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Alpaca.Watchlist != "tickerdesk" {
		t.Errorf("Alpaca.Watchlist = %q, want default %q", cfg.Alpaca.Watchlist, "tickerdesk")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TICKERDESK_SNAPSHOT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	def := Default()
	if cfg.Snapshot.Source != def.Snapshot.Source {
		t.Errorf("Snapshot.Source = %q, want %q", cfg.Snapshot.Source, def.Snapshot.Source)
	}
	if !cfg.Watchlist.Placeholders {
		t.Error("placeholders should default to enabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  data_dir: "/original/data"
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
`)

	t.Setenv("TICKERDESK_DATA_DIR", "/env/data")
	t.Setenv("TICKERDESK_SNAPSHOT", "/env/stocks.json")
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("APCA_API_SECRET_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Snapshot.Source != "/env/stocks.json" {
		t.Errorf("Snapshot.Source = %q, want %q (env override)", cfg.Snapshot.Source, "/env/stocks.json")
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "storage: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("TICKERDESK_CONFIG", "")
	if got := Path(); got != "config/tickerdesk.yaml" {
		t.Errorf("Path() = %q", got)
	}
	t.Setenv("TICKERDESK_CONFIG", "/etc/tickerdesk.yaml")
	if got := Path(); got != "/etc/tickerdesk.yaml" {
		t.Errorf("Path() = %q", got)
	}
}
