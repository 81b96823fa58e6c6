package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tickerdesk.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Snapshot  Snapshot  `yaml:"snapshot"`
	GitHub    GitHub    `yaml:"github"`
	Watchlist Watchlist `yaml:"watchlist"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Storage holds paths for local persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Snapshot locates the JSON file produced by the batch job. Source is either
// an http(s) URL or a filesystem path.
type Snapshot struct {
	Source  string        `yaml:"source"`
	Timeout time.Duration `yaml:"timeout"`
}

// GitHub holds the hosting API endpoints. The credential and repository
// coordinates are not configured here; they live in local storage and are
// edited from the settings form.
type GitHub struct {
	APIURL          string        `yaml:"api_url"`
	ListPath        string        `yaml:"list_path"`
	Workflow        string        `yaml:"workflow"`
	Branch          string        `yaml:"branch"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Watchlist controls the refresh loop and placeholder behaviour.
type Watchlist struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	TriggerWatch    time.Duration `yaml:"trigger_watch"`
	Placeholders    bool          `yaml:"placeholders"`
	Archive         bool          `yaml:"archive"`
}

// Alpaca holds optional credentials for mirroring the watchlist to an Alpaca
// account watchlist.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	Watchlist string `yaml:"watchlist"`
}

// Server holds the local HTTP API listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Browser origins allowed to call the API. Requests carrying any other
	// Origin header are refused.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tickerdesk.db",
		},
		Snapshot: Snapshot{
			Source:  "public/stocks.json",
			Timeout: 15 * time.Second,
		},
		GitHub: GitHub{
			APIURL:          "https://api.github.com",
			ListPath:        "stock_list.json",
			Workflow:        "update_data.yml",
			Branch:          "main",
			RateLimitPerMin: 30,
			Timeout:         20 * time.Second,
		},
		Watchlist: Watchlist{
			RefreshInterval: 30 * time.Second,
			TriggerWatch:    15 * time.Minute,
			Placeholders:    true,
		},
		Alpaca: Alpaca{
			Watchlist: "tickerdesk",
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, and then applies environment variable overrides. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Path returns the config file path from TICKERDESK_CONFIG, or the default
// location.
func Path() string {
	if p := os.Getenv("TICKERDESK_CONFIG"); p != "" {
		return p
	}
	return "config/tickerdesk.yaml"
}

// Addr returns the host:port the HTTP API listens on.
func (s Server) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TICKERDESK_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("TICKERDESK_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("TICKERDESK_SNAPSHOT"); v != "" {
		cfg.Snapshot.Source = v
	}

	if v := os.Getenv("GITHUB_API_URL"); v != "" {
		cfg.GitHub.APIURL = v
	}

	if v := os.Getenv("GITHUB_LIST_PATH"); v != "" {
		cfg.GitHub.ListPath = v
	}

	if v := os.Getenv("GITHUB_WORKFLOW"); v != "" {
		cfg.GitHub.Workflow = v
	}

	if v := os.Getenv("GITHUB_BRANCH"); v != "" {
		cfg.GitHub.Branch = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
