// Package config assembles the pipeline's single immutable Config value
// from a .env file and environment variables. Nothing outside this package
// calls os.Getenv: every recognized option is typed and defaulted here.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Scraper holds C6/C3 configuration.
type Scraper struct {
	StartPage         int
	EndPage           int
	AllMode           bool
	Phase             string // "1", "2", or "all"
	Phase2MinRate     float64
	Phase2MinComments int
	DetailSleep       time.Duration
	PageSleep         time.Duration
	EntrySleep        time.Duration
	IgnoreReleaseDate bool
	IgnoreHistory     bool
	BaseURL           string
	DetailWorkers     int
	DryRun            bool
	OutputFile        string
}

// ProxyMode is either single-proxy or round-robin pool.
type ProxyMode string

const (
	ProxyModeSingle ProxyMode = "single"
	ProxyModePool   ProxyMode = "pool"
)

// ProxyConfig holds C1 configuration.
type ProxyConfig struct {
	Mode         ProxyMode
	Pool         []ProxyEntryConfig
	CooldownSecs int
	MaxFailures  int
	Modules      []string
	UseProxy     bool
}

// ProxyEntryConfig names one configured proxy.
type ProxyEntryConfig struct {
	Name string
	URL  string
}

// BypassConfig holds the challenge-bypass front-end configuration.
type BypassConfig struct {
	Enabled     bool
	ServicePort int
	ServiceHost string
}

// TorrentClientConfig holds C7's torrent-client configuration.
type TorrentClientConfig struct {
	Host            string
	Port            int
	User            string
	Pass            string
	CategoryDaily   string
	CategoryAdHoc   string
	SavePath        string
	AutoStart       bool
	SkipChecking    bool
	RequestTimeout  time.Duration
	InterAddDelay   time.Duration
}

// HistoryConfig holds the on-disk path to the history table.
type HistoryConfig struct {
	FilePath string
}

// DeepStorageConfig holds the deep-storage bridge's credentials and pacing.
type DeepStorageConfig struct {
	BaseURL      string
	Email        string
	Pass         string
	RequestDelay time.Duration
}

// OpsAPIConfig holds the optional HTTP operations surface's bind address.
type OpsAPIConfig struct {
	Enabled bool
	Addr    string
}

// LoggingConfig controls the zap logger built by logging.New.
type LoggingConfig struct {
	Level    string
	Encoding string // "json" or "console"
}

// Config is the single immutable configuration value constructed once at
// process start and threaded through every constructor.
type Config struct {
	Scraper       Scraper
	Proxy         ProxyConfig
	Bypass        BypassConfig
	TorrentClient TorrentClientConfig
	History       HistoryConfig
	DeepStorage   DeepStorageConfig
	OpsAPI        OpsAPIConfig
	Logging       LoggingConfig

	ReportsDir string
}

// Load reads configuration from an optional .env file and the environment,
// applying defaults for every recognized option.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig() // absent .env is not an error; env vars still apply

	setDefaults(v)

	cfg := &Config{
		Scraper: Scraper{
			StartPage:         v.GetInt("SCRAPER_START_PAGE"),
			EndPage:           v.GetInt("SCRAPER_END_PAGE"),
			AllMode:           v.GetBool("SCRAPER_ALL_MODE"),
			Phase:             v.GetString("SCRAPER_PHASE"),
			Phase2MinRate:     v.GetFloat64("SCRAPER_PHASE2_MIN_RATE"),
			Phase2MinComments: v.GetInt("SCRAPER_PHASE2_MIN_COMMENTS"),
			DetailSleep:       v.GetDuration("SCRAPER_DETAIL_SLEEP"),
			PageSleep:         v.GetDuration("SCRAPER_PAGE_SLEEP"),
			EntrySleep:        v.GetDuration("SCRAPER_ENTRY_SLEEP"),
			IgnoreReleaseDate: v.GetBool("SCRAPER_IGNORE_RELEASE_DATE"),
			IgnoreHistory:     v.GetBool("SCRAPER_IGNORE_HISTORY"),
			BaseURL:           v.GetString("SCRAPER_BASE_URL"),
			DetailWorkers:     v.GetInt("SCRAPER_DETAIL_WORKERS"),
			DryRun:            v.GetBool("SCRAPER_DRY_RUN"),
			OutputFile:        v.GetString("SCRAPER_OUTPUT_FILE"),
		},
		Proxy: ProxyConfig{
			Mode:         ProxyMode(v.GetString("PROXY_MODE")),
			CooldownSecs: v.GetInt("PROXY_COOLDOWN_SECONDS"),
			MaxFailures:  v.GetInt("PROXY_MAX_FAILURES"),
			Modules:      v.GetStringSlice("PROXY_MODULES"),
			UseProxy:     v.GetBool("PROXY_USE_PROXY"),
		},
		Bypass: BypassConfig{
			Enabled:     v.GetBool("BYPASS_ENABLED"),
			ServicePort: v.GetInt("BYPASS_SERVICE_PORT"),
			ServiceHost: v.GetString("BYPASS_SERVICE_HOST"),
		},
		TorrentClient: TorrentClientConfig{
			Host:           v.GetString("QBIT_HOST"),
			Port:           v.GetInt("QBIT_PORT"),
			User:           v.GetString("QBIT_USER"),
			Pass:           v.GetString("QBIT_PASS"),
			CategoryDaily:  v.GetString("QBIT_CATEGORY_DAILY"),
			CategoryAdHoc:  v.GetString("QBIT_CATEGORY_ADHOC"),
			SavePath:       v.GetString("QBIT_SAVE_PATH"),
			AutoStart:      v.GetBool("QBIT_AUTO_START"),
			SkipChecking:   v.GetBool("QBIT_SKIP_CHECKING"),
			RequestTimeout: v.GetDuration("QBIT_REQUEST_TIMEOUT"),
			InterAddDelay:  v.GetDuration("QBIT_INTER_ADD_DELAY"),
		},
		History: HistoryConfig{
			FilePath: v.GetString("HISTORY_FILE_PATH"),
		},
		DeepStorage: DeepStorageConfig{
			BaseURL:      v.GetString("DEEPSTORAGE_BASE_URL"),
			Email:        v.GetString("DEEPSTORAGE_EMAIL"),
			Pass:         v.GetString("DEEPSTORAGE_PASS"),
			RequestDelay: v.GetDuration("DEEPSTORAGE_REQUEST_DELAY"),
		},
		OpsAPI: OpsAPIConfig{
			Enabled: v.GetBool("OPSAPI_ENABLED"),
			Addr:    v.GetString("OPSAPI_ADDR"),
		},
		Logging: LoggingConfig{
			Level:    v.GetString("LOG_LEVEL"),
			Encoding: v.GetString("LOG_ENCODING"),
		},
		ReportsDir: v.GetString("REPORTS_DIR"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SCRAPER_START_PAGE", 1)
	v.SetDefault("SCRAPER_END_PAGE", 0)
	v.SetDefault("SCRAPER_ALL_MODE", true)
	v.SetDefault("SCRAPER_PHASE", "all")
	v.SetDefault("SCRAPER_PHASE2_MIN_RATE", 4.0)
	v.SetDefault("SCRAPER_PHASE2_MIN_COMMENTS", 80)
	v.SetDefault("SCRAPER_DETAIL_SLEEP", "3s")
	v.SetDefault("SCRAPER_PAGE_SLEEP", "1s")
	v.SetDefault("SCRAPER_ENTRY_SLEEP", "500ms")
	v.SetDefault("SCRAPER_IGNORE_RELEASE_DATE", false)
	v.SetDefault("SCRAPER_IGNORE_HISTORY", false)
	v.SetDefault("SCRAPER_BASE_URL", "")
	v.SetDefault("SCRAPER_DETAIL_WORKERS", 1)
	v.SetDefault("SCRAPER_DRY_RUN", false)
	v.SetDefault("SCRAPER_OUTPUT_FILE", "")

	v.SetDefault("PROXY_MODE", "single")
	v.SetDefault("PROXY_COOLDOWN_SECONDS", int((8 * 24 * time.Hour).Seconds()))
	v.SetDefault("PROXY_MAX_FAILURES", 3)
	v.SetDefault("PROXY_MODULES", []string{"spider_index", "spider_detail"})
	v.SetDefault("PROXY_USE_PROXY", false)

	v.SetDefault("BYPASS_ENABLED", false)
	v.SetDefault("BYPASS_SERVICE_PORT", 8191)
	v.SetDefault("BYPASS_SERVICE_HOST", "127.0.0.1")

	v.SetDefault("QBIT_HOST", "127.0.0.1")
	v.SetDefault("QBIT_PORT", 8080)
	v.SetDefault("QBIT_CATEGORY_DAILY", "daily")
	v.SetDefault("QBIT_CATEGORY_ADHOC", "ad-hoc")
	v.SetDefault("QBIT_SAVE_PATH", "")
	v.SetDefault("QBIT_AUTO_START", true)
	v.SetDefault("QBIT_SKIP_CHECKING", false)
	v.SetDefault("QBIT_REQUEST_TIMEOUT", "15s")
	v.SetDefault("QBIT_INTER_ADD_DELAY", "2s")

	v.SetDefault("HISTORY_FILE_PATH", "reports/parsed_movies_history.csv")

	v.SetDefault("DEEPSTORAGE_BASE_URL", "https://api.deepstorage.example.com")
	v.SetDefault("DEEPSTORAGE_REQUEST_DELAY", "1s")

	v.SetDefault("OPSAPI_ENABLED", false)
	v.SetDefault("OPSAPI_ADDR", ":8088")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")

	v.SetDefault("REPORTS_DIR", "reports")
}

func (c *Config) validate() error {
	switch c.Proxy.Mode {
	case ProxyModeSingle, ProxyModePool:
	default:
		return fmt.Errorf("invalid PROXY_MODE %q", c.Proxy.Mode)
	}
	switch c.Scraper.Phase {
	case "1", "2", "all":
	default:
		return fmt.Errorf("invalid SCRAPER_PHASE %q", c.Scraper.Phase)
	}
	return nil
}
