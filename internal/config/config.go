// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/preintake/harvester/internal/directory"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig        `mapstructure:"logging"`
	Source    SourceConfig         `mapstructure:"source"`
	Crawl     CrawlConfig          `mapstructure:"crawl"`
	HTTP      HTTPConfig           `mapstructure:"http"`
	DB        DBConfig             `mapstructure:"db"`
	Notify    NotifyConfig         `mapstructure:"notify"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`
	WorkUnits []directory.WorkUnit `mapstructure:"work_units"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SourceConfig describes the directory being crawled: its two URL shapes,
// the request parameters, and the provenance stamped onto records.
type SourceConfig struct {
	Name            string `mapstructure:"name"`
	SearchURL       string `mapstructure:"search_url"`
	DetailURLPrefix string `mapstructure:"detail_url_prefix"`
	FilterParam     string `mapstructure:"filter_param"`
	PageParam       string `mapstructure:"page_param"`
	DetailPattern   string `mapstructure:"detail_pattern"`
	UserAgent       string `mapstructure:"user_agent"`
	State           string `mapstructure:"state"`
}

// CrawlConfig governs pacing, limits, and the circuit breaker.
type CrawlConfig struct {
	MaxRecords        int     `mapstructure:"max_records"`
	PageDelaySeconds  int     `mapstructure:"page_delay_seconds"`
	RecordDelaySecond int     `mapstructure:"record_delay_seconds"`
	ErrorThreshold    float64 `mapstructure:"error_threshold"`
	MaxFailedAttempts int     `mapstructure:"max_failed_attempts"`
	BatchSize         int     `mapstructure:"batch_size"`
	// NamePolicy is "first_last" (drop middle tokens) or "full" (keep them
	// in the first-name field). The directory renders full legal names, so
	// the right policy depends on downstream use.
	NamePolicy string `mapstructure:"name_policy"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
	MaxAttempts        int `mapstructure:"max_attempts"`
	BackoffThrottledMs int `mapstructure:"backoff_throttled_ms"`
	BackoffNetworkMs   int `mapstructure:"backoff_network_ms"`
}

// DBConfig controls access to the destination store.
type DBConfig struct {
	Provider      string `mapstructure:"provider"`
	DSN           string `mapstructure:"dsn"`
	RecordTable   string `mapstructure:"record_table"`
	ProgressTable string `mapstructure:"progress_table"`
}

// NotifyConfig selects the run-summary notifier.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.WorkUnits) == 0 {
		cfg.WorkUnits = directory.DefaultWorkUnits()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("source.name", "calbar")
	v.SetDefault("source.search_url", "https://apps.calbar.ca.gov/attorney/LicenseeSearch/AdvancedSearch")
	v.SetDefault("source.detail_url_prefix", "https://apps.calbar.ca.gov/attorney/Licensee/Detail/")
	v.SetDefault("source.filter_param", "PracticeArea")
	v.SetDefault("source.page_param", "PageNumber")
	v.SetDefault("source.detail_pattern", `/attorney/Licensee/Detail/(\d+)`)
	v.SetDefault("source.user_agent", "PreIntake.ai Scraper (+https://preintake.ai)")
	v.SetDefault("source.state", "CA")
	v.SetDefault("crawl.max_records", 500)
	v.SetDefault("crawl.page_delay_seconds", 8)
	v.SetDefault("crawl.record_delay_seconds", 5)
	v.SetDefault("crawl.error_threshold", 0.10)
	v.SetDefault("crawl.max_failed_attempts", 3)
	v.SetDefault("crawl.batch_size", 500)
	v.SetDefault("crawl.name_policy", "first_last")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_throttled_ms", 15000)
	v.SetDefault("http.backoff_network_ms", 5000)
	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.record_table", "harvested_records")
	v.SetDefault("db.progress_table", "crawl_progress")
	v.SetDefault("notify.provider", "log")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.SearchURL == "" {
		return fmt.Errorf("source.search_url is required")
	}
	if c.Source.DetailURLPrefix == "" {
		return fmt.Errorf("source.detail_url_prefix is required")
	}
	if c.Crawl.MaxRecords <= 0 {
		return fmt.Errorf("crawl.max_records must be > 0")
	}
	if c.Crawl.ErrorThreshold <= 0 || c.Crawl.ErrorThreshold >= 1 {
		return fmt.Errorf("crawl.error_threshold must be in (0, 1)")
	}
	if c.Crawl.MaxFailedAttempts <= 0 {
		return fmt.Errorf("crawl.max_failed_attempts must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	switch c.Crawl.NamePolicy {
	case "first_last", "full":
	default:
		return fmt.Errorf("crawl.name_policy must be first_last or full")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.provider is postgres")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.TopicID == "") {
		return fmt.Errorf("notify.project_id and notify.topic_id are required when notify.provider is pubsub")
	}
	if len(c.WorkUnits) == 0 {
		return fmt.Errorf("work_units must not be empty")
	}
	seen := make(map[int]struct{}, len(c.WorkUnits))
	for _, u := range c.WorkUnits {
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("work_units contains duplicate id %d", u.ID)
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
