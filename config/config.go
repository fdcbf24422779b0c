// backend/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gewnthar/covid19/backend/models"
)

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// SourcesConfig holds the remote endpoints of the three JHU CSSE series and
// the commit history used for the "last updated" timestamp.
type SourcesConfig struct {
	ConfirmedCSV string `yaml:"confirmed_csv"`
	DeathsCSV    string `yaml:"deaths_csv"`
	RecoveredCSV string `yaml:"recovered_csv"`
	CommitsAPI   string `yaml:"commits_api"`
}

// CSV returns the configured URL for the given metric.
func (s SourcesConfig) CSV(m models.Metric) string {
	switch m {
	case models.MetricConfirmed:
		return s.ConfirmedCSV
	case models.MetricDeaths:
		return s.DeathsCSV
	case models.MetricRecovered:
		return s.RecoveredCSV
	}
	return ""
}

type FetchConfig struct {
	TimeoutStr string        `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"-"`
}

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
)

type CacheConfig struct {
	// Backend is "memory" (default) or "mysql".
	Backend string        `yaml:"backend"`
	TTLStr  string        `yaml:"ttl"`
	TTL     time.Duration `yaml:"-"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sources  SourcesConfig  `yaml:"sources"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Cache    CacheConfig    `yaml:"cache"`
}

const (
	jhuSeriesBase = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/"

	DefaultPort         = "8080"
	DefaultFetchTimeout = 30 * time.Second
	DefaultCacheTTL     = 360 * time.Second
	DefaultUserAgent    = "covid19-backend/1.0"
	DefaultCommitsAPI   = "https://api.github.com/repos/CSSEGISandData/COVID-19/commits"
)

// Defaults returns a Config pointing at the public JHU CSSE repository.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort},
		Database: DatabaseConfig{
			Host:   "localhost",
			Port:   "3306",
			DBName: "covid19",
		},
		Sources: SourcesConfig{
			ConfirmedCSV: jhuSeriesBase + "time_series_covid19_confirmed_global.csv",
			DeathsCSV:    jhuSeriesBase + "time_series_covid19_deaths_global.csv",
			RecoveredCSV: jhuSeriesBase + "time_series_covid19_recovered_global.csv",
			CommitsAPI:   DefaultCommitsAPI,
		},
		Fetch: FetchConfig{
			UserAgent: DefaultUserAgent,
			Timeout:   DefaultFetchTimeout,
		},
		Cache: CacheConfig{
			Backend: BackendMemory,
			TTL:     DefaultCacheTTL,
		},
	}
}

// LoadConfig reads the YAML file at configPath (optional: an empty path or a
// missing file means "defaults only"), then applies .env and environment
// overrides, parses durations and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	applyEnv(cfg, os.LookupEnv)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("SERVER_PORT", &cfg.Server.Port)
	set("CACHE_BACKEND", &cfg.Cache.Backend)
	set("CACHE_TTL", &cfg.Cache.TTLStr)
	set("FETCH_TIMEOUT", &cfg.Fetch.TimeoutStr)
	set("DB_HOST", &cfg.Database.Host)
	set("DB_PORT", &cfg.Database.Port)
	set("DB_USER", &cfg.Database.User)
	set("DB_PASSWORD", &cfg.Database.Password)
	set("DB_NAME", &cfg.Database.DBName)
}

// parseDurations accepts Go durations ("6m") or a bare number of seconds ("360").
func parseDurations(cfg *Config) error {
	if cfg.Fetch.TimeoutStr != "" {
		d, err := parseDuration(cfg.Fetch.TimeoutStr)
		if err != nil {
			return fmt.Errorf("failed to parse fetch timeout: %w", err)
		}
		cfg.Fetch.Timeout = d
	}
	if cfg.Cache.TTLStr != "" {
		d, err := parseDuration(cfg.Cache.TTLStr)
		if err != nil {
			return fmt.Errorf("failed to parse cache ttl: %w", err)
		}
		cfg.Cache.TTL = d
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var result *multierror.Error

	if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}
	for _, m := range models.Metrics {
		if err := checkURL(c.Sources.CSV(m)); err != nil {
			result = multierror.Append(result, fmt.Errorf("sources.%s_csv: %w", m, err))
		}
	}
	if err := checkURL(c.Sources.CommitsAPI); err != nil {
		result = multierror.Append(result, fmt.Errorf("sources.commits_api: %w", err))
	}
	if c.Fetch.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("fetch.timeout must be positive"))
	}
	if c.Cache.TTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache.ttl must be positive"))
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendMySQL:
		if c.Database.DBName == "" {
			result = multierror.Append(result, fmt.Errorf("database.dbname is required for the mysql cache backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("cache.backend %q unknown: want memory|mysql", c.Cache.Backend))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	return nil
}
