package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Server struct {
	Port              string `json:"port" toml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" toml:"request_timeout_sec"`
	LogLevel          string `json:"log_level" toml:"log_level"`
	LogPretty         bool   `json:"log_pretty" toml:"log_pretty"`
}

type Database struct {
	URL          string `json:"url" toml:"url"`
	MaxOpenConns int    `json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" toml:"max_idle_conns"`
}

type HGBrasil struct {
	APIKey                string `json:"api_key" toml:"api_key"`
	Endpoint              string `json:"endpoint" toml:"endpoint"`
	TimeoutSec            int    `json:"timeout_sec" toml:"timeout_sec"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" toml:"max_requests_per_minute"`
	Burst                 int    `json:"burst" toml:"burst"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" toml:"min_request_interval_sec"`
}

type Cache struct {
	TTLSeconds int `json:"ttl_sec" toml:"ttl_sec"`
	BatchSize  int `json:"batch_size" toml:"batch_size"`
}

type Config struct {
	Server   Server   `json:"server" toml:"server"`
	Database Database `json:"database" toml:"database"`
	HGBrasil HGBrasil `json:"hgbrasil" toml:"hgbrasil"`
	Cache    Cache    `json:"cache" toml:"cache"`
	// Assets maps a category name to its asset codes, in export order.
	Assets map[string][]string `json:"assets" toml:"assets"`
}

func Default() Config {
	return Config{
		Server:   Server{Port: "3000", RequestTimeoutSec: 60, LogLevel: "info"},
		Database: Database{MaxOpenConns: 10, MaxIdleConns: 5},
		HGBrasil: HGBrasil{
			Endpoint:   "https://api.hgbrasil.com/finance/stock_price",
			TimeoutSec: 10,
			Burst:      1,
		},
		Cache: Cache{TTLSeconds: 432000, BatchSize: 5},
		Assets: map[string][]string{
			"stocks": {"ITUB3", "SANB11", "WEGE3"},
			"fiis":   {"HGLG11", "VISC11", "KNRI11"},
			"fiagro": {"FIA1", "FIA2", "FIA3"},
		},
	}
}

// Load builds the configuration: defaults, then the config file, then the
// environment (a .env file in the working directory included).
//
// path may be empty: CONFIG_FILE is used, else config.json or config.toml
// when present. Files ending in .toml are TOML, anything else JSON. A file
// that lists assets replaces the default categories entirely.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		for _, p := range []string{"config.json", "config.toml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	defaults := cfg.Assets
	cfg.Assets = nil
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(b, cfg)
	} else {
		err = json.Unmarshal(b, cfg)
	}
	if cfg.Assets == nil {
		cfg.Assets = defaults
	}
	return err
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.RequestTimeoutSec = getEnvAsInt("REQUEST_TIMEOUT_SEC", cfg.Server.RequestTimeoutSec)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.LogPretty = getEnvAsBool("LOG_PRETTY", cfg.Server.LogPretty)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvAsInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvAsInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.HGBrasil.APIKey = getEnv("HG_API_KEY", cfg.HGBrasil.APIKey)
	cfg.HGBrasil.Endpoint = getEnv("HG_ENDPOINT", cfg.HGBrasil.Endpoint)
	cfg.HGBrasil.TimeoutSec = getEnvAsInt("HG_TIMEOUT_SEC", cfg.HGBrasil.TimeoutSec)
	cfg.HGBrasil.MaxRequestsPerMinute = getEnvAsInt("HG_MAX_RPM", cfg.HGBrasil.MaxRequestsPerMinute)
	cfg.HGBrasil.Burst = getEnvAsInt("HG_BURST", cfg.HGBrasil.Burst)
	cfg.HGBrasil.MinRequestIntervalSec = getEnvAsInt("HG_MIN_INTERVAL_SEC", cfg.HGBrasil.MinRequestIntervalSec)

	cfg.Cache.TTLSeconds = getEnvAsInt("CACHE_TTL_SEC", cfg.Cache.TTLSeconds)
	cfg.Cache.BatchSize = getEnvAsInt("BATCH_SIZE", cfg.Cache.BatchSize)

	// ASSETS_FIIS=HGLG11,VISC11 sets category "fiis"; an empty value removes it.
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "ASSETS_") || len(k) == len("ASSETS_") {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(k, "ASSETS_"))
		codes := SplitCSV(v)
		if cfg.Assets == nil {
			cfg.Assets = map[string][]string{}
		}
		if len(codes) == 0 {
			delete(cfg.Assets, name)
			continue
		}
		cfg.Assets[name] = codes
	}
}

var categoryName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// reserved route segments a category cannot shadow
var reserved = map[string]bool{"export": true, "ping": true, "healthz": true}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.HGBrasil.APIKey) == "" {
		errs = append(errs, errors.New("HG_API_KEY is required"))
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Server.Port))
	}
	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %d", c.Cache.TTLSeconds))
	}
	if c.Cache.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.Cache.BatchSize))
	}
	for _, name := range c.Categories() {
		switch {
		case !categoryName.MatchString(name):
			errs = append(errs, fmt.Errorf("invalid category name %q", name))
		case reserved[name]:
			errs = append(errs, fmt.Errorf("category name %q collides with a route", name))
		}
	}
	return errors.Join(errs...)
}

// Categories returns the configured category names, sorted.
func (c Config) Categories() []string {
	names := make([]string, 0, len(c.Assets))
	for name := range c.Assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLSeconds) * time.Second }

func (h HGBrasil) Timeout() time.Duration { return time.Duration(h.TimeoutSec) * time.Second }

func (h HGBrasil) MinInterval() time.Duration {
	return time.Duration(h.MinRequestIntervalSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
