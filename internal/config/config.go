// Package config loads service configuration from an optional YAML file,
// a .env file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	pagepick "github.com/anatolykoptev/go-pagepick"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// CacheConfig selects the classification cache backend.
type CacheConfig struct {
	Backend    string        `yaml:"backend"` // "memory"|"redis"|"sqlite"|"none"
	RedisURL   string        `yaml:"redisURL"`
	SQLitePath string        `yaml:"sqlitePath"`
	Namespace  string        `yaml:"namespace"`
	TTL        time.Duration `yaml:"ttl"`
}

// VisionConfig configures the external content classifier.
type VisionConfig struct {
	Provider     string        `yaml:"provider"` // "anthropic"|"none"
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"baseURL"`
	MaxTokens    int           `yaml:"maxTokens"`
	Concurrency  int           `yaml:"concurrency"`
	Timeout      time.Duration `yaml:"timeout"`
	InlineImages bool          `yaml:"inlineImages"`
}

// SelectionConfig holds defaults applied to requests that leave options unset.
type SelectionConfig struct {
	MinImageWidth     int                    `yaml:"minImageWidth"`
	MinImageHeight    int                    `yaml:"minImageHeight"`
	ProbeImages       bool                   `yaml:"probeImages"`
	MinDiversityScore float64                `yaml:"minDiversityScore"`
	MaxGroupSize      int                    `yaml:"maxGroupSize"`
	Weights           pagepick.WeightFactors `yaml:"weights"`
	BatchTimeout      time.Duration          `yaml:"batchTimeout"`
}

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Vision    VisionConfig    `yaml:"vision"`
	Selection SelectionConfig `yaml:"selection"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Pretty:     devDefaultPretty(),
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			RedisURL:   "redis://localhost:6379",
			SQLitePath: "data/pagepick-cache.db",
			Namespace:  "pagepick",
			TTL:        24 * time.Hour,
		},
		Vision: VisionConfig{
			Provider:    "anthropic",
			Concurrency: 5,
			Timeout:     20 * time.Second,
		},
		Selection: SelectionConfig{
			MinImageWidth:     pagepick.DefaultMinImageWidth,
			MinImageHeight:    pagepick.DefaultMinImageHeight,
			MinDiversityScore: pagepick.DefaultMinDiversityScore,
			MaxGroupSize:      pagepick.DefaultMaxGroupSize,
			Weights:           pagepick.DefaultWeights,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the .env file in the working directory and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from PAGEPICK_* variables and ANTHROPIC_API_KEY.
func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("PAGEPICK_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("PAGEPICK_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	c.Server.ShutdownTimeout = parseDuration(os.Getenv("PAGEPICK_SHUTDOWN_TIMEOUT"), c.Server.ShutdownTimeout)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		c.Logging.Pretty = parseBool(v)
	}
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
	c.Logging.MaxSizeMB = parseInt(os.Getenv("LOG_MAX_SIZE_MB"), c.Logging.MaxSizeMB)
	c.Logging.MaxBackups = parseInt(os.Getenv("LOG_MAX_BACKUPS"), c.Logging.MaxBackups)
	c.Logging.MaxAgeDays = parseInt(os.Getenv("LOG_MAX_AGE_DAYS"), c.Logging.MaxAgeDays)

	c.Cache.Backend = getEnv("PAGEPICK_CACHE", c.Cache.Backend)
	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)
	c.Cache.SQLitePath = getEnv("PAGEPICK_SQLITE_PATH", c.Cache.SQLitePath)
	c.Cache.TTL = parseDuration(os.Getenv("PAGEPICK_CACHE_TTL"), c.Cache.TTL)

	c.Vision.Provider = getEnv("PAGEPICK_VISION", c.Vision.Provider)
	c.Vision.APIKey = getEnv("ANTHROPIC_API_KEY", c.Vision.APIKey)
	c.Vision.Model = getEnv("ANTHROPIC_MODEL", c.Vision.Model)
	c.Vision.BaseURL = getEnv("ANTHROPIC_BASE_URL", c.Vision.BaseURL)
	c.Vision.Concurrency = parseInt(os.Getenv("PAGEPICK_CLASSIFY_CONCURRENCY"), c.Vision.Concurrency)
	c.Vision.Timeout = parseDuration(os.Getenv("PAGEPICK_CLASSIFY_TIMEOUT"), c.Vision.Timeout)
	if v := os.Getenv("PAGEPICK_INLINE_IMAGES"); v != "" {
		c.Vision.InlineImages = parseBool(v)
	}

	if v := os.Getenv("PAGEPICK_PROBE_IMAGES"); v != "" {
		c.Selection.ProbeImages = parseBool(v)
	}
	c.Selection.MinDiversityScore = parseFloat(os.Getenv("PAGEPICK_MIN_DIVERSITY"), c.Selection.MinDiversityScore)
	c.Selection.MaxGroupSize = parseInt(os.Getenv("PAGEPICK_MAX_GROUP_SIZE"), c.Selection.MaxGroupSize)
	c.Selection.BatchTimeout = parseDuration(os.Getenv("PAGEPICK_BATCH_TIMEOUT"), c.Selection.BatchTimeout)
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis", "sqlite", "none":
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}
	switch c.Vision.Provider {
	case "anthropic", "none":
	default:
		return fmt.Errorf("vision.provider: unknown provider %q", c.Vision.Provider)
	}
	if c.Selection.MinDiversityScore < 0 || c.Selection.MinDiversityScore > 1 {
		return fmt.Errorf("selection.minDiversityScore: must be in [0,1], got %v", c.Selection.MinDiversityScore)
	}
	if c.Selection.MaxGroupSize < 1 {
		return fmt.Errorf("selection.maxGroupSize: must be positive, got %d", c.Selection.MaxGroupSize)
	}
	if _, err := c.Selection.Weights.Normalize(); err != nil {
		return fmt.Errorf("selection.weights: %w", err)
	}
	return nil
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "dev" || env == "development" || env == "local"
}

// Options converts the selection defaults into request-level pagepick options.
func (s SelectionConfig) Options() pagepick.Options {
	minDiv := s.MinDiversityScore
	return pagepick.Options{
		WeightFactors:     s.Weights,
		MinDiversityScore: &minDiv,
		MaxGroupSize:      s.MaxGroupSize,
		BatchTimeout:      s.BatchTimeout,
	}
}
