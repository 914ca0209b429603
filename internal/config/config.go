// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double underscore:
// KOTAE_SYNTHESIS__API_KEY sets synthesis.api_key.
const EnvPrefix = "KOTAE_"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                  `yaml:"debug"`
	Server    ServerConfig          `yaml:"server"`
	Storage   StorageConfig         `yaml:"storage"`
	Cache     CacheConfig           `yaml:"cache"`
	Search    SearchConfig          `yaml:"search"`
	Ranking   ranking.ScoringConfig `yaml:"ranking"`
	Synthesis SynthesisConfig       `yaml:"synthesis"`
	Import    ImportConfig          `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	AdminToken  string   `yaml:"admin_token"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig holds paths for the content database and the native search index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// Cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	DatabasePath  string `yaml:"database_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	// RetentionDays is the age after which entries are evicted.
	RetentionDays int `yaml:"retention_days"`
	// EvictOnShutdown runs the retention sweep when the server stops.
	EvictOnShutdown *bool `yaml:"evict_on_shutdown"`
}

// EvictOnShutdownOrDefault defaults to true when unset.
func (c *CacheConfig) EvictOnShutdownOrDefault() bool {
	if c.EvictOnShutdown != nil {
		return *c.EvictOnShutdown
	}
	return true
}

// SearchConfig holds the settings that govern which content is searchable and
// how many candidates each stage handles.
type SearchConfig struct {
	EnabledTypes []string `yaml:"enabled_types"`
	FreeTypes    []string `yaml:"free_types"`
	// Premium unlocks every enabled type; otherwise only free types are permitted.
	Premium bool `yaml:"premium"`

	MaxResults     int `yaml:"max_results"`
	MinQueryLength int `yaml:"min_query_length"`
	MaxQueryLength int `yaml:"max_query_length"`

	CandidateLimit       int `yaml:"candidate_limit"`
	NativeLimit          int `yaml:"native_limit"`
	ContextBudget        int `yaml:"context_budget"`
	ContextWords         int `yaml:"context_words"`
	FallbackSources      int `yaml:"fallback_sources"`
	FallbackExcerptWords int `yaml:"fallback_excerpt_words"`

	// RequireSynthesis rejects questions upfront when no synthesizer is configured.
	RequireSynthesis *bool `yaml:"require_synthesis"`
}

// PermittedTypes returns the enabled types allowed by the current tier, in configured order.
func (s *SearchConfig) PermittedTypes() []string {
	if s.Premium {
		return append([]string(nil), s.EnabledTypes...)
	}
	free := make(map[string]bool, len(s.FreeTypes))
	for _, t := range s.FreeTypes {
		free[t] = true
	}
	var out []string
	for _, t := range s.EnabledTypes {
		if free[t] {
			out = append(out, t)
		}
	}
	return out
}

// RequireSynthesisOrDefault defaults to true when unset.
func (s *SearchConfig) RequireSynthesisOrDefault() bool {
	if s.RequireSynthesis != nil {
		return *s.RequireSynthesis
	}
	return true
}

// SynthesisConfig selects and tunes the answer synthesis provider.
type SynthesisConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Region         string  `yaml:"region"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Timeout returns the synthesis call bound.
func (s *SynthesisConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ImportConfig holds content import directory settings.
type ImportConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Workers     int      `yaml:"workers"`
	// DefaultType is assigned to imported documents that carry no type of their own.
	DefaultType string `yaml:"default_type"`
}

// RecursiveOrDefault returns whether to import recursively; defaults to true when unset.
func (w *ImportConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads the config file at path, overlays KOTAE_* environment variables,
// applies defaults, validates and expands paths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Cache.DatabasePath = expandPath(cfg.Cache.DatabasePath, configDir)
	for i := range cfg.Import.Directories {
		cfg.Import.Directories[i] = expandPath(cfg.Import.Directories[i], configDir)
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.MinQueryLength > c.Search.MaxQueryLength {
		errs = append(errs, fmt.Errorf("search.min_query_length (%d) exceeds max_query_length (%d)",
			c.Search.MinQueryLength, c.Search.MaxQueryLength))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("search.max_results must be positive"))
	}
	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendRedis, CacheBackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == CacheBackendRedis && c.Cache.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("cache.redis_addr is required for the redis backend"))
	}
	if c.Synthesis.Temperature < 0 || c.Synthesis.Temperature > 2 {
		errs = append(errs, fmt.Errorf("synthesis.temperature must be within [0, 2]"))
	}
	return errors.Join(errs...)
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
