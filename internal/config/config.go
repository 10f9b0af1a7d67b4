package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	SourceDB    = "db"
	SourceLocal = "local"
	SourceS3    = "s3"
)

type Config struct {
	Port      int              `json:"port"`
	Database  DatabaseConfig   `json:"database"`
	LogConfig logger.LogConfig `json:"log_config"`
	Source    SourceConfig     `json:"source"`
	AI        AIConfig         `json:"ai"`
	Pipeline  PipelineConfig   `json:"pipeline"`
	Schedule  ScheduleConfig   `json:"schedule"`
}

type DatabaseConfig struct {
	DSN          string `json:"dsn"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"dbname"`
	SSLMode      string `json:"sslmode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslmode)
}

// SourceConfig selects where document text is read from. Data is passed to the
// file store factory for local and s3.
type SourceConfig struct {
	Type     string      `json:"type"`
	MaxBytes int64       `json:"max_bytes"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Providers []AIProviderConfig `json:"providers"`
}

type AIProviderConfig struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	TimeoutMs int         `json:"timeout_ms"`
	MaxTokens int         `json:"max_tokens"`
	Data      interface{} `json:"data"`
}

// PipelineConfig tunes generation. ResponseCacheHours > 0 keeps accepted
// provider replies in the database for that long.
type PipelineConfig struct {
	ContextLimit       int   `json:"context_limit"`
	CacheSize          int   `json:"cache_size"`
	CacheTTLSeconds    int   `json:"cache_ttl_seconds"`
	GuidanceMinHits    int   `json:"guidance_min_hits"`
	ResponseCacheHours int   `json:"response_cache_hours"`
	RateWindowMs       int64 `json:"rate_window_ms"`
}

// ScheduleConfig holds cron specs for background jobs. An empty spec disables
// the job.
type ScheduleConfig struct {
	PrefetchSpec          string `json:"prefetch_spec"`
	PrefetchBatch         int    `json:"prefetch_batch"`
	PrefetchDelaySeconds  int64  `json:"prefetch_delay_seconds"`
	CleanupSpec           string `json:"cleanup_spec"`
	ArtifactRetentionDays int    `json:"artifact_retention_days"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${NAME} references with the environment value. Unset
// variables become empty strings; a bare $ is left alone.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		value, _ := json.Marshal(os.Getenv(string(name)))
		// drop the quotes, the reference already sits inside a JSON string
		return value[1 : len(value)-1]
	})
}

// Load reads a JSON, YAML or TOML config file, picked by extension. YAML and
// TOML documents are converted to JSON before env references are expanded.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = toJSON(raw, yaml.Unmarshal)
	case ".toml":
		raw, err = toJSON(raw, toml.Unmarshal)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return Parse(raw)
}

func toJSON(raw []byte, unmarshal func([]byte, interface{}) error) ([]byte, error) {
	doc := map[string]interface{}{}
	if err := unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(ExpandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	cfg.Source.Type = strings.ToLower(strings.TrimSpace(cfg.Source.Type))
	if cfg.Source.Type == "" {
		cfg.Source.Type = SourceDB
	}
	switch cfg.Source.Type {
	case SourceDB, SourceLocal, SourceS3:
	default:
		return fmt.Errorf("source.type must be db, local or s3")
	}
	if cfg.Source.MaxBytes <= 0 {
		cfg.Source.MaxBytes = 4 << 20
	}
	for i, p := range cfg.AI.Providers {
		if strings.TrimSpace(p.Type) == "" {
			return fmt.Errorf("ai.providers[%d].type is required", i)
		}
		if p.TimeoutMs <= 0 {
			cfg.AI.Providers[i].TimeoutMs = 30000
		}
		if p.Data == nil {
			cfg.AI.Providers[i].Data = map[string]interface{}{}
		}
	}
	if cfg.Pipeline.ContextLimit <= 0 {
		cfg.Pipeline.ContextLimit = 6000
	}
	if cfg.Pipeline.CacheSize == 0 {
		cfg.Pipeline.CacheSize = 1000
	}
	if cfg.Pipeline.CacheTTLSeconds <= 0 {
		cfg.Pipeline.CacheTTLSeconds = 7200
	}
	if cfg.Pipeline.GuidanceMinHits == 0 {
		cfg.Pipeline.GuidanceMinHits = 1
	}
	if cfg.Schedule.PrefetchBatch <= 0 {
		cfg.Schedule.PrefetchBatch = 20
	}
	if cfg.Schedule.PrefetchDelaySeconds <= 0 {
		cfg.Schedule.PrefetchDelaySeconds = 300
	}
	if cfg.Schedule.ArtifactRetentionDays <= 0 {
		cfg.Schedule.ArtifactRetentionDays = 90
	}
	return nil
}
