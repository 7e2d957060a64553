package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// OverlayEnv names the optional YAML file layered over the embedded defaults.
const OverlayEnv = "ATTENDANCE_CONFIG"

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`
}

type DatabaseConfig struct {
	URL           string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns  int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns  int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
	HNSWIndexPath string `yaml:"hnsw_index_path"`
}

type EmbeddingConfig struct {
	URL          string `yaml:"url"` // defaults to http://localhost:8000
	Dim          int    `yaml:"dim"` // defaults to 512
	MaxImageSide int    `yaml:"max_image_side"`
}

// AttendanceConfig holds the daily window and matching parameters.
type AttendanceConfig struct {
	Timezone        string        `yaml:"timezone"`
	Start           string        `yaml:"start"` // HH:MM
	End             string        `yaml:"end"`   // HH:MM
	MatchThreshold  float64       `yaml:"match_threshold"`
	AmbiguityMargin float64       `yaml:"ambiguity_margin"`
	LedgerTimeout   time.Duration `yaml:"ledger_timeout"`
	SweepDelay      time.Duration `yaml:"sweep_delay"`
}

// Location resolves the configured IANA timezone.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type WebConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	AdminPIN      string        `yaml:"admin_pin"` // empty disables admin login
	// AllowedOrigins receive CORS headers; localhost is always allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // dev or prod
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from the embedded defaults, the optional
// ATTENDANCE_CONFIG overlay file and finally environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	if path := os.Getenv(OverlayEnv); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("read config overlay: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config overlay %s: %w", path, err)
		}
	}

	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.HNSWIndexPath = envString("HNSW_INDEX_PATH", cfg.Database.HNSWIndexPath)

	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Dim = envInt("EMBEDDING_DIM", cfg.Embedding.Dim)
	cfg.Embedding.MaxImageSide = envInt("EMBEDDING_MAX_IMAGE_SIDE", cfg.Embedding.MaxImageSide)

	cfg.Attendance.Timezone = envString("TIMEZONE", cfg.Attendance.Timezone)
	cfg.Attendance.Start = envString("ATTEND_START", cfg.Attendance.Start)
	cfg.Attendance.End = envString("ATTEND_END", cfg.Attendance.End)
	cfg.Attendance.MatchThreshold = envFloat("MATCH_THRESHOLD", cfg.Attendance.MatchThreshold)
	cfg.Attendance.AmbiguityMargin = envFloat("MATCH_AMBIGUITY_MARGIN", cfg.Attendance.AmbiguityMargin)
	cfg.Attendance.LedgerTimeout = envDuration("LEDGER_TIMEOUT", cfg.Attendance.LedgerTimeout)
	cfg.Attendance.SweepDelay = envDuration("SWEEP_DELAY", cfg.Attendance.SweepDelay)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.SessionSecret = envString("WEB_SESSION_SECRET", cfg.Web.SessionSecret)
	cfg.Web.SessionTTL = envDuration("WEB_SESSION_TTL", cfg.Web.SessionTTL)
	cfg.Web.AdminPIN = envString("ADMIN_PIN", cfg.Web.AdminPIN)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	cfg.Log.Mode = envString("LOG_MODE", cfg.Log.Mode)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at first use.
func (c *Config) Validate() error {
	if _, err := c.Attendance.Location(); err != nil {
		return err
	}
	if c.Attendance.MatchThreshold <= 0 || c.Attendance.MatchThreshold > 2 {
		return fmt.Errorf("match threshold %v out of range (0, 2]", c.Attendance.MatchThreshold)
	}
	if c.Embedding.Dim <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	if c.Attendance.LedgerTimeout <= 0 {
		return errors.New("ledger timeout must be positive")
	}
	return nil
}
