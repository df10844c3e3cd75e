package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docsight/docpipe"
	"github.com/hazyhaar/docsight/recognize"
	"github.com/hazyhaar/docsight/shield"
)

// Config is the docsight server configuration. Values come from an optional
// YAML file and are then overridden by any environment variable that is set.
type Config struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	DefaultLanguage string   `yaml:"default_language"`
	MaxFileSize     int64    `yaml:"max_file_size"`
	MaxPixels       int      `yaml:"max_pixels"`
	TessdataPrefix  string   `yaml:"tessdata_prefix"`
	LogLevel        string   `yaml:"log_level"`
	Preset          string   `yaml:"preset"`
	Workers         int      `yaml:"workers"`
	MaxConns        int      `yaml:"max_conns"`
	FileRoot        string   `yaml:"file_root"`
	DefaultEngine   string   `yaml:"default_engine"`
	Languages       []string `yaml:"languages"`

	// ObsDB is the SQLite path for metrics and the run log; empty disables both.
	ObsDB         string `yaml:"obs_db"`
	RetentionDays int    `yaml:"retention_days"`

	// APIKeyHash is a bcrypt hash of the API key; empty disables auth.
	APIKeyHash string                 `yaml:"api_key_hash"`
	RateLimit  shield.RateLimitConfig `yaml:"rate_limit"`

	RemoteEngines []recognize.RemoteConfig `yaml:"remote_engines"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadConfig reads path (if non-empty), applies the environment and fills
// defaults.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("OCR_HOST", &c.Host)
	str("OCR_DEFAULT_LANGUAGE", &c.DefaultLanguage)
	str("TESSDATA_PREFIX", &c.TessdataPrefix)
	str("LOG_LEVEL", &c.LogLevel)
	str("OCR_PRESET", &c.Preset)
	str("OCR_FILE_ROOT", &c.FileRoot)
	str("OCR_DEFAULT_ENGINE", &c.DefaultEngine)
	str("OBS_DB", &c.ObsDB)
	str("OCR_API_KEY_HASH", &c.APIKeyHash)

	for key, dst := range map[string]*int{
		"OCR_PORT":           &c.Port,
		"OCR_WORKERS":        &c.Workers,
		"OCR_MAX_PIXELS":     &c.MaxPixels,
		"OCR_MAX_CONNS":      &c.MaxConns,
		"OCR_RATE_LIMIT":     &c.RateLimit.MaxRequests,
		"OCR_RATE_WINDOW":    &c.RateLimit.WindowSeconds,
		"OBS_RETENTION_DAYS": &c.RetentionDays,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("OCR_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OCR_MAX_FILE_SIZE: %w", err)
		}
		c.MaxFileSize = n
	}
	if v := os.Getenv("OCR_REMOTE_ENGINES"); v != "" {
		remotes, err := parseRemoteEngines(v)
		if err != nil {
			return err
		}
		c.RemoteEngines = remotes
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port <= 0 {
		c.Port = 9292
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "eng"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = docpipe.DefaultMaxFileSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Preset == "" {
		c.Preset = "default"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.RateLimit.MaxRequests > 0 && c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{c.DefaultLanguage}
	}
}

// parseRemoteEngines parses "name=url,name=url".
func parseRemoteEngines(s string) ([]recognize.RemoteConfig, error) {
	var out []recognize.RemoteConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("OCR_REMOTE_ENGINES: malformed entry %q, want name=url", part)
		}
		out = append(out, recognize.RemoteConfig{Name: name, URL: url})
	}
	return out, nil
}

// parseLanguages splits "eng+fra" or "eng,fra" into codes.
func parseLanguages(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
}
