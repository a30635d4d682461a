// Package config handles loading and resolving coinwatch configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json in the current working directory
//  3. .env in the current working directory
//  4. process environment
//  5. CLI flags (applied by the caller after Load)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile = "config.json"
	DefaultEnvFile    = ".env"
	DefaultFormat     = "table"
	DefaultTimeout    = 10 * time.Second
	DefaultRate       = 0.5
	DefaultLimit      = 20
	DefaultBaseURL    = "https://api.coingecko.com/api/v3/"
	DefaultBackend    = BackendBolt
	DefaultRedisAddr  = "127.0.0.1:6379"
	DefaultRedisTTL   = 24 * time.Hour
	DefaultListenAddr = "127.0.0.1:8080"

	EnvAPIKey       = "COINGECKO_API_KEY"
	EnvDBPath       = "COINWATCH_DB_PATH"
	EnvRedisAddr    = "COINWATCH_REDIS_ADDR"
	EnvCacheBackend = "COINWATCH_CACHE_BACKEND"
)

// Cache backends.
const (
	BackendBolt  = "bolt"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// File is the on-disk representation of config.json.
type File struct {
	APIKey        string  `json:"api_key"`
	DefaultFormat string  `json:"default_format"`
	Timeout       string  `json:"timeout"`
	Rate          float64 `json:"rate"`
	Limit         int     `json:"limit"`
	BaseURL       string  `json:"base_url"`
	DBPath        string  `json:"db_path"`
	CacheBackend  string  `json:"cache_backend"`
	RedisAddr     string  `json:"redis_addr"`
	RedisPassword string  `json:"redis_password,omitempty"`
	RedisDB       int     `json:"redis_db"`
	RedisTTL      string  `json:"redis_ttl"`
	ListenAddr    string  `json:"listen_addr"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	APIKey        string
	Format        string
	Timeout       time.Duration
	Rate          float64
	Limit         int
	BaseURL       string
	DBPath        string
	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	ListenAddr    string
	ConfigPath    string // path of the config.json that was loaded (empty if none found)
	EnvPath       string // path of the .env that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache   bool
	Refresh   bool
	Quiet     bool
	Verbose   bool
	Debug     bool
	LogFormat string
}

// Load resolves configuration from all sources.
// flagAPIKey is the value of --api-key (empty string if not set).
func Load(flagAPIKey string) (*Config, error) {
	cfg := &Config{
		Format:       DefaultFormat,
		Timeout:      DefaultTimeout,
		Rate:         DefaultRate,
		Limit:        DefaultLimit,
		BaseURL:      DefaultBaseURL,
		CacheBackend: DefaultBackend,
		RedisAddr:    DefaultRedisAddr,
		RedisTTL:     DefaultRedisTTL,
		ListenAddr:   DefaultListenAddr,
	}

	// Layer 2: config.json
	f, path, err := loadFile()
	if err != nil {
		return nil, err
	}
	if f != nil {
		applyFile(cfg, f, path)
	}

	// Layer 3: .env
	if env, err := godotenv.Read(DefaultEnvFile); err == nil {
		if abs, err := filepath.Abs(DefaultEnvFile); err == nil {
			cfg.EnvPath = abs
		}
		applyEnv(cfg, func(k string) string { return env[k] })
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", DefaultEnvFile, err)
	}

	// Layer 4: environment
	applyEnv(cfg, os.Getenv)

	// Layer 5: CLI flag
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".coinwatch", "coinwatch.db")
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects values no component can run with. A missing API key is
// allowed: the public tier works without one.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case BackendBolt, BackendRedis, BackendNone:
	default:
		return fmt.Errorf("unknown cache_backend %q (want bolt, redis or none)", c.CacheBackend)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must not be negative, got %g", c.Rate)
	}
	return nil
}

// RedactedAPIKey returns the API key with most characters replaced by asterisks.
// Safe for logging and display.
func (c *Config) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return c.APIKey[:2] + "****" + c.APIKey[len(c.APIKey)-2:]
}

// loadFile reads config.json from the current working directory.
// A missing file is not an error: (nil, "", nil) is returned.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	f, err := ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// ReadFile parses a config.json.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.APIKey != "" {
		cfg.APIKey = f.APIKey
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.Limit > 0 {
		cfg.Limit = f.Limit
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.CacheBackend != "" {
		cfg.CacheBackend = f.CacheBackend
	}
	if f.RedisAddr != "" {
		cfg.RedisAddr = f.RedisAddr
	}
	if f.RedisPassword != "" {
		cfg.RedisPassword = f.RedisPassword
	}
	if f.RedisDB > 0 {
		cfg.RedisDB = f.RedisDB
	}
	if f.RedisTTL != "" {
		if d, err := time.ParseDuration(f.RedisTTL); err == nil {
			cfg.RedisTTL = d
		}
	}
	if f.ListenAddr != "" {
		cfg.ListenAddr = f.ListenAddr
	}
}

// applyEnv copies the recognised variables from getenv into cfg.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := getenv(EnvCacheBackend); v != "" {
		cfg.CacheBackend = strings.ToLower(v)
	}
}

// Keys lists the names accepted by Set.
var Keys = []string{
	"api_key", "default_format", "timeout", "rate", "limit", "base_url", "db_path",
	"cache_backend", "redis_addr", "redis_password", "redis_db", "redis_ttl", "listen_addr",
}

// Set assigns one config.json field by name, validating its value.
func Set(f *File, key, val string) error {
	switch strings.ToLower(key) {
	case "api_key":
		f.APIKey = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("timeout must be a duration such as 10s: %w", err)
		}
		f.Timeout = val
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("rate must be a number")
		}
		f.Rate = r
	case "limit":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = n
	case "base_url":
		f.BaseURL = val
	case "db_path":
		f.DBPath = val
	case "cache_backend":
		switch val {
		case BackendBolt, BackendRedis, BackendNone:
			f.CacheBackend = val
		default:
			return fmt.Errorf("cache_backend must be bolt, redis or none")
		}
	case "redis_addr":
		f.RedisAddr = val
	case "redis_password":
		f.RedisPassword = val
	case "redis_db":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return fmt.Errorf("redis_db must be a non-negative integer")
		}
		f.RedisDB = n
	case "redis_ttl":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("redis_ttl must be a duration such as 24h: %w", err)
		}
		f.RedisTTL = val
	case "listen_addr":
		f.ListenAddr = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `coinwatch config init`.
func Template() File {
	return File{
		DefaultFormat: DefaultFormat,
		Timeout:       DefaultTimeout.String(),
		Rate:          DefaultRate,
		Limit:         DefaultLimit,
		BaseURL:       DefaultBaseURL,
		CacheBackend:  DefaultBackend,
		RedisAddr:     DefaultRedisAddr,
		RedisTTL:      DefaultRedisTTL.String(),
		ListenAddr:    DefaultListenAddr,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
