package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"svdtools/internal/interrupts"
)

// Config holds the defaults every subcommand starts from. Command-line flags
// override them.
type Config struct {
	// Root confines document and include reads. Empty leaves them
	// unconfined, relative to the working directory.
	Root    string
	Gaps    bool
	Strict  bool
	Format  interrupts.Format
	Workers int
	Verbose bool
	Cache   CacheConfig
}

type CacheConfig struct {
	// Enabled turns on the persistent tiers; the in-process LRU is always used.
	Enabled       bool
	Dir           string
	TTL           time.Duration
	MaxEntries    int
	MaxBytes      int64
	MemoryEntries int
	S3            S3Config
}

type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Load reads .env (if present) and the SVDTOOLS_* environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Root:    env("SVDTOOLS_ROOT"),
		Gaps:    boolEnv("SVDTOOLS_GAPS", true),
		Strict:  boolEnv("SVDTOOLS_STRICT", false),
		Format:  interrupts.FormatText,
		Verbose: boolEnv("SVDTOOLS_VERBOSE", false),
	}
	if raw := env("SVDTOOLS_FORMAT"); raw != "" {
		if err := cfg.Format.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("SVDTOOLS_FORMAT: %w", err)
		}
	}
	if raw := env("SVDTOOLS_WORKERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("SVDTOOLS_WORKERS: invalid worker count %q", raw)
		}
		cfg.Workers = n
	}
	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}
	cfg.Cache = cache
	return cfg, nil
}

func loadCacheConfig() (CacheConfig, error) {
	dir := env("SVDTOOLS_CACHE_DIR")
	cfg := CacheConfig{
		Enabled:       boolEnv("SVDTOOLS_CACHE", dir != ""),
		Dir:           firstNonEmpty(dir, defaultCacheDir()),
		TTL:           7 * 24 * time.Hour,
		MaxEntries:    256,
		MaxBytes:      512 << 20,
		MemoryEntries: 128,
		S3:            loadS3Config(),
	}
	if raw := env("SVDTOOLS_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("SVDTOOLS_CACHE_TTL: %w", err)
		}
		cfg.TTL = ttl
	}
	if raw := env("SVDTOOLS_CACHE_MAX_ENTRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return CacheConfig{}, fmt.Errorf("SVDTOOLS_CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.MaxEntries = n
	}
	return cfg, nil
}

func loadS3Config() S3Config {
	endpoint := env("SVDTOOLS_CACHE_S3_ENDPOINT")
	return S3Config{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(env("SVDTOOLS_CACHE_S3_REGION"), env("AWS_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(env("SVDTOOLS_CACHE_S3_ACCESS_KEY"), env("AWS_ACCESS_KEY_ID")),
		SecretKey: firstNonEmpty(env("SVDTOOLS_CACHE_S3_SECRET_KEY"), env("AWS_SECRET_ACCESS_KEY")),
		Bucket:    firstNonEmpty(env("SVDTOOLS_CACHE_S3_BUCKET"), "svdtools-cache"),
		Prefix:    firstNonEmpty(env("SVDTOOLS_CACHE_S3_PREFIX"), "devices"),
		UseSSL:    boolEnv("SVDTOOLS_CACHE_S3_USE_SSL", true),
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "svdtools")
	}
	return filepath.Join(os.TempDir(), "svdtools-cache")
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// boolEnv accepts strconv.ParseBool spellings plus on/off and yes/no;
// anything else yields def.
func boolEnv(key string, def bool) bool {
	raw := strings.ToLower(env(key))
	switch raw {
	case "":
		return def
	case "on", "yes":
		return true
	case "off", "no":
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
