package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svdtools/internal/interrupts"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SVDTOOLS_ROOT", "SVDTOOLS_GAPS", "SVDTOOLS_STRICT", "SVDTOOLS_FORMAT", "SVDTOOLS_WORKERS",
		"SVDTOOLS_VERBOSE", "SVDTOOLS_CACHE", "SVDTOOLS_CACHE_DIR", "SVDTOOLS_CACHE_TTL",
		"SVDTOOLS_CACHE_MAX_ENTRIES", "SVDTOOLS_CACHE_S3_ENDPOINT", "SVDTOOLS_CACHE_S3_ACCESS_KEY",
		"SVDTOOLS_CACHE_S3_SECRET_KEY", "SVDTOOLS_CACHE_S3_BUCKET", "SVDTOOLS_CACHE_S3_USE_SSL",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Root)
	assert.True(t, cfg.Gaps)
	assert.False(t, cfg.Strict)
	assert.Equal(t, interrupts.FormatText, cfg.Format)
	assert.Zero(t, cfg.Workers)
	assert.False(t, cfg.Cache.Enabled)
	assert.NotEmpty(t, cfg.Cache.Dir)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.S3.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("SVDTOOLS_ROOT", dir)
	t.Setenv("SVDTOOLS_GAPS", "off")
	t.Setenv("SVDTOOLS_STRICT", "true")
	t.Setenv("SVDTOOLS_FORMAT", "json")
	t.Setenv("SVDTOOLS_WORKERS", "3")
	t.Setenv("SVDTOOLS_CACHE_DIR", dir)
	t.Setenv("SVDTOOLS_CACHE_TTL", "90m")
	t.Setenv("SVDTOOLS_CACHE_S3_ENDPOINT", "minio:9000")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("SVDTOOLS_CACHE_S3_SECRET_KEY", "secret")
	t.Setenv("SVDTOOLS_CACHE_S3_USE_SSL", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.False(t, cfg.Gaps)
	assert.True(t, cfg.Strict)
	assert.Equal(t, interrupts.FormatJSON, cfg.Format)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, dir, cfg.Cache.Dir)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, S3Config{
		Enabled:   true,
		Endpoint:  "minio:9000",
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "svdtools-cache",
		Prefix:    "devices",
		UseSSL:    false,
	}, cfg.Cache.S3)
}

func TestLoadCacheExplicitlyOff(t *testing.T) {
	clearEnv(t)
	t.Setenv("SVDTOOLS_CACHE_DIR", t.TempDir())
	t.Setenv("SVDTOOLS_CACHE", "off")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadInvalid(t *testing.T) {
	for key, val := range map[string]string{
		"SVDTOOLS_FORMAT":            "xml",
		"SVDTOOLS_WORKERS":           "many",
		"SVDTOOLS_CACHE_TTL":         "forever",
		"SVDTOOLS_CACHE_MAX_ENTRIES": "lots",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			require.ErrorContains(t, err, key)
		})
	}
}

func TestBoolEnvFallsBack(t *testing.T) {
	t.Setenv("SVDTOOLS_TEST_BOOL", "maybe")
	assert.True(t, boolEnv("SVDTOOLS_TEST_BOOL", true))
	t.Setenv("SVDTOOLS_TEST_BOOL", "YES")
	assert.True(t, boolEnv("SVDTOOLS_TEST_BOOL", false))
}
