package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/emoji-storefront/internal/chain"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/storefront",
		Solana:      SolanaConfig{RPCURL: chain.DefaultEndpoint, Recipient: "8FnUcGsTntgvvWGiKhvBv8w2TYgbjSBHbitGVesh4Z8u"},
		Redis:       RedisConfig{ReferenceTTL: time.Hour},
		RateLimit:   RateLimitConfig{Max: 10, Window: time.Minute},
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults(env(map[string]string{
		"DATABASE_URL": "postgres://db/store",
		"REDIS_URL":    "redis://cache:6379/0",
		"PORT":         "9000",
	}))

	assert.Equal(t, "postgres://db/store", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, chain.DefaultEndpoint, cfg.Solana.RPCURL)
}

func TestApplyPlatformDefaults_ExplicitWins(t *testing.T) {
	cfg := Config{
		Addr:        "127.0.0.1:7000",
		DatabaseURL: "postgres://explicit",
		Redis:       RedisConfig{URL: "redis://explicit"},
		Solana:      SolanaConfig{RPCURL: "http://localhost:8899"},
	}
	cfg.applyPlatformDefaults(env(map[string]string{
		"DATABASE_URL": "postgres://platform",
		"REDIS_URL":    "redis://platform",
		"PORT":         "9000",
	}))

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "redis://explicit", cfg.Redis.URL)
	assert.Equal(t, "http://localhost:8899", cfg.Solana.RPCURL)
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.validate())

	for name, mutate := range map[string]func(*Config){
		"NoDatabase":  func(c *Config) { c.DatabaseURL = "" },
		"NoRecipient": func(c *Config) { c.Solana.Recipient = "" },
		"NoRateLimit": func(c *Config) { c.RateLimit.Max = 0 },
		"NoWindow":    func(c *Config) { c.RateLimit.Window = 0 },
		"NoRefTTL":    func(c *Config) { c.Redis.ReferenceTTL = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			assert.Error(t, c.validate())
		})
	}
}

func TestLoadCatalog_BuiltIn(t *testing.T) {
	cat, err := loadCatalog("")
	require.NoError(t, err)
	assert.Positive(t, cat.Len())
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a","name":"A","price":"0.5"},{"id":"b","name":"B","price":"1"}]`), 0o600))

	cat, err := loadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := loadCatalog(t.TempDir() + "/missing.json")
	assert.Error(t, err)
}
