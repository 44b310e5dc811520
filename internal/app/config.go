package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/emoji-storefront/internal/chain"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete server configuration, loadable from environment
// variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	CatalogFile  string `usage:"Catalog JSON file, optionally .gz; the built-in catalog is used when empty" flag:"catalog-file"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for operator API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Solana       SolanaConfig
	Redis        RedisConfig
	Orders       OrdersConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// SolanaConfig selects the cluster and the merchant account.
type SolanaConfig struct {
	RPCURL    string `default:"https://api.devnet.solana.com" usage:"Solana JSON-RPC endpoint" flag:"solana-rpc-url"`
	Network   string `default:"devnet" usage:"Cluster name shown on the landing page"`
	Recipient string `default:"8FnUcGsTntgvvWGiKhvBv8w2TYgbjSBHbitGVesh4Z8u" usage:"Account receiving payments"`

	// VerifyOrders makes addOrder look up the order reference on chain
	// before recording it.
	VerifyOrders bool `default:"true" usage:"Verify payments on chain before recording orders" flag:"verify-orders"`
}

// RedisConfig enables the shared reference registry. When URL is empty
// claims are kept in process memory.
type RedisConfig struct {
	URL          string        `usage:"Redis URL for order reference claims (STORE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	ReferenceTTL time.Duration `default:"24h" usage:"How long an issued order reference stays bound to its buyer" flag:"reference-ttl"`
}

// OrdersConfig sizes the purchase bloom filter.
type OrdersConfig struct {
	FilterCapacity uint    `default:"1000000" usage:"Expected number of purchases" flag:"orders-filter-capacity"`
	FilterFPRate   float64 `default:"0.001" usage:"Purchase filter false positive rate" flag:"orders-filter-fp-rate"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML
// config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms onto the configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Solana.RPCURL == "" {
		c.Solana.RPCURL = chain.DefaultEndpoint
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	case c.Solana.Recipient == "":
		return errors.New("solana recipient is required")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	case c.Redis.ReferenceTTL <= 0:
		return errors.New("reference TTL must be positive")
	}
	return nil
}
