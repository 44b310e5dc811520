// Command seed-db applies the schema and provisions an operator API key.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/emoji-storefront/internal/domain/auth"
	"github.com/xenking/emoji-storefront/internal/domain/catalog"
	"github.com/xenking/emoji-storefront/internal/storage/postgres"
)

type options struct {
	databaseURL string
	catalogFile string
	keyID       string
	keyName     string
	apiKey      string
	pepper      string
	scopes      string
}

func main() {
	var o options
	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.catalogFile, "catalog-file", "", "catalog file to validate before seeding")
	flag.StringVar(&o.keyID, "api-key-id", "operator", "identifier of the seeded API key")
	flag.StringVar(&o.keyName, "api-key-name", "Operator", "display name of the seeded API key")
	flag.StringVar(&o.apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&o.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&o.scopes, "scopes", auth.ScopeReadOrders, "comma separated scopes granted to the key")
	flag.Parse()

	o.databaseURL = orEnv(o.databaseURL, "DATABASE_URL")
	o.apiKey = orEnv(o.apiKey, "STORE_SEED_API_KEY")
	o.pepper = orEnv(o.pepper, "STORE_API_KEY_PEPPER")

	if o.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, o options) error {
	if o.catalogFile != "" {
		cat, err := catalog.Load(o.catalogFile)
		if err != nil {
			return errors.Wrap(err, "validate catalog")
		}
		slog.Info("catalog valid", slog.String("path", o.catalogFile), slog.Int("items", cat.Len()))
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, o.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if o.apiKey == "" {
		slog.Info("no API key given, skipping key provisioning")
		return nil
	}
	info := apiKeyInfo(o)
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key",
		slog.String("id", info.ID),
		slog.String("name", info.Name),
		slog.Any("scopes", info.Scopes),
	)
	return nil
}

func apiKeyInfo(o options) auth.APIKeyInfo {
	var scopes []string
	for _, s := range strings.Split(o.scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return auth.APIKeyInfo{
		ID:      o.keyID,
		KeyHash: auth.Hash([]byte(o.pepper), o.apiKey),
		Name:    o.keyName,
		Scopes:  scopes,
	}
}
