// Command buyer purchases a catalog item with a local keypair and downloads
// its content once the payment settles.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/dustin/go-humanize"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/emoji-storefront/internal/chain"
	"github.com/xenking/emoji-storefront/internal/client"
	"github.com/xenking/emoji-storefront/internal/content"
	"github.com/xenking/emoji-storefront/internal/purchase"
)

// Config holds buyer settings, loadable from BUYER_ environment variables,
// flags or buyer.yaml.
type Config struct {
	APIURL       string        `default:"http://localhost:8080" usage:"Storefront API base URL" flag:"api-url"`
	RPCURL       string        `default:"https://api.devnet.solana.com" usage:"Solana JSON-RPC endpoint" flag:"rpc-url"`
	Keypair      string        `usage:"solana-keygen keypair file paying for the item" flag:"keypair"`
	Item         string        `usage:"Item to buy; lists the catalog when empty" flag:"item"`
	OutDir       string        `default:"." usage:"Directory the purchased file is written to" flag:"out"`
	Gateway      string        `default:"https://gateway.ipfscdn.io" usage:"IPFS HTTP gateway" flag:"gateway"`
	PollInterval time.Duration `default:"1s" usage:"Payment confirmation poll interval" flag:"poll-interval"`
	Timeout      time.Duration `default:"5m" usage:"Give up waiting for payment and download after this long" flag:"timeout"`
	Retries      uint64        `default:"5" usage:"Download retries" flag:"retries"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BUYER",
		Files:     []string{"buyer.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		api, err := client.New(cfg.APIURL)
		if err != nil {
			return errors.Wrap(err, "create api client")
		}
		if cfg.Item == "" {
			return listProducts(ctx, api)
		}
		return buy(ctx, lg, m, cfg, api)
	})
}

func listProducts(ctx context.Context, api *client.Client) error {
	products, err := api.Products(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPRICE")
	for _, p := range products {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s SOL\n", p.ID, p.Name, p.Price.String())
	}
	return w.Flush()
}

func buy(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config, api *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	chainClient := chain.NewClient(cfg.RPCURL)

	if cfg.Keypair == "" {
		return errors.Wrap(purchase.ErrWalletNotConnected, "set --keypair")
	}
	wallet, err := chain.LoadKeypairWallet(cfg.Keypair, chainClient)
	if err != nil {
		return err
	}

	sess, err := purchase.NewSession(ctx, purchase.Deps{
		Wallet:       wallet,
		Transactions: api,
		Ledger:       purchase.NewChainLedger(chainClient),
		Orders:       api,
		Items:        api,
	}, cfg.Item,
		purchase.WithInterval(cfg.PollInterval),
		purchase.WithNotify(func(e purchase.Event) {
			lg.Info("Purchase status", zap.Stringer("from", e.From), zap.Stringer("to", e.To))
		}),
		purchase.WithTracerProvider(m.TracerProvider()),
		purchase.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "start purchase")
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Start(ctx); err != nil {
		return err
	}
	if sess.Status() != purchase.Paid {
		if err := sess.Buy(ctx); err != nil {
			return err
		}
		lg.Info("Waiting for confirmation",
			zap.String("order_id", sess.OrderID()),
			zap.String("signature", sess.Signature()),
		)
	}
	if err := sess.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait for payment")
	}

	item := sess.Item()
	if item == nil {
		return errors.New("item content unavailable")
	}
	resolver, err := content.NewResolver(cfg.Gateway)
	if err != nil {
		return err
	}
	dl := content.Start(ctx, resolver, item.Hash, item.Filename, cfg.OutDir,
		content.WithBackOff(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.Retries)),
	)
	path, err := dl.Wait(ctx)
	if err != nil {
		return err
	}
	_, size, _ := dl.Ready()
	lg.Info("Item downloaded",
		zap.String("name", item.Name),
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(size))),
	)
	return nil
}
