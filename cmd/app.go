// Package cmd implements the CLI application driving the trading loop.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/etnz/tradeloop"
	"github.com/etnz/tradeloop/marketdata"
	"github.com/etnz/tradeloop/oracle"
)

// Register registers all subcommands on the commander. A main package calls
// Register() and then Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&runCmd{}, "trading")
	c.Register(&resetCmd{}, "trading")

	c.Register(&summaryCmd{}, "reporting")
	c.Register(&historyCmd{}, "reporting")
	c.Register(&exportCmd{}, "reporting")
}

// As a CLI application it has a very short lived lifecycle, so it is ok to
// use global variables.

var configPath = flag.String("config", "tradeloop.yaml", "Path to the YAML profile")

// LoadProfile loads the effective configuration for the current invocation.
func LoadProfile() (*Config, error) {
	return LoadConfig(*configPath)
}

// OpenStore opens the persistence backend the profile selects.
func OpenStore(cfg *Config) (tradeloop.TradeStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return tradeloop.OpenSQLStore(cfg.DatabasePath)
	default:
		return tradeloop.NewFileStore(cfg.DataDir)
	}
}

// OpenLedger opens the backend and replays the profile's portfolio from its
// trade log. The caller must Close the returned store.
func OpenLedger(cfg *Config) (*tradeloop.Ledger, tradeloop.TradeStore, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := tradeloop.NewLedger(store, cfg.Identity, decimal.NewFromFloat(cfg.InitialBalance))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return ledger, store, nil
}

// NewProvider builds the market feed the profile selects.
func NewProvider(cfg *Config) (tradeloop.MarketProvider, error) {
	switch cfg.Source {
	case "", "yahoo":
		return marketdata.NewYahooProvider(), nil
	case "intraday":
		return marketdata.NewIntradayProvider(cfg.ISINs), nil
	default:
		return nil, fmt.Errorf("unknown market source %q (want yahoo or intraday)", cfg.Source)
	}
}

// quoter is satisfied by providers that can serve a spot quote without a
// full history download.
type quoter interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}

// spotPrice returns the latest price for a ticker, preferring a provider's
// dedicated quote endpoint over a full snapshot fetch.
func spotPrice(ctx context.Context, provider tradeloop.MarketProvider, ticker string) (float64, error) {
	if q, ok := provider.(quoter); ok {
		price, err := q.LatestPrice(ctx, ticker)
		if err != nil {
			return 0, err
		}
		if price <= 0 {
			return 0, fmt.Errorf("no usable quote for %s", ticker)
		}
		return price, nil
	}

	snapshot, err := provider.Fetch(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if !snapshot.IsMarketUpdate() || snapshot.CurrentPrice <= 0 {
		return 0, fmt.Errorf("no usable price for %s: %s", ticker, snapshot.Message)
	}
	return snapshot.CurrentPrice, nil
}

// NewOracle opens the configured model. A missing model is not fatal: the
// loop degrades to its fallback forecast, so this returns a nil oracle and
// logs instead.
func NewOracle(cfg *Config) tradeloop.Oracle {
	m, err := oracle.Open(cfg.ModelPath)
	if err != nil {
		log.Printf("no prediction model: %v", err)
		return nil
	}
	return m
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}
