package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/etnz/tradeloop/renderer"
)

// summaryCmd holds the flags for the 'summary' subcommand.
type summaryCmd struct {
	price float64
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the portfolio valued at the latest price" }
func (*summaryCmd) Usage() string {
	return `tlp summary [-p <price>]

  Displays the cash balance, holdings and profit and loss of the portfolio,
  valued at the latest market price (or at -p when given).
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.price, "p", 0, "Price to value holdings at. Defaults to a live quote.")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := LoadProfile()
	if err != nil {
		return fail(err)
	}
	ledger, store, err := OpenLedger(cfg)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	price := c.price
	if price <= 0 {
		provider, err := NewProvider(cfg)
		if err != nil {
			return fail(err)
		}
		if price, err = spotPrice(ctx, provider, cfg.Ticker); err != nil {
			return fail(fmt.Errorf("could not fetch a price for %s: %w", cfg.Ticker, err))
		}
	}

	printMarkdown(renderer.SummaryMarkdown(&renderer.Summary{
		Identity:         cfg.Identity,
		Ticker:           cfg.Ticker,
		Price:            price,
		PortfolioSummary: ledger.Summary(price),
	}))
	return subcommands.ExitSuccess
}
