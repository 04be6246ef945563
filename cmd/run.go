package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/etnz/tradeloop"
	"github.com/etnz/tradeloop/renderer"
)

// runCmd holds the flags for the 'run' subcommand.
type runCmd struct {
	cycles   int
	interval time.Duration
	ticker   string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run trading cycles against the configured market feed" }
func (*runCmd) Usage() string {
	return `tlp run [-n <cycles>] [-i <interval>] [-t <ticker>]

  Runs the trading loop: fetch market data, extract features, predict the
  next price, decide, and execute against the portfolio. Each cycle's
  outcome is reported as it completes.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.cycles, "n", 0, "Number of cycles to run. Defaults to the profile's cycle count.")
	f.DurationVar(&c.interval, "i", 0, "Pause between cycles. Defaults to the profile's interval.")
	f.StringVar(&c.ticker, "t", "", "Ticker to trade. Defaults to the profile's ticker.")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := LoadProfile()
	if err != nil {
		return fail(err)
	}
	if c.ticker != "" {
		cfg.Ticker = c.ticker
	}
	cycles := cfg.Cycles
	if c.cycles > 0 {
		cycles = c.cycles
	}
	interval := time.Duration(cfg.CycleInterval)
	if c.interval > 0 {
		interval = c.interval
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		return fail(err)
	}
	ledger, store, err := OpenLedger(cfg)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	coord := tradeloop.NewCoordinator(cfg.Ticker, provider, NewOracle(cfg), ledger)

	status := subcommands.ExitSuccess
	for i := 0; i < cycles; i++ {
		if i > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				fmt.Fprintln(os.Stderr, "interrupted")
				return subcommands.ExitFailure
			}
		}

		res := coord.RunCycle(ctx)
		printMarkdown(renderer.CycleMarkdown(&res))
		if res.Status == tradeloop.CycleError {
			status = subcommands.ExitFailure
		}
	}
	return status
}
