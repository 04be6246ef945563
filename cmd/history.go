package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/etnz/tradeloop/renderer"
)

// historyCmd holds the flags for the 'history' subcommand.
type historyCmd struct {
	last int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "display the trade history" }
func (*historyCmd) Usage() string {
	return `tlp history [-last <n>]

  Displays the persisted trade log in chronological order.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.last, "last", 0, "Show only the n most recent trades. 0 shows all.")
}

func (c *historyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := LoadProfile()
	if err != nil {
		return fail(err)
	}
	ledger, store, err := OpenLedger(cfg)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	trades := ledger.Trades()
	if c.last > 0 && len(trades) > c.last {
		trades = trades[len(trades)-c.last:]
	}

	printMarkdown(renderer.HistoryMarkdown(&renderer.History{
		Identity: cfg.Identity,
		Trades:   trades,
	}))
	return subcommands.ExitSuccess
}
