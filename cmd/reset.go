package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

// resetCmd holds the flags for the 'reset' subcommand.
type resetCmd struct {
	force bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "discard the portfolio and start over" }
func (*resetCmd) Usage() string {
	return `tlp reset -force

  Discards the trade history and restores the initial balance. The trade
  log is the sole record of the portfolio, so this is irreversible and
  requires -force.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "Confirm the irreversible reset.")
}

func (c *resetCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.force {
		fmt.Println("reset discards the whole trade history; run again with -force to confirm")
		return subcommands.ExitUsageError
	}

	cfg, err := LoadProfile()
	if err != nil {
		return fail(err)
	}
	ledger, store, err := OpenLedger(cfg)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	if err := ledger.Reset(); err != nil {
		return fail(err)
	}
	fmt.Printf("portfolio %q reset to initial balance %.2f\n", cfg.Identity, cfg.InitialBalance)
	return subcommands.ExitSuccess
}
