package cmd

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/etnz/tradeloop"
)

// exportCmd holds the flags for the 'export' subcommand.
type exportCmd struct {
	outputFile string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the trade history as CSV" }
func (*exportCmd) Usage() string {
	return `tlp export [-o <file>]

  Writes the persisted trade log as CSV, one trade per row, suitable for
  spreadsheets and downstream analysis. Writes to stdout by default.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outputFile, "o", "", "Output file. Defaults to stdout.")
}

func (c *exportCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := LoadProfile()
	if err != nil {
		return fail(err)
	}
	ledger, store, err := OpenLedger(cfg)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	var out io.Writer = os.Stdout
	if c.outputFile != "" {
		f, err := os.Create(c.outputFile)
		if err != nil {
			return fail(fmt.Errorf("could not create %q: %w", c.outputFile, err))
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write(tradeloop.TradeColumns); err != nil {
		return fail(err)
	}
	for _, t := range ledger.Trades() {
		if err := w.Write(t.Row()); err != nil {
			return fail(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
