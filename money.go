package tradeloop

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// reportingCurrency is the single currency of the simulated portfolio.
const reportingCurrency = money.USD

// FormatUSD renders a decimal amount with the USD currency formatter, for
// report and message output. Ledger arithmetic stays in decimal; only the
// display path rounds.
func FormatUSD(d decimal.Decimal) string {
	cur := money.GetCurrency(reportingCurrency)
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), reportingCurrency).Display()
}
