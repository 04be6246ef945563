package tradeloop

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is one immutable entry of the trade log. The ordered sequence
// of trade records is the sole source of truth for portfolio state: balance
// and holdings are always re-derivable by replaying it from the initial
// balance (see Reconstruct).
type TradeRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Ticker       string          `json:"ticker"`
	Action       Action          `json:"action"` // BUY or SELL only
	Shares       int64           `json:"shares"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"` // Shares x Price
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Confidence   float64         `json:"confidence"`
}

// TradeColumns is the canonical column order for tabular exports of the
// trade log.
var TradeColumns = []string{
	"timestamp", "ticker", "action", "shares",
	"price", "total", "balance_after", "confidence",
}

// Row renders the record as strings in TradeColumns order.
func (t TradeRecord) Row() []string {
	return []string{
		t.Timestamp.Format(time.RFC3339),
		t.Ticker,
		string(t.Action),
		decimal.NewFromInt(t.Shares).String(),
		t.Price.String(),
		t.Total.String(),
		t.BalanceAfter.String(),
		decimal.NewFromFloat(t.Confidence).String(),
	}
}
