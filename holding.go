package tradeloop

import "github.com/shopspring/decimal"

// Holding is the position in a single security. The entry is removed from
// the holdings map as soon as Shares reaches zero.
//
// Invariant: AvgPrice equals TotalCost divided by Shares whenever Shares is
// positive.
type Holding struct {
	Ticker    string          `json:"ticker"`
	Shares    int64           `json:"shares"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// addShares merges a purchase into the holding, recomputing the weighted
// average cost.
func (h Holding) addShares(shares int64, cost decimal.Decimal) Holding {
	h.Shares += shares
	h.TotalCost = h.TotalCost.Add(cost)
	if h.Shares > 0 {
		h.AvgPrice = h.TotalCost.Div(decimal.NewFromInt(h.Shares))
	}
	return h
}

// removeShares takes shares out of the holding, shrinking the cost basis
// proportionally. The average price is unchanged.
func (h Holding) removeShares(shares int64) Holding {
	h.Shares -= shares
	h.TotalCost = h.TotalCost.Sub(h.AvgPrice.Mul(decimal.NewFromInt(shares)))
	if h.Shares == 0 {
		h.TotalCost = decimal.Zero
	}
	return h
}

// HoldingView is the valuation of one holding at a given price, as exposed
// by PortfolioSummary.
type HoldingView struct {
	Ticker        string          `json:"ticker"`
	Shares        int64           `json:"shares"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}
