package tradeloop

import (
	"math"
	"time"
)

// SnapshotKind tags the payload a market data provider hands to the loop.
type SnapshotKind string

const (
	// SnapshotMarketUpdate is a well-formed market observation.
	SnapshotMarketUpdate SnapshotKind = "market_update"
	// SnapshotError marks a snapshot that carries an error message instead
	// of data. Downstream components skip the cycle on such snapshots.
	SnapshotError SnapshotKind = "error"
)

// Indicator names as published by market data providers. Values may be
// absent from a snapshot when the underlying series is too short to
// compute them.
const (
	IndMA5         = "MA5"
	IndMA20        = "MA20"
	IndMA50        = "MA50"
	IndVolatility  = "volatility"
	IndReturns     = "returns"
	IndReturns5    = "returns_5"
	IndReturns20   = "returns_20"
	IndTrend       = "trend"
	IndMomentum    = "momentum"
	IndVolumeRatio = "volume_ratio"
	IndHLSpread    = "hl_spread"
	IndRSI         = "RSI"
)

// MarketSnapshot is one externally sourced observation of price and rolling
// indicators for a single ticker at a point in time. It is consumed
// read-only by the loop.
type MarketSnapshot struct {
	Kind         SnapshotKind `json:"kind"`
	Ticker       string       `json:"ticker"`
	Timestamp    time.Time    `json:"timestamp"`
	CurrentPrice float64      `json:"current_price"`
	// Indicators maps indicator names to their latest value. A missing key
	// or a NaN value both mean "not computable yet".
	Indicators map[string]float64 `json:"indicators"`
	// Returns holds the most recent interval returns, oldest first and
	// most-recent-last.
	Returns []float64 `json:"returns"`
	// Message carries the provider error text when Kind is SnapshotError.
	Message string `json:"message,omitempty"`
}

// Indicator returns the named indicator value, or 0 when it is absent or NaN.
func (s *MarketSnapshot) Indicator(name string) float64 {
	v, ok := s.Indicators[name]
	if !ok || math.IsNaN(v) {
		return 0
	}
	return v
}

// IsMarketUpdate reports whether the snapshot is a well-formed market
// observation that the loop can act on.
func (s *MarketSnapshot) IsMarketUpdate() bool {
	return s != nil && s.Kind == SnapshotMarketUpdate && s.Ticker != ""
}
