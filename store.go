package tradeloop

import "sort"

// TradeStore persists the trade log for portfolio identities. Both backends
// share the same contract: the trade log is authoritative, and loading a
// portfolio always means replaying it (see Reconstruct). A backend may
// additionally materialize balance and holdings for query efficiency, but
// those rows are derived data and must be written in the same logical
// operation as the trade itself.
type TradeStore interface {
	// LoadTrades returns the full trade log for an identity in timestamp
	// order. A missing identity yields an empty log, not an error.
	LoadTrades(identity string) ([]TradeRecord, error)

	// AppendTrade records one executed trade. holding is the post-trade
	// state of the traded security; Shares==0 means the position was closed.
	// Implementations must persist the trade, the holding and the balance
	// atomically: a failure leaves no partial state.
	AppendTrade(identity string, rec TradeRecord, holding Holding) error

	// Reset discards all persisted state for an identity.
	Reset(identity string) error

	// Close releases backend resources.
	Close() error
}

// sortTrades orders a trade log chronologically. The sort is stable, so
// trades with identical timestamps keep their original relative order.
func sortTrades(trades []TradeRecord) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}
