package tradeloop

import (
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TradeFraction is the share of the cash balance committed to each BUY.
const TradeFraction = 0.1

// SellFraction is the share of a position disposed of by each SELL, with a
// floor of one share.
const SellFraction = 0.5

// ExecutionStatus reports how the ledger handled a decision.
type ExecutionStatus string

const (
	ExecSuccess           ExecutionStatus = "success"
	ExecHold              ExecutionStatus = "hold"
	ExecInsufficientFunds ExecutionStatus = "insufficient_funds"
	ExecNoShares          ExecutionStatus = "no_shares"
	ExecUnknownDecision   ExecutionStatus = "unknown_decision"
)

// ExecutionResult is the structured outcome of applying one decision to the
// ledger. Business-rule rejections (insufficient funds, no shares) are
// results, not errors.
type ExecutionResult struct {
	Status         ExecutionStatus `json:"status"`
	Ticker         string          `json:"ticker"`
	Action         Action          `json:"action,omitempty"`
	Shares         int64           `json:"shares,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Total          decimal.Decimal `json:"total"`
	Message        string          `json:"message"`
	Timestamp      time.Time       `json:"timestamp"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Balance        decimal.Decimal `json:"balance"`
}

// PortfolioSummary is an at-a-glance view of the portfolio valued at a
// given price.
type PortfolioSummary struct {
	Balance        decimal.Decimal `json:"balance"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	PnL            decimal.Decimal `json:"pnl"`
	PnLPct         float64         `json:"pnl_pct"`
	Holdings       []HoldingView   `json:"holdings"`
}

// Ledger owns the balance, holdings and trade history of one portfolio
// identity, and applies decisions to them under strict accounting
// invariants.
//
// All exported methods serialize access: cycles for the same identity run
// one at a time, while distinct identities (distinct Ledger values) are
// independent.
type Ledger struct {
	mu             sync.Mutex
	identity       string
	initialBalance decimal.Decimal
	balance        decimal.Decimal
	holdings       map[string]Holding
	trades         []TradeRecord
	store          TradeStore

	// now returns trade timestamps; nil means time.Now. Tests pin it.
	now func() time.Time
}

// balanceChecker is implemented by backends that materialize a balance row;
// the ledger cross-checks it against the replayed balance at load time.
type balanceChecker interface {
	MaterializedBalance(identity string) (decimal.Decimal, bool, error)
}

// NewLedger loads the identity's trade log from the store and rebuilds
// balance and holdings by replaying it from the initial balance. The replay
// is the only load path: no backend-cached balance is ever trusted as
// state.
func NewLedger(store TradeStore, identity string, initialBalance decimal.Decimal) (*Ledger, error) {
	if identity == "" {
		return nil, Errorf(KindInput, "portfolio identity must not be empty")
	}
	if initialBalance.IsNegative() {
		return nil, Errorf(KindInput, "initial balance must not be negative")
	}
	trades, err := store.LoadTrades(identity)
	if err != nil {
		return nil, err
	}
	balance, holdings := Reconstruct(initialBalance, trades)

	if checker, ok := store.(balanceChecker); ok {
		if cached, found, err := checker.MaterializedBalance(identity); err == nil && found && !cached.Equal(balance) {
			// The replayed balance wins; the cached row is derived data.
			log.Printf("%s: materialized balance %s diverges from replayed balance %s", identity, cached, balance)
		}
	}

	return &Ledger{
		identity:       identity,
		initialBalance: initialBalance,
		balance:        balance,
		holdings:       holdings,
		trades:         trades,
		store:          store,
	}, nil
}

// Reconstruct replays an ordered trade log from an initial balance and
// returns the resulting balance and holdings. It is a pure function: it is
// both the load path of every backend and the correctness proof that the
// trade log alone determines portfolio state.
//
// Trades that could not have been executed (a BUY exceeding the running
// balance, a SELL exceeding the held shares) are skipped, mirroring the
// guards of Execute.
func Reconstruct(initialBalance decimal.Decimal, trades []TradeRecord) (decimal.Decimal, map[string]Holding) {
	balance := initialBalance
	holdings := make(map[string]Holding)

	for _, t := range trades {
		switch t.Action {
		case Buy:
			cost := t.Price.Mul(decimal.NewFromInt(t.Shares))
			if balance.LessThan(cost) {
				continue
			}
			balance = balance.Sub(cost)
			h := holdings[t.Ticker]
			h.Ticker = t.Ticker
			holdings[t.Ticker] = h.addShares(t.Shares, cost)
		case Sell:
			h, ok := holdings[t.Ticker]
			if !ok || h.Shares < t.Shares {
				continue
			}
			balance = balance.Add(t.Price.Mul(decimal.NewFromInt(t.Shares)))
			h = h.removeShares(t.Shares)
			if h.Shares == 0 {
				delete(holdings, t.Ticker)
			} else {
				holdings[t.Ticker] = h
			}
		}
	}
	return balance, holdings
}

// Execute applies a decision to the portfolio.
//
// HOLD never mutates state. BUY commits TradeFraction of the balance,
// rejecting with ExecInsufficientFunds when that buys no whole share or
// exceeds the balance. SELL disposes of SellFraction of the held shares
// (at least one, at most all), rejecting with ExecNoShares when nothing is
// held. Successful trades are appended to the trade log and persisted
// before the in-memory state is considered committed: a persistence failure
// rolls the mutation back and returns a KindPersistence error.
//
// A malformed decision payload returns a KindInput error without mutating
// state.
func (l *Ledger) Execute(d Decision) (*ExecutionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.Ticker == "" {
		return nil, Errorf(KindInput, "decision has no ticker")
	}
	price := decimal.NewFromFloat(d.CurrentPrice)

	switch d.Action {
	case Hold:
		return l.result(ExecHold, d.Ticker, "", 0, price, decimal.Zero,
			"no action taken on HOLD decision"), nil
	case Buy:
		if !price.IsPositive() {
			return nil, Errorf(KindInput, "cannot buy %s at non-positive price %s", d.Ticker, price)
		}
		return l.executeBuy(d, price)
	case Sell:
		if !price.IsPositive() {
			return nil, Errorf(KindInput, "cannot sell %s at non-positive price %s", d.Ticker, price)
		}
		return l.executeSell(d, price)
	default:
		return l.result(ExecUnknownDecision, d.Ticker, "", 0, price, decimal.Zero,
			fmt.Sprintf("unknown decision action: %q", d.Action)), nil
	}
}

func (l *Ledger) executeBuy(d Decision, price decimal.Decimal) (*ExecutionResult, error) {
	budget := l.balance.Mul(decimal.NewFromFloat(TradeFraction))
	// QuoRem truncates exactly; Div rounds the quotient, which for a
	// near-integer budget/price could buy one share past the budget.
	whole, _ := budget.QuoRem(price, 0)
	shares := whole.IntPart()
	if shares <= 0 {
		return l.result(ExecInsufficientFunds, d.Ticker, Buy, 0, price, decimal.Zero,
			fmt.Sprintf("insufficient funds to buy %s", d.Ticker)), nil
	}
	cost := price.Mul(decimal.NewFromInt(shares))
	if l.balance.LessThan(cost) {
		return l.result(ExecInsufficientFunds, d.Ticker, Buy, 0, price, decimal.Zero,
			fmt.Sprintf("insufficient funds to buy %s", d.Ticker)), nil
	}

	prevBalance, prevHolding, hadHolding := l.balance, l.holdings[d.Ticker], hasKey(l.holdings, d.Ticker)

	l.balance = l.balance.Sub(cost)
	h := l.holdings[d.Ticker]
	h.Ticker = d.Ticker
	h = h.addShares(shares, cost)
	l.holdings[d.Ticker] = h

	rec := TradeRecord{
		Timestamp:    l.timestamp(),
		Ticker:       d.Ticker,
		Action:       Buy,
		Shares:       shares,
		Price:        price,
		Total:        cost,
		BalanceAfter: l.balance,
		Confidence:   d.Confidence,
	}
	if err := l.store.AppendTrade(l.identity, rec, h); err != nil {
		l.balance = prevBalance
		if hadHolding {
			l.holdings[d.Ticker] = prevHolding
		} else {
			delete(l.holdings, d.Ticker)
		}
		return nil, err
	}
	l.trades = append(l.trades, rec)

	return l.result(ExecSuccess, d.Ticker, Buy, shares, price, cost,
		fmt.Sprintf("bought %d shares of %s at %s", shares, d.Ticker, FormatUSD(price))), nil
}

func (l *Ledger) executeSell(d Decision, price decimal.Decimal) (*ExecutionResult, error) {
	h, ok := l.holdings[d.Ticker]
	if !ok || h.Shares == 0 {
		return l.result(ExecNoShares, d.Ticker, Sell, 0, price, decimal.Zero,
			fmt.Sprintf("no shares of %s to sell", d.Ticker)), nil
	}

	shares := int64(float64(h.Shares) * SellFraction)
	if shares < 1 {
		shares = 1
	}
	if shares > h.Shares {
		shares = h.Shares
	}
	revenue := price.Mul(decimal.NewFromInt(shares))

	prevBalance, prevHolding := l.balance, h

	l.balance = l.balance.Add(revenue)
	h = h.removeShares(shares)
	if h.Shares == 0 {
		delete(l.holdings, d.Ticker)
	} else {
		l.holdings[d.Ticker] = h
	}

	rec := TradeRecord{
		Timestamp:    l.timestamp(),
		Ticker:       d.Ticker,
		Action:       Sell,
		Shares:       shares,
		Price:        price,
		Total:        revenue,
		BalanceAfter: l.balance,
		Confidence:   d.Confidence,
	}
	if err := l.store.AppendTrade(l.identity, rec, h); err != nil {
		l.balance = prevBalance
		l.holdings[d.Ticker] = prevHolding
		return nil, err
	}
	l.trades = append(l.trades, rec)

	return l.result(ExecSuccess, d.Ticker, Sell, shares, price, revenue,
		fmt.Sprintf("sold %d shares of %s at %s", shares, d.Ticker, FormatUSD(price))), nil
}

// PortfolioValue is the cash balance plus all holdings valued at
// currentPrice.
func (l *Ledger) PortfolioValue(currentPrice float64) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portfolioValue(decimal.NewFromFloat(currentPrice))
}

// portfolioValue must be called with the ledger lock held.
func (l *Ledger) portfolioValue(price decimal.Decimal) decimal.Decimal {
	value := l.balance
	for _, h := range l.holdings {
		value = value.Add(price.Mul(decimal.NewFromInt(h.Shares)))
	}
	return value
}

// Summary values the portfolio at currentPrice: total value, invested cost
// basis, profit and loss against the initial balance, and per-holding
// unrealized P&L.
func (l *Ledger) Summary(currentPrice float64) PortfolioSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	price := decimal.NewFromFloat(currentPrice)
	value := l.portfolioValue(price)

	var invested decimal.Decimal
	views := make([]HoldingView, 0, len(l.holdings))
	for _, ticker := range slices.Sorted(maps.Keys(l.holdings)) {
		h := l.holdings[ticker]
		invested = invested.Add(h.TotalCost)
		shares := decimal.NewFromInt(h.Shares)
		views = append(views, HoldingView{
			Ticker:        h.Ticker,
			Shares:        h.Shares,
			AvgPrice:      h.AvgPrice,
			CurrentValue:  price.Mul(shares),
			UnrealizedPnL: price.Sub(h.AvgPrice).Mul(shares),
		})
	}

	pnl := value.Sub(l.initialBalance)
	var pnlPct float64
	if l.initialBalance.IsPositive() {
		pnlPct = pnl.Div(l.initialBalance).InexactFloat64() * 100
	}
	return PortfolioSummary{
		Balance:        l.balance,
		PortfolioValue: value,
		TotalInvested:  invested,
		PnL:            pnl,
		PnLPct:         pnlPct,
		Holdings:       views,
	}
}

// Reset restores the initial balance, clears holdings and discards the
// persisted trade history.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Reset(l.identity); err != nil {
		return err
	}
	l.balance = l.initialBalance
	l.holdings = make(map[string]Holding)
	l.trades = nil
	return nil
}

// Trades returns a copy of the in-memory trade log in timestamp order.
func (l *Ledger) Trades() []TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// Balance returns the current cash balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Holding returns the position for a ticker, if any.
func (l *Ledger) Holding(ticker string) (Holding, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[ticker]
	return h, ok
}

// Identity returns the owning identity of this portfolio.
func (l *Ledger) Identity() string { return l.identity }

func (l *Ledger) result(status ExecutionStatus, ticker string, action Action, shares int64, price, total decimal.Decimal, msg string) *ExecutionResult {
	return &ExecutionResult{
		Status:         status,
		Ticker:         ticker,
		Action:         action,
		Shares:         shares,
		Price:          price,
		Total:          total,
		Message:        msg,
		Timestamp:      l.timestamp(),
		PortfolioValue: l.portfolioValue(price),
		Balance:        l.balance,
	}
}

func (l *Ledger) timestamp() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func hasKey(m map[string]Holding, k string) bool {
	_, ok := m[k]
	return ok
}
