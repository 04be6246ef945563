package tradeloop

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("OpenSQLStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := newTestSQLStore(t)

	got, err := store.LoadTrades("alice")
	if err != nil {
		t.Fatalf("LoadTrades() on empty store error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("LoadTrades() on empty store = %d trades", len(got))
	}

	trades := sampleTrades()
	holding := Holding{Ticker: "AAPL", Shares: 5, AvgPrice: decimal.NewFromInt(100), TotalCost: decimal.NewFromInt(500)}
	for _, rec := range trades {
		if err := store.AppendTrade("alice", rec, holding); err != nil {
			t.Fatalf("AppendTrade() error: %v", err)
		}
	}

	got, err = store.LoadTrades("alice")
	if err != nil {
		t.Fatalf("LoadTrades() error: %v", err)
	}
	assertTradesEqual(t, got, trades)

	got, err = store.LoadTrades("bob")
	if err != nil {
		t.Fatalf("LoadTrades(bob) error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("bob's log has %d trades, want 0", len(got))
	}
}

func TestSQLStoreMaterializedBalance(t *testing.T) {
	store := newTestSQLStore(t)

	if _, found, err := store.MaterializedBalance("alice"); err != nil || found {
		t.Fatalf("MaterializedBalance() on empty store = found %v, err %v", found, err)
	}

	trades := sampleTrades()
	for _, rec := range trades {
		if err := store.AppendTrade("alice", rec, Holding{Ticker: "AAPL", Shares: 5,
			AvgPrice: decimal.NewFromInt(100), TotalCost: decimal.NewFromInt(500)}); err != nil {
			t.Fatalf("AppendTrade() error: %v", err)
		}
	}

	balance, found, err := store.MaterializedBalance("alice")
	if err != nil {
		t.Fatalf("MaterializedBalance() error: %v", err)
	}
	if !found {
		t.Fatal("MaterializedBalance() found = false after trades")
	}
	// The row tracks the balance of the most recent trade.
	if !balance.Equal(trades[len(trades)-1].BalanceAfter) {
		t.Errorf("materialized balance = %s, want %s", balance, trades[len(trades)-1].BalanceAfter)
	}
}

func TestSQLStoreReset(t *testing.T) {
	store := newTestSQLStore(t)
	for _, rec := range sampleTrades() {
		if err := store.AppendTrade("alice", rec, Holding{Ticker: "AAPL", Shares: 5,
			AvgPrice: decimal.NewFromInt(100), TotalCost: decimal.NewFromInt(500)}); err != nil {
			t.Fatalf("AppendTrade() error: %v", err)
		}
	}

	if err := store.Reset("alice"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	got, err := store.LoadTrades("alice")
	if err != nil {
		t.Fatalf("LoadTrades() after reset error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("log has %d trades after reset", len(got))
	}
	if _, found, err := store.MaterializedBalance("alice"); err != nil || found {
		t.Errorf("balance row survived reset: found %v, err %v", found, err)
	}
}

// A failure in the middle of AppendTrade must leave no partial rows: the
// trade insert, the holding upsert and the balance update commit together
// or not at all. A trigger aborts the transaction after the trade row has
// already been written.
func TestSQLStoreAtomicOnFailedAppend(t *testing.T) {
	store := newTestSQLStore(t)
	ledger, err := NewLedger(store, "alice", decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}

	if _, err := store.db.Exec(`CREATE TRIGGER block_holdings BEFORE INSERT ON holdings
		BEGIN SELECT RAISE(ABORT, 'storage offline'); END`); err != nil {
		t.Fatalf("could not install trigger: %v", err)
	}

	if _, err := ledger.Execute(decided(Buy, "AAPL", 100, 0.7)); err == nil {
		t.Fatal("Execute(BUY) succeeded with a blocked holdings table")
	} else if KindOf(err) != KindPersistence {
		t.Errorf("error kind = %v, want %v", KindOf(err), KindPersistence)
	}

	for _, table := range []string{"trade_history", "holdings", "portfolios"} {
		var n int
		if err := store.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after failed append, want 0", table, n)
		}
	}
	if !ledger.Balance().Equal(decimal.NewFromInt(10000)) {
		t.Errorf("balance = %s, want unchanged 10000", ledger.Balance())
	}
	if _, ok := ledger.Holding("AAPL"); ok {
		t.Error("holding recorded despite failed persistence")
	}

	// With the fault cleared the same trade goes through.
	if _, err := store.db.Exec(`DROP TRIGGER block_holdings`); err != nil {
		t.Fatalf("could not drop trigger: %v", err)
	}
	res, err := ledger.Execute(decided(Buy, "AAPL", 100, 0.7))
	if err != nil {
		t.Fatalf("Execute(BUY) after recovery error: %v", err)
	}
	if res.Status != ExecSuccess {
		t.Errorf("status after recovery = %s, want %s", res.Status, ExecSuccess)
	}
}

// The two backends are interchangeable: the same decision sequence played
// through either one yields the same portfolio state, both live and after
// a reload.
func TestBackendEquivalence(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	sqlStore := newTestSQLStore(t)

	initial := decimal.NewFromInt(10000)
	decisions := []Decision{
		decided(Buy, "AAPL", 100, 0.7),
		decided(Buy, "AAPL", 110, 0.7),
		decided(Sell, "AAPL", 120, 0.9),
		decided(Buy, "MSFT", 95.5, 0.5),
		decided(Sell, "AAPL", 130, 0.9),
	}

	// Pin the clock so both backends record identical timestamps.
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run := func(store TradeStore) *Ledger {
		ledger, err := NewLedger(store, "alice", initial)
		if err != nil {
			t.Fatalf("NewLedger() error: %v", err)
		}
		tick := 0
		ledger.now = func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}
		for _, d := range decisions {
			if _, err := ledger.Execute(d); err != nil {
				t.Fatalf("Execute(%s %s) error: %v", d.Action, d.Ticker, err)
			}
		}
		return ledger
	}

	fromFile := run(fileStore)
	fromSQL := run(sqlStore)

	assertSameState := func(a, b *Ledger) {
		t.Helper()
		if !a.Balance().Equal(b.Balance()) {
			t.Errorf("balances differ: %s vs %s", a.Balance(), b.Balance())
		}
		assertTradesEqual(t, a.Trades(), b.Trades())
		for _, ticker := range []string{"AAPL", "MSFT"} {
			ha, okA := a.Holding(ticker)
			hb, okB := b.Holding(ticker)
			if okA != okB {
				t.Fatalf("%s held in one backend only", ticker)
			}
			if okA && (ha.Shares != hb.Shares || !ha.AvgPrice.Equal(hb.AvgPrice) || !ha.TotalCost.Equal(hb.TotalCost)) {
				t.Errorf("%s holdings differ: %+v vs %+v", ticker, ha, hb)
			}
		}
	}
	assertSameState(fromFile, fromSQL)

	// Reload both: replaying the persisted log restores identical state.
	reloadedFile, err := NewLedger(fileStore, "alice", initial)
	if err != nil {
		t.Fatalf("NewLedger() reload error: %v", err)
	}
	reloadedSQL, err := NewLedger(sqlStore, "alice", initial)
	if err != nil {
		t.Fatalf("NewLedger() reload error: %v", err)
	}
	assertSameState(reloadedFile, fromFile)
	assertSameState(reloadedSQL, fromSQL)
	assertSameState(reloadedFile, reloadedSQL)
}
