package tradeloop

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"
)

// SQLStore persists trade logs in SQLite. Unlike the flat-file backend it
// also materializes balance and holdings as rows for query efficiency, but
// those rows are derived data: every BUY/SELL updates the trade_history
// table, the holding row and the balance row inside a single transaction,
// and the load path still replays the trade log.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS portfolios (
	identity   TEXT PRIMARY KEY,
	balance    TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS holdings (
	identity   TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	shares     INTEGER NOT NULL,
	avg_price  TEXT NOT NULL,
	total_cost TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(identity, ticker)
);
CREATE TABLE IF NOT EXISTS trade_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	identity      TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	ticker        TEXT NOT NULL,
	action        TEXT NOT NULL,
	shares        INTEGER NOT NULL,
	price         TEXT NOT NULL,
	total         TEXT NOT NULL,
	balance_after TEXT NOT NULL,
	confidence    REAL
);
CREATE INDEX IF NOT EXISTS trade_history_identity ON trade_history(identity, timestamp);
`

// OpenSQLStore opens (creating if needed) a SQLite database at path and
// applies the schema. Monetary values are stored as text so that replayed
// state is bit-identical to the flat-file backend.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, WrapErr(KindPersistence, err, "could not open sqlite database")
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, WrapErr(KindPersistence, err, "could not apply sqlite schema")
	}
	return &SQLStore{db: db}, nil
}

// LoadTrades replays nothing itself: it returns the raw trade log in
// timestamp order for Reconstruct to consume.
func (s *SQLStore) LoadTrades(identity string) ([]TradeRecord, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, ticker, action, shares, price, total, balance_after, confidence
		FROM trade_history WHERE identity = ? ORDER BY timestamp, id`, identity)
	if err != nil {
		return nil, WrapErr(KindPersistence, err, "could not query trade history")
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var ts, action, price, total, balance string
		if err := rows.Scan(&ts, &rec.Ticker, &action, &rec.Shares, &price, &total, &balance, &rec.Confidence); err != nil {
			return nil, WrapErr(KindPersistence, err, "could not scan trade row")
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, WrapErr(KindPersistence, err, fmt.Sprintf("bad timestamp %q in trade history", ts))
		}
		if rec.Action, err = ParseAction(action); err != nil {
			return nil, WrapErr(KindPersistence, err, "bad action in trade history")
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, WrapErr(KindPersistence, err, "bad price in trade history")
		}
		if rec.Total, err = decimal.NewFromString(total); err != nil {
			return nil, WrapErr(KindPersistence, err, "bad total in trade history")
		}
		if rec.BalanceAfter, err = decimal.NewFromString(balance); err != nil {
			return nil, WrapErr(KindPersistence, err, "bad balance in trade history")
		}
		trades = append(trades, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapErr(KindPersistence, err, "could not read trade history")
	}
	return trades, nil
}

// AppendTrade writes the trade row, the holding row and the balance row in
// one transaction, so a BUY cannot partially persist.
func (s *SQLStore) AppendTrade(identity string, rec TradeRecord, holding Holding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return WrapErr(KindPersistence, err, "could not begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO trade_history (identity, timestamp, ticker, action, shares, price, total, balance_after, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity, rec.Timestamp.Format(time.RFC3339Nano), rec.Ticker, string(rec.Action),
		rec.Shares, rec.Price.String(), rec.Total.String(), rec.BalanceAfter.String(), rec.Confidence,
	); err != nil {
		return WrapErr(KindPersistence, err, "could not insert trade")
	}

	if holding.Shares == 0 {
		if _, err := tx.Exec(`DELETE FROM holdings WHERE identity = ? AND ticker = ?`,
			identity, holding.Ticker); err != nil {
			return WrapErr(KindPersistence, err, "could not delete closed holding")
		}
	} else {
		if _, err := tx.Exec(`
			INSERT INTO holdings (identity, ticker, shares, avg_price, total_cost)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(identity, ticker) DO UPDATE SET
			  shares=excluded.shares, avg_price=excluded.avg_price,
			  total_cost=excluded.total_cost, updated_at=CURRENT_TIMESTAMP`,
			identity, holding.Ticker, holding.Shares,
			holding.AvgPrice.String(), holding.TotalCost.String(),
		); err != nil {
			return WrapErr(KindPersistence, err, "could not upsert holding")
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO portfolios (identity, balance) VALUES (?, ?)
		ON CONFLICT(identity) DO UPDATE SET
		  balance=excluded.balance, updated_at=CURRENT_TIMESTAMP`,
		identity, rec.BalanceAfter.String(),
	); err != nil {
		return WrapErr(KindPersistence, err, "could not update balance")
	}

	if err := tx.Commit(); err != nil {
		return WrapErr(KindPersistence, err, "could not commit trade")
	}
	return nil
}

// Reset discards every row belonging to the identity.
func (s *SQLStore) Reset(identity string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return WrapErr(KindPersistence, err, "could not begin transaction")
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM trade_history WHERE identity = ?`,
		`DELETE FROM holdings WHERE identity = ?`,
		`DELETE FROM portfolios WHERE identity = ?`,
	} {
		if _, err := tx.Exec(stmt, identity); err != nil {
			return WrapErr(KindPersistence, err, "could not reset portfolio")
		}
	}
	if err := tx.Commit(); err != nil {
		return WrapErr(KindPersistence, err, "could not commit reset")
	}
	return nil
}

// MaterializedBalance returns the balance row kept for query efficiency.
// The ledger cross-checks it against the replayed balance at load time.
func (s *SQLStore) MaterializedBalance(identity string) (decimal.Decimal, bool, error) {
	var balance string
	err := s.db.QueryRow(`SELECT balance FROM portfolios WHERE identity = ?`, identity).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, WrapErr(KindPersistence, err, "could not query balance")
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, false, WrapErr(KindPersistence, err, "bad balance in portfolios")
	}
	return d, true, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }
