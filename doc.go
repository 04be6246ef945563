// Package tradeloop implements an automated equity-trading loop: it turns a
// market snapshot into a numeric feature vector, a price forecast into a
// BUY/SELL/HOLD decision, and a decision into a mutation of a persistent
// portfolio ledger.
//
// The core functionalities include:
//   - Feature Extraction: Deriving a fixed-order feature vector from a market
//     snapshot, suitable for a positional prediction model.
//   - Decision Policy: Clamping and smoothing raw forecasts, scoring their
//     confidence, and converting them into trading actions through an
//     adaptive threshold.
//   - Portfolio Ledger: Recording every trade in an immutable, chronological
//     record from which balance and holdings are always re-derived by replay.
//     Two interchangeable persistence backends are provided: a flat JSONL
//     file and a SQLite database.
//   - Coordination: Sequencing one full fetch, extract, predict, decide and
//     execute cycle, recording every inter-component handoff for
//     observability.
//
// This package serves as the foundational logic for the `tlp` command-line
// tool, ensuring that all operations are consistent and based on a single
// source of truth: the trade log.
package tradeloop
