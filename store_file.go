package tradeloop

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// FileStore persists one JSONL trade log per identity under a base
// directory. Balance and holdings are never written: they are always
// re-derived by replaying the log at load time.
type FileStore struct {
	dir string
}

// NewFileStore creates a flat-file backend rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, WrapErr(KindPersistence, err, "could not create trade log directory")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(identity string) string {
	return filepath.Join(s.dir, identity+".jsonl")
}

// LoadTrades reads and chronologically sorts the identity's trade log. A
// missing file is an empty log.
func (s *FileStore) LoadTrades(identity string) ([]TradeRecord, error) {
	f, err := os.Open(s.path(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapErr(KindPersistence, err, "could not open trade log")
	}
	defer f.Close()

	trades, err := DecodeTrades(f)
	if err != nil {
		return nil, WrapErr(KindPersistence, err, fmt.Sprintf("could not decode trade log for %q", identity))
	}
	return trades, nil
}

// AppendTrade appends one record to the identity's log file. The holding
// argument is ignored: file-backed state is derived purely by replay.
func (s *FileStore) AppendTrade(identity string, rec TradeRecord, _ Holding) error {
	f, err := os.OpenFile(s.path(identity), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return WrapErr(KindPersistence, err, "could not open trade log for append")
	}
	defer f.Close()

	if err := EncodeTrade(f, rec); err != nil {
		return WrapErr(KindPersistence, err, "could not append trade")
	}
	return nil
}

// Reset removes the identity's trade log file.
func (s *FileStore) Reset(identity string) error {
	err := os.Remove(s.path(identity))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return WrapErr(KindPersistence, err, "could not remove trade log")
	}
	return nil
}

// Close implements TradeStore; a FileStore holds no long-lived resources.
func (s *FileStore) Close() error { return nil }

// DecodeTrades decodes trade records from a stream of JSONL data and returns
// them sorted chronologically.
func DecodeTrades(r io.Reader) ([]TradeRecord, error) {
	var trades []TradeRecord
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}
		var rec TradeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("could not decode trade line %q: %w", string(line), err)
		}
		if _, err := ParseAction(string(rec.Action)); err != nil || rec.Action == Hold {
			return nil, fmt.Errorf("invalid trade action in line %q", string(line))
		}
		trades = append(trades, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading trade log: %w", err)
	}
	sortTrades(trades)
	return trades, nil
}

// EncodeTrade marshals a single trade record to JSON and writes it to the
// writer followed by a newline, in JSONL format.
func EncodeTrade(w io.Writer, rec TradeRecord) error {
	decimal.MarshalJSONWithoutQuotes = true
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trade record: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write trade record: %w", err)
	}
	return nil
}

// EncodeTrades writes a whole trade log in JSONL format, chronologically
// sorted.
func EncodeTrades(w io.Writer, trades []TradeRecord) error {
	sortTrades(trades)
	for _, rec := range trades {
		if err := EncodeTrade(w, rec); err != nil {
			return err
		}
	}
	return nil
}
