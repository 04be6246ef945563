package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/etnz/tradeloop"
)

// snapshotFeed only knows how to fetch full snapshots.
type snapshotFeed struct {
	snapshot *tradeloop.MarketSnapshot
	err      error
}

func (f *snapshotFeed) Fetch(_ context.Context, _ string) (*tradeloop.MarketSnapshot, error) {
	return f.snapshot, f.err
}

// quoteFeed also serves spot quotes, and records whether the heavier Fetch
// path was taken.
type quoteFeed struct {
	snapshotFeed
	price   float64
	err     error
	fetched bool
}

func (f *quoteFeed) Fetch(ctx context.Context, ticker string) (*tradeloop.MarketSnapshot, error) {
	f.fetched = true
	return f.snapshotFeed.Fetch(ctx, ticker)
}

func (f *quoteFeed) LatestPrice(_ context.Context, _ string) (float64, error) {
	return f.price, f.err
}

func TestSpotPricePrefersQuoteEndpoint(t *testing.T) {
	feed := &quoteFeed{price: 187.5}

	price, err := spotPrice(context.Background(), feed, "AAPL")
	if err != nil {
		t.Fatalf("spotPrice() error: %v", err)
	}
	if price != 187.5 {
		t.Errorf("price = %v, want 187.5", price)
	}
	if feed.fetched {
		t.Error("spotPrice() fetched a full snapshot despite a quote endpoint")
	}
}

func TestSpotPriceRejectsEmptyQuote(t *testing.T) {
	if _, err := spotPrice(context.Background(), &quoteFeed{price: 0}, "AAPL"); err == nil {
		t.Error("spotPrice() accepted a zero quote")
	}
	wantErr := errors.New("quote feed down")
	if _, err := spotPrice(context.Background(), &quoteFeed{err: wantErr}, "AAPL"); !errors.Is(err, wantErr) {
		t.Errorf("spotPrice() error = %v, want %v", err, wantErr)
	}
}

func TestSpotPriceFallsBackToSnapshot(t *testing.T) {
	feed := &snapshotFeed{snapshot: &tradeloop.MarketSnapshot{
		Kind:         tradeloop.SnapshotMarketUpdate,
		Ticker:       "AAPL",
		CurrentPrice: 191.25,
	}}

	price, err := spotPrice(context.Background(), feed, "AAPL")
	if err != nil {
		t.Fatalf("spotPrice() error: %v", err)
	}
	if price != 191.25 {
		t.Errorf("price = %v, want 191.25", price)
	}

	bad := &snapshotFeed{snapshot: &tradeloop.MarketSnapshot{
		Kind: tradeloop.SnapshotError, Ticker: "AAPL", Message: "no data",
	}}
	if _, err := spotPrice(context.Background(), bad, "AAPL"); err == nil {
		t.Error("spotPrice() accepted an error snapshot")
	}
}
