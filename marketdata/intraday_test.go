package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/tradeloop"
)

// newTestIntraday serves the Tradegate refresh endpoint with a fixed body
// and the EUR/USD chart feed with a last rate of 1.25 dollars per euro.
func newTestIntraday(t *testing.T, refreshBody string) *IntradayProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("isin") == "" {
			http.Error(w, "missing isin", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(refreshBody))
	})
	mux.HandleFunc("/_rpc/json/instrument/chart/dataForInstrument", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"series":{"intraday":{"data":[[1735689600,1.10],[1735693200,1.25]]}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewIntradayProvider(map[string]string{"AAPL": "US0378331005"})
	p.client.SetBaseURL(srv.URL)
	p.chartURL = srv.URL
	return p
}

func TestIntradayLatestPrice(t *testing.T) {
	p := newTestIntraday(t, `{"last": 92.5, "bid": 92.0}`)

	price, err := p.LatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("LatestPrice() error: %v", err)
	}
	// 92.50 EUR at 1.25 dollars per euro.
	if price != 115.625 {
		t.Errorf("price = %v, want 115.625", price)
	}
}

func TestIntradayPlaceholderFallsBackToBid(t *testing.T) {
	// "./." is how the feed renders an empty last transaction, and the bid
	// arrives as a comma-decimal string.
	p := newTestIntraday(t, `{"last": "./.", "bid": "92,5"}`)

	price, err := p.LatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("LatestPrice() error: %v", err)
	}
	if price != 115.625 {
		t.Errorf("price = %v, want 115.625", price)
	}
}

func TestIntradayLatestPriceEmptyTicker(t *testing.T) {
	p := newTestIntraday(t, `{}`)

	_, err := p.LatestPrice(context.Background(), "")
	if tradeloop.KindOf(err) != tradeloop.KindInput {
		t.Errorf("error kind = %v, want %v", tradeloop.KindOf(err), tradeloop.KindInput)
	}
}

func TestIntradayFetch(t *testing.T) {
	p := newTestIntraday(t, `{"last": 92.5}`)

	snapshot, err := p.Fetch(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if !snapshot.IsMarketUpdate() {
		t.Fatalf("snapshot kind = %s, want a market update (%s)", snapshot.Kind, snapshot.Message)
	}
	if snapshot.CurrentPrice != 115.625 {
		t.Errorf("price = %v, want 115.625", snapshot.CurrentPrice)
	}

	// An empty bid is feed data, not a transport fault: Fetch reports it as
	// an error-kind snapshot instead of an error.
	p = newTestIntraday(t, `{"last": "./.", "bid": 0}`)
	snapshot, err = p.Fetch(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if snapshot.Kind != tradeloop.SnapshotError {
		t.Errorf("snapshot kind = %s, want %s", snapshot.Kind, tradeloop.SnapshotError)
	}
	if snapshot.Message == "" {
		t.Error("error snapshot has no message")
	}
}
