package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/go-resty/resty/v2"

	"github.com/etnz/tradeloop"
)

const (
	tradegateBaseURL = "https://www.tradegate.de"
	lsChartBaseURL   = "https://www.ls-tc.de"

	// The LS intraday chart for the EUR/USD pair.
	eurUSDChartPath = "/_rpc/json/instrument/chart/dataForInstrument?instrumentId=349938&series=intraday&type=mini"
)

// IntradayProvider sources last-traded prices from the Tradegate OTC feed.
// It carries no history, so its snapshots have a current price but no
// indicators; they are useful for quick live valuation, not for feature
// extraction. Tradegate quotes in euros, so every price is converted to
// dollars with the latest EUR/USD rate before it is returned.
//
// Tickers are mapped to ISINs by the resolver; a nil resolver treats the
// ticker itself as an ISIN.
type IntradayProvider struct {
	client  *resty.Client
	resolve func(ticker string) (string, bool)

	// chartURL is the base of the EUR/USD rate feed. Tests point it at a
	// local server.
	chartURL string

	now func() time.Time
}

// NewIntradayProvider builds a Tradegate-backed provider. isins maps loop
// tickers to the ISINs the feed understands; a ticker absent from the map
// is passed through unchanged.
func NewIntradayProvider(isins map[string]string) *IntradayProvider {
	client := resty.New()
	client.SetBaseURL(tradegateBaseURL)
	client.SetTimeout(15 * time.Second)
	return &IntradayProvider{
		client:   client,
		chartURL: lsChartBaseURL,
		resolve: func(ticker string) (string, bool) {
			isin, ok := isins[ticker]
			return isin, ok
		},
	}
}

// Fetch returns a price-only market update for the ticker.
func (p *IntradayProvider) Fetch(ctx context.Context, ticker string) (*tradeloop.MarketSnapshot, error) {
	if ticker == "" {
		return nil, tradeloop.Errorf(tradeloop.KindInput, "ticker must not be empty")
	}

	price, err := p.LatestPrice(ctx, ticker)
	if err != nil {
		return &tradeloop.MarketSnapshot{
			Kind:      tradeloop.SnapshotError,
			Ticker:    ticker,
			Timestamp: p.clock(),
			Message:   err.Error(),
		}, nil
	}

	return &tradeloop.MarketSnapshot{
		Kind:         tradeloop.SnapshotMarketUpdate,
		Ticker:       ticker,
		Timestamp:    p.clock(),
		CurrentPrice: price,
	}, nil
}

// LatestPrice returns the last traded price for a ticker, in dollars.
func (p *IntradayProvider) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	if ticker == "" {
		return 0, tradeloop.Errorf(tradeloop.KindInput, "ticker must not be empty")
	}
	isin := ticker
	if p.resolve != nil {
		if mapped, ok := p.resolve(ticker); ok {
			isin = mapped
		}
	}

	eur, err := p.lastTraded(ctx, ticker, isin)
	if err != nil {
		return 0, err
	}
	rate, err := p.eurUSDRate(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to USD: %w", ticker, err)
	}
	return eur * rate, nil
}

// lastTraded reads the last transaction price for an ISIN. The feed is
// quirky: "last" may be the placeholder "./." (fall back to the bid), and
// numbers sometimes arrive as comma-decimal strings.
func (p *IntradayProvider) lastTraded(ctx context.Context, ticker, isin string) (float64, error) {
	var jobj map[string]any
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("isin", isin).
		SetResult(&jobj).
		Get("/refresh.php")
	if err != nil {
		return 0, fmt.Errorf("error retrieving %q: %w", ticker, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("error retrieving %q: status %s", ticker, resp.Status())
	}

	jval := jobj["last"]
	if s, ok := jval.(string); ok && s == "./." {
		// Empty last transaction, use the bid instead.
		jval = jobj["bid"]
	}
	val, err := asPrice(jval)
	if err != nil {
		return 0, fmt.Errorf("cannot read value for %q: %w", ticker, err)
	}
	if val == 0 {
		return 0, fmt.Errorf("empty bid for %q, no value to return", ticker)
	}
	return val, nil
}

func asPrice(jval any) (float64, error) {
	switch v := jval.(type) {
	case float64:
		return v, nil
	case string:
		// The API sometimes renders numbers as localized strings.
		s := strings.ReplaceAll(v, ",", ".")
		s = strings.ReplaceAll(s, " ", "")
		val, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price string %q: %w", v, err)
		}
		return val, nil
	default:
		return 0, fmt.Errorf("value is neither a float nor a string: %v", jval)
	}
}

// eurUSDRate reads the last EUR/USD rate (dollars per euro) from the LS
// intraday chart feed.
func (p *IntradayProvider) eurUSDRate(ctx context.Context) (float64, error) {
	addr := p.chartURL + eurUSDChartPath
	var jobj any
	// An absolute URL bypasses the client's Tradegate base URL.
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&jobj).
		Get(addr)
	if err != nil {
		return 0, fmt.Errorf("error retrieving EUR/USD: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("error retrieving EUR/USD: status %s", resp.Status())
	}

	path := "$.series.intraday.data[-1:][1]"
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return 0, fmt.Errorf("error parsing EUR/USD: %q %w", path, err)
	}
	// jsonpath may return a one-element list instead of a scalar.
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(float64)
	if !ok {
		return 0, fmt.Errorf("error parsing EUR/USD: %q is not a float: %v", path, jval)
	}
	return val, nil
}

func (p *IntradayProvider) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
