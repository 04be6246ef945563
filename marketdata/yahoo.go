package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"github.com/etnz/tradeloop"
)

// historyDays is the lookback of the daily series requested from Yahoo.
// It must comfortably exceed the longest indicator window.
const historyDays = 90

// retryConfig bounds the exponential backoff applied to feed calls.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{maxRetries: 3, baseDelay: time.Second, maxDelay: 30 * time.Second}
}

// withRetry runs fn with exponential backoff until it succeeds, the retry
// budget runs out, or the context is cancelled.
func withRetry(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.baseDelay
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > cfg.maxDelay {
				delay = cfg.maxDelay
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// YahooProvider sources daily bars from Yahoo Finance and derives the
// indicator snapshot locally. It implements tradeloop.MarketProvider.
type YahooProvider struct {
	retry retryConfig

	// now is the snapshot clock; nil means time.Now. Tests pin it.
	now func() time.Time
}

// NewYahooProvider returns a provider with default retry behavior.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{retry: defaultRetryConfig()}
}

// Fetch downloads the recent daily history for a ticker and computes the
// snapshot. An empty history yields an error-kind snapshot rather than an
// error: a delisted or misspelled ticker is feed data, not a transport
// fault.
func (p *YahooProvider) Fetch(ctx context.Context, ticker string) (*tradeloop.MarketSnapshot, error) {
	if ticker == "" {
		return nil, tradeloop.Errorf(tradeloop.KindInput, "ticker must not be empty")
	}

	end := p.clock()
	start := end.AddDate(0, 0, -historyDays)

	var bars []Bar
	err := withRetry(ctx, p.retry, func() error {
		params := &chart.Params{
			Symbol:   ticker,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}
		iter := chart.Get(params)
		var got []Bar
		for iter.Next() {
			b := iter.Bar()
			got = append(got, Bar{
				Date:   time.Unix(int64(b.Timestamp), 0),
				Open:   b.Open.InexactFloat64(),
				High:   b.High.InexactFloat64(),
				Low:    b.Low.InexactFloat64(),
				Close:  b.Close.InexactFloat64(),
				Volume: int64(b.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("could not fetch history for %s: %w", ticker, err)
		}
		bars = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ComputeSnapshot(ticker, bars, p.clock()), nil
}

// LatestPrice asks Yahoo for the current regular market price.
func (p *YahooProvider) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	var price float64
	err := withRetry(ctx, p.retry, func() error {
		q, err := quote.Get(ticker)
		if err != nil {
			return fmt.Errorf("could not fetch quote for %s: %w", ticker, err)
		}
		price = q.RegularMarketPrice
		return nil
	})
	return price, err
}

func (p *YahooProvider) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
