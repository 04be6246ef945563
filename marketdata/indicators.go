// Package marketdata turns external price feeds into market snapshots the
// trading loop can consume. It computes the rolling indicators from raw
// daily bars, so every provider backend publishes the same feature surface.
package marketdata

import (
	"math"
	"time"

	"github.com/etnz/tradeloop"
)

// Rolling windows for the derived indicators.
const (
	maShortWindow    = 5
	maMediumWindow   = 20
	maLongWindow     = 50
	trendWindow      = 5
	momentumWindow   = 10
	rsiWindow        = 14
	returnsRetention = 20
)

// Bar is one OHLCV observation of a daily price series.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// ComputeSnapshot derives the full indicator set from a chronological bar
// series and packs it into a market update snapshot. Indicators whose
// window exceeds the series length are simply absent from the map; the
// consumer treats absence as zero.
//
// An empty series yields an error snapshot, mirroring an empty feed
// response.
func ComputeSnapshot(ticker string, bars []Bar, at time.Time) *tradeloop.MarketSnapshot {
	if len(bars) == 0 {
		return &tradeloop.MarketSnapshot{
			Kind:      tradeloop.SnapshotError,
			Ticker:    ticker,
			Timestamp: at,
			Message:   "no data available for " + ticker,
		}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	returns := periodReturns(closes)
	last := bars[len(bars)-1]

	ind := make(map[string]float64)
	putMean(ind, tradeloop.IndMA5, closes, maShortWindow)
	putMean(ind, tradeloop.IndMA20, closes, maMediumWindow)
	putMean(ind, tradeloop.IndMA50, closes, maLongWindow)
	putMean(ind, tradeloop.IndReturns5, returns, maShortWindow)
	putMean(ind, tradeloop.IndReturns20, returns, maMediumWindow)

	if len(returns) > 0 {
		ind[tradeloop.IndReturns] = returns[len(returns)-1]
	}
	if v, ok := tailStd(returns, maMediumWindow); ok {
		ind[tradeloop.IndVolatility] = v
	}
	if len(closes) > trendWindow {
		base := closes[len(closes)-1-trendWindow]
		if base != 0 {
			ind[tradeloop.IndTrend] = (last.Close - base) / base
		}
	}
	if len(closes) > momentumWindow {
		base := closes[len(closes)-1-momentumWindow]
		if base != 0 {
			ind[tradeloop.IndMomentum] = last.Close/base - 1
		}
	}
	if v, ok := volumeRatio(bars); ok {
		ind[tradeloop.IndVolumeRatio] = v
	}
	if last.Close != 0 {
		ind[tradeloop.IndHLSpread] = (last.High - last.Low) / last.Close
	}
	if v, ok := rsi(closes, rsiWindow); ok {
		ind[tradeloop.IndRSI] = v
	}

	if len(returns) > returnsRetention {
		returns = returns[len(returns)-returnsRetention:]
	}

	return &tradeloop.MarketSnapshot{
		Kind:         tradeloop.SnapshotMarketUpdate,
		Ticker:       ticker,
		Timestamp:    at,
		CurrentPrice: last.Close,
		Indicators:   ind,
		Returns:      returns,
	}
}

// periodReturns is the percentage change between consecutive closes.
func periodReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

func putMean(ind map[string]float64, name string, series []float64, window int) {
	if v, ok := tailMean(series, window); ok {
		ind[name] = v
	}
}

func tailMean(series []float64, window int) (float64, bool) {
	if len(series) < window || window == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range series[len(series)-window:] {
		sum += v
	}
	return sum / float64(window), true
}

// tailStd is the sample standard deviation of the last window values.
func tailStd(series []float64, window int) (float64, bool) {
	if len(series) < window || window < 2 {
		return 0, false
	}
	tail := series[len(series)-window:]
	mean, _ := tailMean(tail, window)
	var sq float64
	for _, v := range tail {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(window-1)), true
}

// volumeRatio compares the latest volume to its rolling average.
func volumeRatio(bars []Bar) (float64, bool) {
	if len(bars) < maMediumWindow {
		return 0, false
	}
	var sum float64
	for _, b := range bars[len(bars)-maMediumWindow:] {
		sum += float64(b.Volume)
	}
	avg := sum / maMediumWindow
	if avg == 0 {
		return 0, false
	}
	return float64(bars[len(bars)-1].Volume) / avg, true
}

// rsi is the relative strength index over the last window price deltas,
// using simple averages of gains and losses.
func rsi(closes []float64, window int) (float64, bool) {
	if len(closes) < window+1 {
		return 0, false
	}
	var gain, loss float64
	tail := closes[len(closes)-window-1:]
	for i := 1; i < len(tail); i++ {
		delta := tail[i] - tail[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 0, false
		}
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}
