package tradeloop

import (
	"math"
	"time"
)

// Policy tuning constants. The confidence levels and threshold multipliers
// are empirically chosen; treat them as tunable parameters, not truths.
const (
	// MaxPredictionDeviation caps how far a raw forecast may stray from the
	// current price before it is clipped.
	MaxPredictionDeviation = 0.10

	// SmoothingWeightNew and SmoothingWeightHistory blend a clamped forecast
	// with the mean of recent forecasts to dampen single-sample noise.
	SmoothingWeightNew     = 0.7
	SmoothingWeightHistory = 0.3
	// SmoothingWindow is how many prior predictions enter the blend.
	SmoothingWindow = 3

	// BaseThreshold is the minimum relative move that triggers a trade.
	BaseThreshold = 0.02
	// MinMoveFraction is an absolute floor: the predicted move must also
	// exceed this fraction of the current price.
	MinMoveFraction = 0.01

	// Confidence levels. FallbackConfidence applies when no model is
	// available; the others grade a model forecast by its divergence.
	FallbackConfidence       = 0.5
	ModelConfidence          = 0.7
	LowDivergenceConfidence  = 0.3
	HighDivergenceConfidence = 0.9
	lowDivergence            = 0.01
	highDivergence           = 0.05

	// Threshold multipliers applied by confidence band. Confidence exactly
	// on a band edge leaves the threshold unchanged.
	lowConfidenceBand    = 0.5
	highConfidenceBand   = 0.8
	lowConfidenceFactor  = 1.5
	highConfidenceFactor = 0.8
)

// Policy converts a raw price forecast into a trading decision. The zero
// value is ready to use.
//
// Policy never fails outward: any degenerate numeric input yields HOLD with
// zero confidence.
type Policy struct {
	// Now returns the decision timestamp; nil means time.Now. It exists so
	// tests can pin time.
	Now func() time.Time
}

// Decide turns a raw predicted price into a decision for ticker at
// currentPrice. modelBacked reports whether the forecast came from a real
// model (as opposed to the exercisability fallback); it feeds the confidence
// heuristic. history provides recent predictions for smoothing and is not
// mutated.
func (p *Policy) Decide(ticker string, currentPrice, rawPredicted float64, modelBacked bool, history *DecisionHistory) Decision {
	d := Decision{
		Timestamp:    p.now(),
		Ticker:       ticker,
		Action:       Hold,
		CurrentPrice: currentPrice,
	}

	// Division-by-zero guard, and the degraded outcome for any input the
	// arithmetic below cannot digest.
	if currentPrice == 0 || !isFinite(currentPrice) || !isFinite(rawPredicted) {
		d.PredictedPrice = rawPredicted
		return d
	}

	predicted := clampPrediction(currentPrice, rawPredicted)

	// Smooth against the mean of the last few predictions, when any exist.
	if history != nil && history.Len() > 0 {
		prior := history.LastPredictions(SmoothingWindow)
		var sum float64
		for _, v := range prior {
			sum += v
		}
		mean := sum / float64(len(prior))
		predicted = SmoothingWeightNew*predicted + SmoothingWeightHistory*mean
	}
	d.PredictedPrice = predicted

	divergence := math.Abs(predicted-currentPrice) / currentPrice
	d.Confidence = confidence(modelBacked, divergence)

	threshold := adaptiveThreshold(d.Confidence)
	pct := (predicted - currentPrice) / currentPrice
	absDiff := math.Abs(predicted - currentPrice)
	minMove := MinMoveFraction * currentPrice

	switch {
	case pct > threshold && absDiff > minMove:
		d.Action = Buy
	case pct < -threshold && absDiff > minMove:
		d.Action = Sell
	}
	return d
}

// clampPrediction clips a forecast to at most MaxPredictionDeviation away
// from the current price, preserving its sign.
func clampPrediction(current, predicted float64) float64 {
	if math.Abs(predicted-current)/current <= MaxPredictionDeviation {
		return predicted
	}
	if predicted > current {
		return current * (1 + MaxPredictionDeviation)
	}
	return current * (1 - MaxPredictionDeviation)
}

// confidence grades a forecast. This is a model-presence and divergence
// heuristic, not a probability.
func confidence(modelBacked bool, divergence float64) float64 {
	if !modelBacked {
		return FallbackConfidence
	}
	switch {
	case divergence < lowDivergence:
		return LowDivergenceConfidence
	case divergence > highDivergence:
		return HighDivergenceConfidence
	default:
		return ModelConfidence
	}
}

// adaptiveThreshold widens the trade threshold for shaky forecasts and
// narrows it for strong ones.
func adaptiveThreshold(conf float64) float64 {
	switch {
	case conf < lowConfidenceBand:
		return BaseThreshold * lowConfidenceFactor
	case conf > highConfidenceBand:
		return BaseThreshold * highConfidenceFactor
	default:
		return BaseThreshold
	}
}

func (p *Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
