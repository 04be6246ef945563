package tradeloop

// The prediction model is positional: it was trained against feature vectors
// in this exact order, so the indices below are load-bearing. Any change here
// requires retraining the model.
const (
	FeatMA5 = iota
	FeatMA20
	FeatVolatility
	FeatReturn
	FeatReturn5
	FeatReturn20
	FeatMA5MA20Ratio
	FeatPriceMA20Ratio
	FeatVolumeRatio
	FeatHLSpread
	FeatClose
	FeatReturnLag1
	FeatReturnLag2
	FeatReturnLag3
	FeatReturnLag4
	FeatReturnLag5

	// FeatureCount is the fixed length of a FeatureVector.
	FeatureCount = 16
)

// lagWindow is the number of trailing return values appended to the vector.
const lagWindow = 5

// FeatureVector is a fixed-length, fixed-order numeric view of a market
// snapshot, consumed positionally by the prediction model.
type FeatureVector [FeatureCount]float64

// ExtractFeatures derives a feature vector from a market snapshot.
//
// It returns ok=false when the snapshot is not a valid market update
// (malformed or error-tagged). This is a deliberate local outcome, not an
// error: callers treat it as "skip this cycle".
//
// Missing or NaN indicator values are replaced with 0 before assembly. The
// two moving-average ratios degrade to 1.0 when MA20 is zero, and the lag
// returns are left-padded with 0.0 when fewer than five are available.
func ExtractFeatures(s *MarketSnapshot) (FeatureVector, bool) {
	var fv FeatureVector
	if !s.IsMarketUpdate() {
		return fv, false
	}

	ma5 := s.Indicator(IndMA5)
	ma20 := s.Indicator(IndMA20)
	price := s.CurrentPrice

	fv[FeatMA5] = ma5
	fv[FeatMA20] = ma20
	fv[FeatVolatility] = s.Indicator(IndVolatility)
	fv[FeatReturn] = s.Indicator(IndReturns)
	fv[FeatReturn5] = s.Indicator(IndReturns5)
	fv[FeatReturn20] = s.Indicator(IndReturns20)
	if ma20 != 0 {
		fv[FeatMA5MA20Ratio] = ma5 / ma20
		fv[FeatPriceMA20Ratio] = price / ma20
	} else {
		fv[FeatMA5MA20Ratio] = 1.0
		fv[FeatPriceMA20Ratio] = 1.0
	}
	fv[FeatVolumeRatio] = s.Indicator(IndVolumeRatio)
	fv[FeatHLSpread] = s.Indicator(IndHLSpread)
	fv[FeatClose] = price

	// The five most recent returns, oldest first, left-padded with zeros.
	lags := s.Returns
	if len(lags) > lagWindow {
		lags = lags[len(lags)-lagWindow:]
	}
	offset := FeatReturnLag1 + lagWindow - len(lags)
	for i, r := range lags {
		fv[offset+i] = r
	}
	return fv, true
}
