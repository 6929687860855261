package domain

// RSIBucket classifies the RSI reading at entry.
type RSIBucket string

const (
	RSIUnknown    RSIBucket = ""
	RSIOversold   RSIBucket = "OVERSOLD"
	RSINeutral    RSIBucket = "NEUTRAL"
	RSIOverbought RSIBucket = "OVERBOUGHT"
)

// MomentumSign is the sign of momentum at entry.
type MomentumSign int

const (
	MomentumDown MomentumSign = -1
	MomentumFlat MomentumSign = 0
	MomentumUp   MomentumSign = 1
)

// TrendBucket classifies trend strength (ADX) at entry.
type TrendBucket string

const (
	TrendUnknown  TrendBucket = ""
	TrendWeak     TrendBucket = "WEAK"
	TrendModerate TrendBucket = "MODERATE"
	TrendStrong   TrendBucket = "STRONG"
)

// EntryFeatures describes the market state a trade was entered in.
// It is comparable, so it can be used directly as a grouping key.
type EntryFeatures struct {
	RSI      RSIBucket    `json:"rsi_bucket"`
	Momentum MomentumSign `json:"momentum_sign"`
	Trend    TrendBucket  `json:"trend_bucket"`
}

// ClassifyRSI buckets an RSI value using the 30/70 convention.
func ClassifyRSI(rsi float64) RSIBucket {
	switch {
	case rsi < 30:
		return RSIOversold
	case rsi > 70:
		return RSIOverbought
	default:
		return RSINeutral
	}
}

// ClassifyMomentum returns the sign of a momentum reading.
func ClassifyMomentum(m float64) MomentumSign {
	switch {
	case m > 0:
		return MomentumUp
	case m < 0:
		return MomentumDown
	default:
		return MomentumFlat
	}
}

// ClassifyTrend buckets an ADX value: below 20 weak, below 40 moderate.
func ClassifyTrend(adx float64) TrendBucket {
	switch {
	case adx < 20:
		return TrendWeak
	case adx < 40:
		return TrendModerate
	default:
		return TrendStrong
	}
}
