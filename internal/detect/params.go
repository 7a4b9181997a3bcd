package detect

// Params holds the tunable thresholds for all detection modes. The zero
// value is usable: any field left at zero falls back to its default.
type Params struct {
	// Sensitivity is the z-score threshold for flagging a band in sudden
	// detection. Default 2.0.
	Sensitivity float64

	// BaselineWindowDays is the default baseline length for sudden
	// detection when the caller passes a non-positive window. Default 90.
	BaselineWindowDays int

	// SampleIntervalDays is the provider cadence used when building
	// baselines. Default 5.
	SampleIntervalDays int

	// GradualWindowDays is the sliding-window size for trend tracking.
	// Default 30.
	GradualWindowDays int

	// GradualStepDays is the window step for trend tracking. Default 15.
	GradualStepDays int

	// TrendBufferSize is how many trailing window NDVI values feed the
	// slope fit. Default 5.
	TrendBufferSize int

	// TrendMinPoints is the minimum buffered values before fitting a
	// slope. Default 3.
	TrendMinPoints int

	// SlopeThreshold is the NDVI-per-step slope above which a gradual
	// event is emitted. Default 0.05.
	SlopeThreshold float64

	// SeasonalZThreshold is the z-score threshold for phenological
	// anomalies. Default 2.0.
	SeasonalZThreshold float64

	// SeasonalFallbackStd replaces a zero historical spread so identical
	// history cannot produce an undefined spike. Default 0.1.
	SeasonalFallbackStd float64

	// HistoricalYears is the default comparison depth for phenological
	// detection. Default 3.
	HistoricalYears int
}

// Fixed per-mode confidences. Trend detection is less immediately
// verifiable than a single z-score spike, so gradual events carry lower
// confidence than seasonal ones.
const (
	gradualConfidence  = 0.6
	seasonalConfidence = 0.7
)

// withDefaults returns a copy of p with zero fields replaced by defaults.
func (p Params) withDefaults() Params {
	if p.Sensitivity <= 0 {
		p.Sensitivity = 2.0
	}
	if p.BaselineWindowDays <= 0 {
		p.BaselineWindowDays = 90
	}
	if p.SampleIntervalDays <= 0 {
		p.SampleIntervalDays = 5
	}
	if p.GradualWindowDays <= 0 {
		p.GradualWindowDays = 30
	}
	if p.GradualStepDays <= 0 {
		p.GradualStepDays = 15
	}
	if p.TrendBufferSize <= 0 {
		p.TrendBufferSize = 5
	}
	if p.TrendMinPoints <= 0 {
		p.TrendMinPoints = 3
	}
	if p.SlopeThreshold <= 0 {
		p.SlopeThreshold = 0.05
	}
	if p.SeasonalZThreshold <= 0 {
		p.SeasonalZThreshold = 2.0
	}
	if p.SeasonalFallbackStd <= 0 {
		p.SeasonalFallbackStd = 0.1
	}
	if p.HistoricalYears <= 0 {
		p.HistoricalYears = 3
	}
	return p
}
