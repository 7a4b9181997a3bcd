package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/monitoring"
	"github.com/parklands-data/invasive.report/internal/spectral"
	"github.com/parklands-data/invasive.report/internal/temporal"
)

// Detector runs the change-detection modes against a sample provider.
// Detector methods are stateless and safe for concurrent use.
type Detector struct {
	provider spectral.Provider
	builder  *temporal.Builder
	params   Params

	// Logf receives diagnostic output; defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// NewDetector creates a Detector with the given provider and params. Zero
// fields in params take their documented defaults.
func NewDetector(p spectral.Provider, params Params) *Detector {
	b := temporal.NewBuilder(p)
	d := &Detector{
		provider: p,
		builder:  b,
		params:   params.withDefaults(),
		Logf:     monitoring.Logf,
	}
	b.Logf = func(format string, v ...interface{}) { d.logf(format, v...) }
	return d
}

// Params returns the effective (default-filled) parameters.
func (d *Detector) Params() Params { return d.params }

func (d *Detector) logf(format string, v ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, v...)
	}
}

// Anomalies detects sudden per-band deviations at pt on refDate against a
// baseline built over the preceding baselineDays. The baseline window
// ends the day before refDate, so the observation under test never
// contributes to its own reference distribution. sensitivity is the
// z-score threshold; pass 0 for the configured default.
//
// Missing imagery (no buildable baseline or no current sample) is a
// normal outcome and yields an empty result with a nil error. Provider
// infrastructure failures propagate.
func (d *Detector) Anomalies(ctx context.Context, pt geo.Point, refDate time.Time, baselineDays int, sensitivity float64) ([]Event, error) {
	if baselineDays <= 0 {
		baselineDays = d.params.BaselineWindowDays
	}
	if sensitivity <= 0 {
		sensitivity = d.params.Sensitivity
	}

	baselineStart := refDate.AddDate(0, 0, -baselineDays)
	baselineEnd := refDate.AddDate(0, 0, -1)
	baseline, err := d.builder.Baseline(ctx, pt, baselineStart, baselineEnd, d.params.SampleIntervalDays)
	if errors.Is(err, temporal.ErrInsufficientData) {
		d.logf("anomaly scan at (%.4f, %.4f): no baseline for %s", pt.Lon, pt.Lat, refDate.Format("2006-01-02"))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	current, err := d.provider.Sample(ctx, pt, refDate, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch current sample: %w", err)
	}
	if current == nil {
		return nil, nil
	}

	bands := make([]string, 0, len(current.Bands))
	for band := range current.Bands {
		bands = append(bands, band)
	}
	sort.Strings(bands)

	var (
		flagged   []string
		zScores   []float64
		anomalies []map[string]interface{}
	)
	for _, band := range bands {
		bs, ok := baseline.Bands[band]
		if !ok || bs.StdDev == 0 {
			// A zero spread means the baseline carries no variance
			// information for this band; flagging it would produce an
			// unbounded z-score.
			continue
		}
		value := current.Bands[band]
		z := math.Abs(value-bs.Median) / bs.StdDev
		if z <= sensitivity {
			continue
		}

		flagged = append(flagged, band)
		zScores = append(zScores, z)
		anomaly := map[string]interface{}{
			"band":            band,
			"z_score":         z,
			"baseline_median": bs.Median,
			"current_value":   value,
		}
		if bs.Median != 0 {
			anomaly["change_percent"] = (value - bs.Median) / bs.Median * 100
		}
		anomalies = append(anomalies, anomaly)
	}

	if len(flagged) == 0 {
		return nil, nil
	}

	// Cap extreme z-scores so a single runaway band cannot dominate the
	// normalized magnitude; corroborating bands raise confidence, saturating
	// at five.
	var sum float64
	for _, z := range zScores {
		sum += math.Min(z/5, 1)
	}

	ev := newEvent(pt, current.AcquiredAt, CategorySudden)
	ev.Magnitude = clamp01(sum / float64(len(zScores)))
	ev.Confidence = clamp01(0.2 * float64(len(flagged)))
	ev.AffectedBands = flagged
	ev.Metadata = map[string]interface{}{
		"baseline_period": fmt.Sprintf("%s to %s",
			baselineStart.Format("2006-01-02"), baselineEnd.Format("2006-01-02")),
		"baseline_samples": baseline.SampleCount,
		"anomalies":        anomalies,
	}
	d.logf("sudden change at (%.4f, %.4f) on %s: %d band(s), magnitude %.2f",
		pt.Lon, pt.Lat, refDate.Format("2006-01-02"), len(flagged), ev.Magnitude)

	return []Event{ev}, nil
}

// GradualTrend slides a window across [start, end] and emits an event each
// time the trailing NDVI slope exceeds the configured threshold. Windows
// without enough imagery are skipped silently.
func (d *Detector) GradualTrend(ctx context.Context, pt geo.Point, start, end time.Time, windowDays, stepDays int) ([]Event, error) {
	if windowDays <= 0 {
		windowDays = d.params.GradualWindowDays
	}
	if stepDays <= 0 {
		stepDays = d.params.GradualStepDays
	}

	var (
		events []Event
		buffer []float64
	)
	for cur := start.AddDate(0, 0, windowDays); !cur.After(end); cur = cur.AddDate(0, 0, stepDays) {
		comp, err := d.builder.Baseline(ctx, pt, cur.AddDate(0, 0, -windowDays), cur, d.params.SampleIntervalDays)
		if errors.Is(err, temporal.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, err
		}

		buffer = append(buffer, comp.NDVI())
		if len(buffer) > d.params.TrendBufferSize {
			buffer = buffer[1:]
		}
		if len(buffer) < d.params.TrendMinPoints {
			continue
		}

		xs := make([]float64, len(buffer))
		for i := range xs {
			xs[i] = float64(i)
		}
		_, slope := stat.LinearRegression(xs, buffer, nil, false)

		if slope <= d.params.SlopeThreshold {
			continue
		}

		ev := newEvent(pt, cur, CategoryGradual)
		ev.Magnitude = clamp01(math.Abs(slope) * 10)
		ev.Confidence = gradualConfidence
		ev.AffectedBands = []string{spectral.BandNIR, spectral.BandRed}
		ev.Metadata = map[string]interface{}{
			"trend_slope": slope,
			"ndvi_values": append([]float64(nil), buffer...),
			"window_days": windowDays,
		}
		events = append(events, ev)
		d.logf("gradual greening at (%.4f, %.4f) through %s: slope %.3f",
			pt.Lon, pt.Lat, cur.Format("2006-01-02"), slope)
	}

	return events, nil
}

// PhenologicalAnomalies compares each season of year against the same
// season across historicalYears prior years. With no usable history the
// scan is skipped (logged, empty result).
func (d *Detector) PhenologicalAnomalies(ctx context.Context, pt geo.Point, year, historicalYears int) ([]Event, error) {
	if historicalYears <= 0 {
		historicalYears = d.params.HistoricalYears
	}

	current, err := d.builder.AnnualPhenology(ctx, pt, year)
	if err != nil {
		return nil, err
	}

	var history []*temporal.Phenology
	for y := year - historicalYears; y < year; y++ {
		ph, err := d.builder.AnnualPhenology(ctx, pt, y)
		if err != nil {
			return nil, err
		}
		if len(ph.Seasons) > 0 {
			history = append(history, ph)
		}
	}
	if len(history) == 0 {
		d.logf("phenology at (%.4f, %.4f): no historical data for %d", pt.Lon, pt.Lat, year)
		return nil, nil
	}

	var events []Event
	for _, season := range temporal.Seasons {
		currentNDVI := current.Seasons[season].NDVI

		histNDVI := make([]float64, len(history))
		for i, hp := range history {
			histNDVI[i] = hp.Seasons[season].NDVI
		}

		mean := stat.Mean(histNDVI, nil)
		std := d.params.SeasonalFallbackStd
		if len(histNDVI) > 1 {
			std = stat.PopStdDev(histNDVI, nil)
		}
		if std == 0 {
			std = d.params.SeasonalFallbackStd
		}

		z := math.Abs(currentNDVI-mean) / std
		if z <= d.params.SeasonalZThreshold {
			continue
		}

		ev := newEvent(pt, time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC), CategorySeasonal)
		ev.Magnitude = clamp01(z / 4)
		ev.Confidence = seasonalConfidence
		ev.AffectedBands = []string{spectral.BandNIR, spectral.BandRed}
		ev.Metadata = map[string]interface{}{
			"season":          string(season),
			"current_ndvi":    currentNDVI,
			"historical_mean": mean,
			"historical_std":  std,
			"z_score":         z,
		}
		events = append(events, ev)
		d.logf("phenological anomaly at (%.4f, %.4f): %s %d z=%.2f", pt.Lon, pt.Lat, season, year, z)
	}

	return events, nil
}
