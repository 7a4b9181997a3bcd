// Package temporal builds statistical composites of reflectance samples
// over time windows. A composite summarises each band's distribution so the
// change detector can score new observations against it.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/monitoring"
	"github.com/parklands-data/invasive.report/internal/spectral"
)

// MinSamples is the minimum number of valid samples needed before percentile
// and spread estimates are considered stable.
const MinSamples = 3

// DefaultIntervalDays is the provider sampling cadence used when the caller
// passes a non-positive interval.
const DefaultIntervalDays = 5

// ErrInsufficientData reports that a window did not yield enough samples to
// build a composite. It is an expected outcome for cloudy or sparse periods,
// not an infrastructure failure.
var ErrInsufficientData = errors.New("insufficient samples for composite")

// BandStats summarises one band's distribution across a window.
type BandStats struct {
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
	P90    float64 `json:"p90"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// Composite is the per-band statistical summary of a location over a window.
// Composites are immutable once built.
type Composite struct {
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Point       geo.Point            `json:"point"`
	SampleCount int                  `json:"sample_count"`
	Bands       map[string]BandStats `json:"bands"`
}

// Median returns the window median for a band, or (0, false) when the band
// had too few valid values to summarise.
func (c *Composite) Median(band string) (float64, bool) {
	bs, ok := c.Bands[band]
	if !ok {
		return 0, false
	}
	return bs.Median, true
}

// NDVI derives the vegetation index from the composite's median red and NIR
// reflectance. Either band missing, or a zero denominator, yields 0.
func (c *Composite) NDVI() float64 {
	nir, okN := c.Median(spectral.BandNIR)
	red, okR := c.Median(spectral.BandRed)
	if !okN || !okR {
		return 0
	}
	return spectral.NDVI(nir, red)
}

// Builder constructs composites from a sample provider.
type Builder struct {
	Provider spectral.Provider

	// Logf receives diagnostic output; defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// NewBuilder creates a Builder backed by the given provider.
func NewBuilder(p spectral.Provider) *Builder {
	return &Builder{Provider: p, Logf: monitoring.Logf}
}

func (b *Builder) logf(format string, v ...interface{}) {
	if b.Logf != nil {
		b.Logf(format, v...)
	}
}

// Baseline builds a composite over [start, end] at pt, sampling the provider
// every intervalDays. It returns ErrInsufficientData when fewer than
// MinSamples samples exist; provider infrastructure errors propagate as-is.
func (b *Builder) Baseline(ctx context.Context, pt geo.Point, start, end time.Time, intervalDays int) (*Composite, error) {
	if intervalDays <= 0 {
		intervalDays = DefaultIntervalDays
	}

	samples, err := b.Provider.SamplesInRange(ctx, pt, start, end, intervalDays)
	if err != nil {
		return nil, fmt.Errorf("fetch samples for baseline: %w", err)
	}

	if len(samples) < MinSamples {
		b.logf("baseline at (%.4f, %.4f): only %d samples in %s..%s",
			pt.Lon, pt.Lat, len(samples), start.Format("2006-01-02"), end.Format("2006-01-02"))
		return nil, ErrInsufficientData
	}

	// Collect per-band values independently; a band occluded in one sample
	// can still be summarised from the others.
	byBand := make(map[string][]float64)
	for _, s := range samples {
		for band, v := range s.Bands {
			byBand[band] = append(byBand[band], v)
		}
	}

	bands := make(map[string]BandStats, len(byBand))
	for band, values := range byBand {
		if len(values) < MinSamples {
			// Too few valid readings for a stable spread estimate; the band
			// is omitted rather than reported with degenerate statistics.
			continue
		}
		sort.Float64s(values)
		bands[band] = BandStats{
			Median: stat.Quantile(0.5, stat.LinInterp, values, nil),
			P10:    stat.Quantile(0.1, stat.LinInterp, values, nil),
			P90:    stat.Quantile(0.9, stat.LinInterp, values, nil),
			StdDev: stat.StdDev(values, nil),
			Count:  len(values),
		}
	}

	return &Composite{
		Start:       start,
		End:         end,
		Point:       pt,
		SampleCount: len(samples),
		Bands:       bands,
	}, nil
}
