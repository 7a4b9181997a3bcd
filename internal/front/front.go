// Package front tracks directional invasion spread by comparing early and
// late vegetation composites at points sampled radially around a center.
package front

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/monitoring"
	"github.com/parklands-data/invasive.report/internal/spectral"
	"github.com/parklands-data/invasive.report/internal/temporal"
)

const (
	// comparisonWindowDays is the width of the early and late composites
	// compared at each directional point.
	comparisonWindowDays = 30

	// spreadThresholdPercent is the NIR median increase between the early
	// and late windows that flags likely spread in a direction.
	spreadThresholdPercent = 30.0
)

// compassNames labels directions counter-clockwise from east, matching the
// radial sampling convention.
var compassNames = []string{"E", "NE", "N", "NW", "W", "SW", "S", "SE"}

// DirectionName returns a compass label for the i-th of n radial
// directions. Direction counts above 8 fall back to positional labels.
func DirectionName(i, n int) string {
	if n == 8 {
		return compassNames[i]
	}
	if n == 4 {
		return compassNames[2*i]
	}
	return fmt.Sprintf("D%d", i)
}

// Direction is the spread assessment for a single radial direction.
type Direction struct {
	Name             string    `json:"direction"`
	Point            geo.Point `json:"point"`
	EarlyNIR         float64   `json:"early_nir"`
	LateNIR          float64   `json:"late_nir"`
	ChangePercent    float64   `json:"change_percent"`
	InvasionLikely   bool      `json:"invasion_likely"`
	InsufficientData bool      `json:"insufficient_data,omitempty"`
}

// Report summarizes a radial front-tracking pass.
type Report struct {
	Center           geo.Point   `json:"center"`
	RadiusMeters     float64     `json:"radius_meters"`
	Start            time.Time   `json:"start"`
	End              time.Time   `json:"end"`
	Directions       []Direction `json:"directions"`
	PrimaryDirection []string    `json:"primary_spread_directions"`
	SpreadDetected   bool        `json:"spread_detected"`
}

// Tracker samples the perimeter of a suspected infestation.
type Tracker struct {
	builder *temporal.Builder

	// Logf receives diagnostic output; defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// NewTracker returns a tracker reading imagery from p.
func NewTracker(p spectral.Provider) *Tracker {
	t := &Tracker{Logf: monitoring.Logf}
	t.builder = temporal.NewBuilder(p)
	t.builder.Logf = func(format string, v ...interface{}) { t.logf(format, v...) }
	return t
}

func (t *Tracker) logf(format string, v ...interface{}) {
	if t.Logf != nil {
		t.Logf(format, v...)
	}
}

// Track samples directionCount points on a circle of radiusMeters around
// center and compares the NIR median of the first and last 30 days of
// [start, end] at each point. A direction with too little imagery for
// either window is reported but never flagged. Provider failures abort.
func (t *Tracker) Track(ctx context.Context, center geo.Point, start, end time.Time, radiusMeters float64, directionCount int) (*Report, error) {
	if directionCount <= 0 {
		directionCount = 8
	}
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %f", radiusMeters)
	}
	if end.Sub(start) < 2*comparisonWindowDays*24*time.Hour {
		return nil, fmt.Errorf("window %s to %s too short for early/late comparison",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	earlyEnd := start.AddDate(0, 0, comparisonWindowDays)
	lateStart := end.AddDate(0, 0, -comparisonWindowDays)

	report := &Report{
		Center:       center,
		RadiusMeters: radiusMeters,
		Start:        start,
		End:          end,
	}

	for i := 0; i < directionCount; i++ {
		pt := geo.RadialPoint(center, radiusMeters, i, directionCount)
		dir := Direction{
			Name:  DirectionName(i, directionCount),
			Point: pt,
		}

		early, err := t.nirMedian(ctx, pt, start, earlyEnd)
		if err != nil {
			return nil, fmt.Errorf("direction %s early window: %w", dir.Name, err)
		}
		late, err := t.nirMedian(ctx, pt, lateStart, end)
		if err != nil {
			return nil, fmt.Errorf("direction %s late window: %w", dir.Name, err)
		}

		switch {
		case early == nil || late == nil:
			dir.InsufficientData = true
		case *early > 0:
			dir.EarlyNIR = *early
			dir.LateNIR = *late
			dir.ChangePercent = (*late - *early) / *early * 100
			dir.InvasionLikely = dir.ChangePercent > spreadThresholdPercent
		default:
			dir.EarlyNIR = *early
			dir.LateNIR = *late
		}

		if dir.InvasionLikely {
			report.PrimaryDirection = append(report.PrimaryDirection, dir.Name)
		}
		report.Directions = append(report.Directions, dir)
	}

	report.SpreadDetected = len(report.PrimaryDirection) > 0
	t.logf("front track at (%.4f, %.4f) r=%.0fm: spread in %d/%d directions",
		center.Lon, center.Lat, radiusMeters, len(report.PrimaryDirection), directionCount)
	return report, nil
}

// nirMedian builds a composite over [start, end] and returns its NIR
// median, or nil when the window has too little imagery.
func (t *Tracker) nirMedian(ctx context.Context, pt geo.Point, start, end time.Time) (*float64, error) {
	comp, err := t.builder.Baseline(ctx, pt, start, end, temporal.DefaultIntervalDays)
	if errors.Is(err, temporal.ErrInsufficientData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, ok := comp.Bands[spectral.BandNIR]
	if !ok {
		return nil, nil
	}
	m := st.Median
	return &m, nil
}
