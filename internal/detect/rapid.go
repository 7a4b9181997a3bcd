package detect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/spectral"
)

// rapidChangePercent is the band-mean shift that counts as a rapid change.
const rapidChangePercent = 20.0

// BandShift describes a before/after mean change in one band.
type BandShift struct {
	Band          string  `json:"band"`
	BeforeMean    float64 `json:"before_mean"`
	AfterMean     float64 `json:"after_mean"`
	ChangePercent float64 `json:"change_percent"`
	Direction     string  `json:"direction"` // "increase" or "decrease"
}

// RapidChangeReport summarises band-mean shifts around a reference date.
type RapidChangeReport struct {
	Point        geo.Point   `json:"point"`
	Reference    time.Time   `json:"reference_date"`
	BeforeStart  time.Time   `json:"before_start"`
	AfterEnd     time.Time   `json:"after_end"`
	BeforeCount  int         `json:"before_count"`
	AfterCount   int         `json:"after_count"`
	Shifts       []BandShift `json:"changes_detected"`
	RapidChange  bool        `json:"rapid_change_detected"`
	Insufficient bool        `json:"insufficient_data"`
}

// RapidChanges compares per-band sample means in a lookback window before
// refDate against a lookahead window after it. Fewer than two samples on
// either side marks the report insufficient rather than failing.
func (d *Detector) RapidChanges(ctx context.Context, pt geo.Point, refDate time.Time, lookbackDays, lookaheadDays, intervalDays int) (*RapidChangeReport, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if lookaheadDays <= 0 {
		lookaheadDays = 30
	}
	if intervalDays <= 0 {
		intervalDays = d.params.SampleIntervalDays
	}

	report := &RapidChangeReport{
		Point:       pt,
		Reference:   refDate,
		BeforeStart: refDate.AddDate(0, 0, -lookbackDays),
		AfterEnd:    refDate.AddDate(0, 0, lookaheadDays),
	}

	before, err := d.provider.SamplesInRange(ctx, pt, report.BeforeStart, refDate, intervalDays)
	if err != nil {
		return nil, fmt.Errorf("fetch lookback samples: %w", err)
	}
	after, err := d.provider.SamplesInRange(ctx, pt, refDate, report.AfterEnd, intervalDays)
	if err != nil {
		return nil, fmt.Errorf("fetch lookahead samples: %w", err)
	}

	report.BeforeCount = len(before)
	report.AfterCount = len(after)
	if len(before) < 2 || len(after) < 2 {
		report.Insufficient = true
		d.logf("rapid change at (%.4f, %.4f): insufficient samples (%d before, %d after)",
			pt.Lon, pt.Lat, len(before), len(after))
		return report, nil
	}

	for _, band := range bandUnion(before, after) {
		beforeMean, okB := bandMean(before, band)
		afterMean, okA := bandMean(after, band)
		if !okB || !okA || beforeMean == 0 {
			continue
		}

		changePct := (afterMean - beforeMean) / beforeMean * 100
		if math.Abs(changePct) <= rapidChangePercent {
			continue
		}

		direction := "increase"
		if changePct < 0 {
			direction = "decrease"
		}
		report.Shifts = append(report.Shifts, BandShift{
			Band:          band,
			BeforeMean:    beforeMean,
			AfterMean:     afterMean,
			ChangePercent: changePct,
			Direction:     direction,
		})
	}

	report.RapidChange = len(report.Shifts) > 0
	return report, nil
}

func bandUnion(groups ...[]*spectral.Sample) []string {
	set := make(map[string]bool)
	for _, group := range groups {
		for _, s := range group {
			for band := range s.Bands {
				set[band] = true
			}
		}
	}
	bands := make([]string, 0, len(set))
	for band := range set {
		bands = append(bands, band)
	}
	sort.Strings(bands)
	return bands
}

func bandMean(samples []*spectral.Sample, band string) (float64, bool) {
	var sum float64
	var n int
	for _, s := range samples {
		if v, ok := s.Bands[band]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
