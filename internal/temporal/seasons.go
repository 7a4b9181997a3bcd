package temporal

import (
	"context"
	"errors"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/spectral"
)

// Season identifies one of the four fixed calendar seasons used for
// phenological analysis.
type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Fall   Season = "fall"
	Winter Season = "winter"
)

// Seasons lists the seasons in analysis order.
var Seasons = []Season{Spring, Summer, Fall, Winter}

// SeasonOf maps a calendar month to its season: 3-5 spring, 6-8 summer,
// 9-11 fall, everything else winter.
func SeasonOf(month time.Month) Season {
	switch {
	case month >= time.March && month <= time.May:
		return Spring
	case month >= time.June && month <= time.August:
		return Summer
	case month >= time.September && month <= time.November:
		return Fall
	default:
		return Winter
	}
}

// SeasonWindow returns the date range of a season within the given year.
// Winter spans December of the prior year through the end of February.
func SeasonWindow(s Season, year int) (time.Time, time.Time) {
	switch s {
	case Spring:
		return date(year, 3, 1), date(year, 5, 31)
	case Summer:
		return date(year, 6, 1), date(year, 8, 31)
	case Fall:
		return date(year, 9, 1), date(year, 11, 30)
	default:
		// End of February, leap-year aware: day 0 of March.
		return date(year-1, 12, 1), time.Date(year, 3, 0, 0, 0, 0, 0, time.UTC)
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SeasonProfile summarises vegetation activity for one season.
type SeasonProfile struct {
	NDVI         float64 `json:"ndvi"`
	NIR          float64 `json:"nir_reflectance"`
	Red          float64 `json:"red_reflectance"`
	Observations int     `json:"num_observations"`
}

// Phenology is the annual seasonal vegetation profile of a location.
type Phenology struct {
	Point    geo.Point                `json:"point"`
	Year     int                      `json:"year"`
	Seasons  map[Season]SeasonProfile `json:"seasonal_patterns"`
	PeakNDVI Season                   `json:"peak_growing_season,omitempty"`
}

// AnnualPhenology builds a per-season composite for the year and derives
// NDVI per season. Seasons without enough imagery are simply absent; a year
// with no analysable season at all still returns an empty (non-nil) profile.
func (b *Builder) AnnualPhenology(ctx context.Context, pt geo.Point, year int) (*Phenology, error) {
	p := &Phenology{
		Point:   pt,
		Year:    year,
		Seasons: make(map[Season]SeasonProfile),
	}

	for _, season := range Seasons {
		start, end := SeasonWindow(season, year)
		comp, err := b.Baseline(ctx, pt, start, end, DefaultIntervalDays)
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, err
		}

		nir, _ := comp.Median(spectral.BandNIR)
		red, _ := comp.Median(spectral.BandRed)
		p.Seasons[season] = SeasonProfile{
			NDVI:         comp.NDVI(),
			NIR:          nir,
			Red:          red,
			Observations: comp.SampleCount,
		}
	}

	best := -2.0
	for _, season := range Seasons {
		if profile, ok := p.Seasons[season]; ok && profile.NDVI > best {
			best = profile.NDVI
			p.PeakNDVI = season
		}
	}

	return p, nil
}
