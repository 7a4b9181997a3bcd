// Package detect implements the three change-detection modes over spectral
// time series: sudden per-band anomalies against a baseline composite,
// gradual NDVI trends over a sliding window, and seasonal (phenological)
// deviations against historical years.
package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/parklands-data/invasive.report/internal/geo"
)

// Category distinguishes the temporal signature of a detected change.
type Category string

const (
	// CategorySudden is a single-observation anomaly against a baseline.
	CategorySudden Category = "sudden"
	// CategoryGradual is a sustained trend across a sliding window.
	CategoryGradual Category = "gradual"
	// CategorySeasonal is a year-over-year phenological deviation.
	CategorySeasonal Category = "seasonal"
)

// Event is an immutable record of one detected change. Magnitude and
// Confidence are normalized to [0,1] for every category.
type Event struct {
	ID            string                 `json:"id"`
	Point         geo.Point              `json:"point"`
	Date          time.Time              `json:"date"`
	Category      Category               `json:"category"`
	Magnitude     float64                `json:"magnitude"`
	Confidence    float64                `json:"confidence"`
	AffectedBands []string               `json:"affected_bands"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

func newEvent(pt geo.Point, date time.Time, cat Category) Event {
	return Event{
		ID:       uuid.New().String(),
		Point:    pt,
		Date:     date,
		Category: cat,
	}
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
