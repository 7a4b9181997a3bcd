// Package spectral defines multi-band reflectance samples and the provider
// boundary through which satellite imagery enters the pipeline.
package spectral

import (
	"context"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

// Sentinel-2 band names used throughout the pipeline. Band B4 is red and
// B8 is near-infrared; together they form NDVI.
const (
	BandBlue  = "B2"
	BandGreen = "B3"
	BandRed   = "B4"
	BandNIR   = "B8"
	BandSWIR1 = "B11"
	BandSWIR2 = "B12"
)

// DefaultBands is the band set requested from providers when the caller
// does not specify one.
var DefaultBands = []string{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR1, BandSWIR2}

// Sample is a single multi-band reflectance reading at a point in time and
// space. Samples are produced by a Provider and treated as immutable by all
// downstream consumers.
type Sample struct {
	Point        geo.Point          `json:"point"`
	AcquiredAt   time.Time          `json:"acquired_at"`
	Source       string             `json:"source"`
	Bands        map[string]float64 `json:"bands"` // absent key = band occluded/unavailable
	CloudPercent float64            `json:"cloud_percent"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// Band returns the reflectance for the named band and whether it is present.
func (s *Sample) Band(name string) (float64, bool) {
	v, ok := s.Bands[name]
	return v, ok
}

// NDVI computes the normalized difference vegetation index from the sample's
// red and NIR bands. Missing bands or a zero denominator yield 0.
func (s *Sample) NDVI() float64 {
	nir, okN := s.Bands[BandNIR]
	red, okR := s.Bands[BandRed]
	if !okN || !okR {
		return 0
	}
	return NDVI(nir, red)
}

// NDVI computes (nir-red)/(nir+red) with a divide-by-zero guard.
func NDVI(nir, red float64) float64 {
	if nir+red == 0 {
		return 0
	}
	return (nir - red) / (nir + red)
}

// Provider supplies reflectance samples for locations and dates. "No imagery
// available" is a normal outcome reported as a nil sample with a nil error;
// a non-nil error always means an infrastructure failure (auth, network,
// quota) that the caller must handle rather than treat as clear imagery.
type Provider interface {
	// Sample returns the reflectance reading closest to date at pt, averaged
	// over bufferMeters, or (nil, nil) when no usable imagery exists.
	Sample(ctx context.Context, pt geo.Point, date time.Time, bufferMeters float64) (*Sample, error)

	// SamplesInRange returns readings at fixed intervals across [start, end].
	// Dates without imagery are simply absent from the result.
	SamplesInRange(ctx context.Context, pt geo.Point, start, end time.Time, intervalDays int) ([]*Sample, error)
}
