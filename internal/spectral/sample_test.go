package spectral

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

func TestNDVI(t *testing.T) {
	tests := []struct {
		name     string
		nir, red float64
		expected float64
	}{
		{"healthy vegetation", 0.30, 0.05, 0.7142857},
		{"bare soil", 0.15, 0.12, 0.1111111},
		{"water", 0.02, 0.05, -0.4285714},
		{"zero denominator", 0, 0, 0},
		{"reflection cancellation", 0.1, -0.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NDVI(tt.nir, tt.red)
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("NDVI(%f, %f) = %f, want %f", tt.nir, tt.red, got, tt.expected)
			}
		})
	}
}

func TestSampleNDVIMissingBand(t *testing.T) {
	s := &Sample{Bands: map[string]float64{BandRed: 0.05}}
	if got := s.NDVI(); got != 0 {
		t.Errorf("NDVI with missing NIR = %f, want 0", got)
	}
}

func TestScriptedProviderMatching(t *testing.T) {
	pt := geo.Point{Lon: -121.5969, Lat: 37.9089}
	date := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)

	p := NewScriptedProvider()
	p.AddReading(pt, date, map[string]float64{BandNIR: 0.3, BandRed: 0.05})

	s, err := p.Sample(context.Background(), pt, date.AddDate(0, 0, 1), 0)
	if err != nil {
		t.Fatalf("Sample() error: %v", err)
	}
	if s == nil {
		t.Fatal("expected match within window, got nil")
	}

	// Too far in time.
	s, err = p.Sample(context.Background(), pt, date.AddDate(0, 0, 30), 0)
	if err != nil {
		t.Fatalf("Sample() error: %v", err)
	}
	if s != nil {
		t.Error("expected no match outside time window")
	}

	// Too far in space.
	far := geo.Offset(pt, 5000, 0)
	s, err = p.Sample(context.Background(), far, date, 0)
	if err != nil {
		t.Fatalf("Sample() error: %v", err)
	}
	if s != nil {
		t.Error("expected no match outside radius")
	}
}

func TestScriptedProviderError(t *testing.T) {
	p := NewScriptedProvider()
	p.Err = errors.New("quota exceeded")

	if _, err := p.Sample(context.Background(), geo.Point{}, time.Now(), 0); err == nil {
		t.Error("expected provider error to propagate")
	}
	if _, err := p.SamplesInRange(context.Background(), geo.Point{}, time.Now(), time.Now().AddDate(0, 0, 30), 5); err == nil {
		t.Error("expected provider error to propagate from range query")
	}
}

func TestScriptedProviderRangeDedup(t *testing.T) {
	pt := geo.Point{Lon: -121.5969, Lat: 37.9089}
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	p := NewScriptedProvider()
	// One sample every 10 days; query at 5-day steps must not double count.
	for i := 0; i < 3; i++ {
		p.AddReading(pt, start.AddDate(0, 0, i*10), map[string]float64{BandNIR: 0.2, BandRed: 0.1})
	}

	samples, err := p.SamplesInRange(context.Background(), pt, start, start.AddDate(0, 0, 25), 5)
	if err != nil {
		t.Fatalf("SamplesInRange() error: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("got %d samples, want 3", len(samples))
	}
}

func TestScriptedProviderContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewScriptedProvider()
	if _, err := p.Sample(ctx, geo.Point{}, time.Now(), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
