package spectral

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

// ScriptedProvider is an in-memory Provider for tests and replay. Samples
// are registered up front; lookups match by proximity in space and time.
//
// Set Err to force every call to fail, which models provider-side
// infrastructure errors (auth, quota) as opposed to missing imagery.
type ScriptedProvider struct {
	mu      sync.Mutex
	samples []*Sample

	// MatchRadiusMeters bounds how far a registered sample may be from the
	// queried point and still match. Default 50m.
	MatchRadiusMeters float64

	// MatchWindow bounds the time distance for a match. Default 3 days.
	MatchWindow time.Duration

	// Err, when non-nil, is returned from every call.
	Err error

	// Calls counts provider invocations, for asserting fetch behaviour.
	Calls int
}

// NewScriptedProvider creates an empty scripted provider with defaults.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{
		MatchRadiusMeters: 50,
		MatchWindow:       3 * 24 * time.Hour,
	}
}

// Add registers a sample for later lookup.
func (p *ScriptedProvider) Add(s *Sample) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, s)
	return p
}

// AddReading is a convenience that registers a sample with the given bands.
func (p *ScriptedProvider) AddReading(pt geo.Point, date time.Time, bands map[string]float64) *ScriptedProvider {
	return p.Add(&Sample{
		Point:      pt,
		AcquiredAt: date,
		Source:     "scripted",
		Bands:      bands,
	})
}

// Sample returns the registered sample nearest to (pt, date) within the
// match tolerances, or (nil, nil) when none qualifies.
func (p *ScriptedProvider) Sample(ctx context.Context, pt geo.Point, date time.Time, bufferMeters float64) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++

	if p.Err != nil {
		return nil, p.Err
	}

	var best *Sample
	bestScore := math.Inf(1)
	for _, s := range p.samples {
		d := geo.Haversine(pt, s.Point)
		dt := date.Sub(s.AcquiredAt)
		if dt < 0 {
			dt = -dt
		}
		if d > p.MatchRadiusMeters || dt > p.MatchWindow {
			continue
		}
		// Prefer temporally closer samples; break ties by distance.
		score := dt.Hours()*1000 + d
		if score < bestScore {
			bestScore = score
			best = s
		}
	}
	return best, nil
}

// SamplesInRange walks [start, end] at the given interval, collecting the
// samples that match each step date.
func (p *ScriptedProvider) SamplesInRange(ctx context.Context, pt geo.Point, start, end time.Time, intervalDays int) ([]*Sample, error) {
	if intervalDays <= 0 {
		intervalDays = 5
	}

	var out []*Sample
	seen := make(map[*Sample]bool)
	for d := start; !d.After(end); d = d.AddDate(0, 0, intervalDays) {
		s, err := p.Sample(ctx, pt, d, 0)
		if err != nil {
			return nil, err
		}
		// The same registered sample can match adjacent step dates when the
		// interval is shorter than the match window; report it once.
		if s != nil && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
