package front

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/spectral"
)

var frontCenter = geo.Point{Lon: -121.60, Lat: 37.90}

func quietTracker(p spectral.Provider) *Tracker {
	t := NewTracker(p)
	t.Logf = func(string, ...interface{}) {}
	return t
}

// seedWindow registers samples every 5 days from start with a fixed NIR.
func seedWindow(p *spectral.ScriptedProvider, pt geo.Point, start time.Time, count int, nir float64) {
	for i := 0; i < count; i++ {
		p.AddReading(pt, start.AddDate(0, 0, 5*i), map[string]float64{
			spectral.BandNIR: nir,
			spectral.BandRed: 0.08,
		})
	}
}

func TestTrackFlagsSpreadDirection(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	// Only the northern perimeter point has imagery, and its NIR doubles
	// between the early and late windows.
	north := geo.RadialPoint(frontCenter, 500, 2, 8)
	p := spectral.NewScriptedProvider()
	seedWindow(p, north, start, 4, 0.10)
	seedWindow(p, north, end.AddDate(0, 0, -30), 4, 0.20)

	tr := quietTracker(p)
	report, err := tr.Track(context.Background(), frontCenter, start, end, 500, 8)
	if err != nil {
		t.Fatalf("Track() error: %v", err)
	}

	if !report.SpreadDetected {
		t.Error("spread not detected for doubled NIR")
	}
	if len(report.PrimaryDirection) != 1 || report.PrimaryDirection[0] != "N" {
		t.Errorf("primary directions = %v, want [N]", report.PrimaryDirection)
	}
	if len(report.Directions) != 8 {
		t.Fatalf("got %d directions, want 8", len(report.Directions))
	}

	insufficient := 0
	for _, d := range report.Directions {
		if d.Name == "N" {
			if !d.InvasionLikely {
				t.Error("north direction not flagged")
			}
			if d.ChangePercent < 80 || d.ChangePercent > 120 {
				t.Errorf("north change = %f%%, want ~100%%", d.ChangePercent)
			}
			continue
		}
		if d.InvasionLikely {
			t.Errorf("direction %s flagged without imagery", d.Name)
		}
		if d.InsufficientData {
			insufficient++
		}
	}
	if insufficient != 7 {
		t.Errorf("%d directions marked insufficient, want 7", insufficient)
	}
}

func TestTrackBelowThresholdNotFlagged(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	east := geo.RadialPoint(frontCenter, 500, 0, 4)
	p := spectral.NewScriptedProvider()
	// +20% NIR: real growth but under the 30% spread threshold.
	seedWindow(p, east, start, 4, 0.10)
	seedWindow(p, east, end.AddDate(0, 0, -30), 4, 0.12)

	tr := quietTracker(p)
	report, err := tr.Track(context.Background(), frontCenter, start, end, 500, 4)
	if err != nil {
		t.Fatalf("Track() error: %v", err)
	}
	if report.SpreadDetected {
		t.Errorf("spread detected below threshold: %v", report.PrimaryDirection)
	}
}

func TestTrackProviderFailureAborts(t *testing.T) {
	p := spectral.NewScriptedProvider()
	p.Err = errors.New("auth expired")

	tr := quietTracker(p)
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := tr.Track(context.Background(), frontCenter, start, start.AddDate(0, 0, 90), 500, 4); err == nil {
		t.Error("provider failure must abort tracking")
	}
}

func TestTrackWindowTooShort(t *testing.T) {
	tr := quietTracker(spectral.NewScriptedProvider())
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := tr.Track(context.Background(), frontCenter, start, start.AddDate(0, 0, 45), 500, 4); err == nil {
		t.Error("sub-60-day window must error: early and late windows would overlap")
	}
}

func TestDirectionName(t *testing.T) {
	tests := []struct {
		i, n int
		want string
	}{
		{0, 8, "E"},
		{2, 8, "N"},
		{6, 8, "S"},
		{7, 8, "SE"},
		{0, 4, "E"},
		{1, 4, "N"},
		{3, 4, "S"},
		{5, 12, "D5"},
	}
	for _, tt := range tests {
		if got := DirectionName(tt.i, tt.n); got != tt.want {
			t.Errorf("DirectionName(%d, %d) = %s, want %s", tt.i, tt.n, got, tt.want)
		}
	}
}
