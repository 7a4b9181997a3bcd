package hotspot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/parklands-data/invasive.report/internal/detect"
	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/spectral"
)

var scanOrigin = geo.Point{Lon: -121.60, Lat: 37.90}

// threeByThree returns bounds that grid into exactly 9 cells at 500m.
func threeByThree() geo.Bounds {
	latStep := 500.0 / geo.MetersPerDegreeLat
	lonStep := 500.0 / (geo.MetersPerDegreeLon * math.Cos(scanOrigin.Lat*math.Pi/180))
	// 2.02 steps of span: slack past 2 steps so float accumulation cannot
	// drop the last row or column.
	return geo.Bounds{
		MinLon: scanOrigin.Lon,
		MinLat: scanOrigin.Lat,
		MaxLon: scanOrigin.Lon + 2.02*lonStep,
		MaxLat: scanOrigin.Lat + 2.02*latStep,
	}
}

func quietScanner(p spectral.Provider, params Params) *Scanner {
	det := detect.NewDetector(p, detect.Params{})
	det.Logf = func(string, ...interface{}) {}
	s := NewScanner(det, params)
	s.Logf = func(string, ...interface{}) {}
	return s
}

func seedAnomaly(p *spectral.ScriptedProvider, pt geo.Point, refDate time.Time) {
	for i := 0; i < 8; i++ {
		wobble := 0.01
		if i%2 == 0 {
			wobble = -0.01
		}
		p.AddReading(pt, refDate.AddDate(0, 0, -5*(i+1)), map[string]float64{
			spectral.BandNIR: 0.11 + wobble,
			spectral.BandRed: 0.09 + wobble/2,
		})
	}
	p.AddReading(pt, refDate, map[string]float64{
		spectral.BandNIR: 0.30,
		spectral.BandRed: 0.05,
	})
}

func TestScanSingleFlaggedCell(t *testing.T) {
	bounds := threeByThree()
	cells := bounds.Grid(500)
	if len(cells) != 9 {
		t.Fatalf("grid produced %d cells, want 9", len(cells))
	}

	refDate := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	p := spectral.NewScriptedProvider()
	seedAnomaly(p, cells[4], refDate) // center cell only

	s := quietScanner(p, Params{GridSizeMeters: 500, Workers: 4})
	hotspots, err := s.Scan(context.Background(), bounds, refDate)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(hotspots) != 1 {
		t.Fatalf("got %d hotspots, want 1", len(hotspots))
	}
	h := hotspots[0]
	if h.CellIndex != 4 {
		t.Errorf("cell index = %d, want 4", h.CellIndex)
	}
	if h.Magnitude <= 0 || h.Magnitude > 1 {
		t.Errorf("magnitude = %f, want (0,1]", h.Magnitude)
	}

	// One isolated hotspot clusters to exactly one single-member cluster.
	clusters := s.Cluster(hotspots)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if len(clusters[0].Members) != 1 {
		t.Errorf("cluster has %d members, want 1", len(clusters[0].Members))
	}
	if clusters[0].Center != h.Center {
		t.Errorf("cluster center %+v, want %+v", clusters[0].Center, h.Center)
	}
	if clusters[0].RadiusMeters != 0 {
		t.Errorf("single-member radius = %f, want 0", clusters[0].RadiusMeters)
	}
}

func TestScanDeterministicOrder(t *testing.T) {
	bounds := threeByThree()
	cells := bounds.Grid(500)
	refDate := time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)

	p := spectral.NewScriptedProvider()
	seedAnomaly(p, cells[1], refDate)
	seedAnomaly(p, cells[7], refDate)

	run := func(workers int) []int {
		s := quietScanner(p, Params{GridSizeMeters: 500, Workers: workers})
		hotspots, err := s.Scan(context.Background(), bounds, refDate)
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		idx := make([]int, len(hotspots))
		for i, h := range hotspots {
			idx[i] = h.CellIndex
		}
		return idx
	}

	serial, parallel := run(1), run(8)
	if len(serial) != 2 || len(parallel) != 2 {
		t.Fatalf("got %v and %v, want two flagged cells each", serial, parallel)
	}
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Errorf("ordering differs: serial %v, parallel %v", serial, parallel)
			break
		}
	}
}

func TestScanProviderFailureAborts(t *testing.T) {
	p := spectral.NewScriptedProvider()
	p.Err = errors.New("quota exceeded")

	s := quietScanner(p, Params{GridSizeMeters: 500})
	if _, err := s.Scan(context.Background(), threeByThree(), time.Now()); err == nil {
		t.Error("provider failure must abort the scan")
	}
}

func TestScanInvalidBounds(t *testing.T) {
	s := quietScanner(spectral.NewScriptedProvider(), Params{})
	bad := geo.Bounds{MinLon: 1, MinLat: 1, MaxLon: 0, MaxLat: 0}
	if _, err := s.Scan(context.Background(), bad, time.Now()); err == nil {
		t.Error("inverted bounds must error")
	}
}

func TestScanCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := quietScanner(spectral.NewScriptedProvider(), Params{})
	if _, err := s.Scan(ctx, threeByThree(), time.Now()); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

// syntheticHotspot places a hotspot at the given east/north offset in meters.
func syntheticHotspot(index int, east, north, magnitude float64) Hotspot {
	return Hotspot{
		CellIndex: index,
		Center:    geo.Offset(scanOrigin, east, north),
		Magnitude: magnitude,
	}
}

func TestClusterAbsorbsAroundSeed(t *testing.T) {
	// A, B, C sit 900m apart in a row with a 1000m link distance.
	// B joins A's cluster, but C is 1800m from the seed A and must not
	// be pulled in through B; it seeds its own cluster.
	hotspots := []Hotspot{
		syntheticHotspot(0, 0, 0, 0.5),
		syntheticHotspot(1, 900, 0, 0.6),
		syntheticHotspot(2, 1800, 0, 0.7),
	}

	clusters := ClusterWithin(hotspots, 1000)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2: %+v", len(clusters), clusters)
	}

	// Sorted by descending average magnitude: the lone far cell (0.7)
	// outranks the seed pair (avg 0.55).
	if len(clusters[0].Members) != 1 || clusters[0].Members[0].CellIndex != 2 {
		t.Errorf("first cluster = %+v, want the lone far cell", clusters[0].Members)
	}
	pair := clusters[1]
	if len(pair.Members) != 2 {
		t.Fatalf("second cluster has %d members, want 2", len(pair.Members))
	}
	if pair.Center != hotspots[0].Center {
		t.Errorf("cluster center %+v, want the seed cell %+v", pair.Center, hotspots[0].Center)
	}
	if got := pair.TotalMagnitude; math.Abs(got-1.1) > 1e-9 {
		t.Errorf("total magnitude = %f, want 1.1", got)
	}
	if got := pair.AvgMagnitude; math.Abs(got-0.55) > 1e-9 {
		t.Errorf("avg magnitude = %f, want 0.55", got)
	}
}

func TestClusterSeparatedCellsStayApart(t *testing.T) {
	hotspots := []Hotspot{
		syntheticHotspot(0, 0, 0, 0.5),
		syntheticHotspot(1, 2500, 0, 0.5),
	}
	if got := len(ClusterWithin(hotspots, 1000)); got != 2 {
		t.Errorf("got %d clusters, want 2", got)
	}
}

func TestClusterIdempotent(t *testing.T) {
	hotspots := []Hotspot{
		syntheticHotspot(0, 0, 0, 0.4),
		syntheticHotspot(1, 600, 0, 0.5),
		syntheticHotspot(2, 600, 600, 0.6),
		syntheticHotspot(3, 4000, 4000, 0.2),
		syntheticHotspot(4, 4000, 4600, 0.3),
	}

	shape := func(clusters []Cluster) [][]int {
		out := make([][]int, len(clusters))
		for i, c := range clusters {
			for _, m := range c.Members {
				out[i] = append(out[i], m.CellIndex)
			}
		}
		return out
	}

	first := shape(ClusterWithin(hotspots, 1000))
	second := shape(ClusterWithin(hotspots, 1000))
	if len(first) != len(second) {
		t.Fatalf("cluster count changed between runs: %v vs %v", first, second)
	}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("cluster %d changed between runs: %v vs %v", i, first, second)
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Errorf("cluster %d member %d differs: %v vs %v", i, j, first, second)
			}
		}
	}
}

func TestClusterEmptyInput(t *testing.T) {
	if got := ClusterWithin(nil, 1000); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestParamsScanDefaults(t *testing.T) {
	p := Params{}.withDefaults()
	if p.GridSizeMeters != 500 || p.Sensitivity != 1.5 || p.BaselineDays != 60 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.Workers < 1 {
		t.Errorf("workers = %d, want >= 1", p.Workers)
	}
}
