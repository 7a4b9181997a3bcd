package plot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/hotspot"
)

func assertPNG(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("output file is empty")
	}
}

func TestNDVITrend(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	var series []TrendPoint
	for i := 0; i < 10; i++ {
		series = append(series, TrendPoint{
			Date: start.AddDate(0, 0, 15*i),
			NDVI: 0.1 + 0.02*float64(i),
		})
	}

	path := filepath.Join(t.TempDir(), "trend.png")
	if err := NDVITrend(path, "NDVI trend", series); err != nil {
		t.Fatalf("NDVITrend() error: %v", err)
	}
	assertPNG(t, path)
}

func TestNDVITrendEmpty(t *testing.T) {
	if err := NDVITrend(filepath.Join(t.TempDir(), "x.png"), "empty", nil); err == nil {
		t.Error("empty series must error")
	}
}

func TestHotspotMap(t *testing.T) {
	origin := geo.Point{Lon: -121.60, Lat: 37.90}
	hotspots := []hotspot.Hotspot{
		{CellIndex: 0, Center: origin, Magnitude: 0.3},
		{CellIndex: 1, Center: geo.Offset(origin, 500, 0), Magnitude: 0.9},
	}
	clusters := hotspot.ClusterWithin(hotspots, 1000)

	path := filepath.Join(t.TempDir(), "map.png")
	if err := HotspotMap(path, "hotspots", hotspots, clusters); err != nil {
		t.Fatalf("HotspotMap() error: %v", err)
	}
	assertPNG(t, path)
}

func TestHotspotMapEmpty(t *testing.T) {
	if err := HotspotMap(filepath.Join(t.TempDir(), "x.png"), "empty", nil, nil); err == nil {
		t.Error("no hotspots must error")
	}
}
