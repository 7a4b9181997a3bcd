// Package hotspot grids a region, scans every cell for sudden spectral
// anomalies, and groups the flagged cells into spatial clusters.
package hotspot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parklands-data/invasive.report/internal/detect"
	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/monitoring"
)

// Defaults for a regional scan. Hotspot scans run at a lower z threshold
// and a shorter baseline than point detection so that weak but spatially
// coherent signals still surface; clustering then filters the noise.
const (
	DefaultGridSizeMeters = 500.0
	DefaultSensitivity    = 1.5
	DefaultBaselineDays   = 60
)

// Hotspot is a single flagged grid cell.
type Hotspot struct {
	CellIndex  int       `json:"cell_index"`
	Center     geo.Point `json:"center"`
	Date       time.Time `json:"date"`
	Magnitude  float64   `json:"magnitude"`
	Confidence float64   `json:"confidence"`
	Bands      []string  `json:"affected_bands,omitempty"`
}

// Cluster is a group of hotspots within linking distance of a shared
// seed cell. Center is the seed's location.
type Cluster struct {
	ID             string    `json:"id"`
	Center         geo.Point `json:"center"`
	Members        []Hotspot `json:"members"`
	AvgMagnitude   float64   `json:"avg_magnitude"`
	TotalMagnitude float64   `json:"total_magnitude"`
	RadiusMeters   float64   `json:"radius_meters"`
}

// Params tunes a regional scan. The zero value takes the defaults above.
type Params struct {
	GridSizeMeters float64
	Sensitivity    float64
	BaselineDays   int
	Workers        int
}

func (p Params) withDefaults() Params {
	if p.GridSizeMeters <= 0 {
		p.GridSizeMeters = DefaultGridSizeMeters
	}
	if p.Sensitivity <= 0 {
		p.Sensitivity = DefaultSensitivity
	}
	if p.BaselineDays <= 0 {
		p.BaselineDays = DefaultBaselineDays
	}
	if p.Workers <= 0 {
		p.Workers = runtime.NumCPU()
	}
	return p
}

// Scanner runs gridded anomaly scans over a detector.
type Scanner struct {
	detector *detect.Detector
	params   Params

	// Logf is the scan logger. Defaults to the package monitoring logger.
	Logf func(format string, args ...interface{})
}

// NewScanner returns a scanner over det with the given parameters.
func NewScanner(det *detect.Detector, params Params) *Scanner {
	return &Scanner{
		detector: det,
		params:   params.withDefaults(),
		Logf:     monitoring.Logf,
	}
}

func (s *Scanner) logf(format string, args ...interface{}) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

// Scan grids bounds at the configured cell size and runs a sudden-change
// scan on every cell center for refDate. Cells are scanned concurrently
// but results come back in grid order, so repeated scans of the same
// region are directly comparable. A cell without baseline imagery is
// skipped; a provider failure aborts the whole scan.
func (s *Scanner) Scan(ctx context.Context, bounds geo.Bounds, refDate time.Time) ([]Hotspot, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("invalid bounds: %+v", bounds)
	}

	cells := bounds.Grid(s.params.GridSizeMeters)
	if len(cells) == 0 {
		return nil, nil
	}
	s.logf("hotspot scan: %d cells at %.0fm over (%.4f,%.4f)-(%.4f,%.4f)",
		len(cells), s.params.GridSizeMeters,
		bounds.MinLon, bounds.MinLat, bounds.MaxLon, bounds.MaxLat)

	// One result slot per cell keeps output ordering independent of
	// worker scheduling.
	results := make([]*Hotspot, len(cells))
	indexes := make(chan int)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	workers := s.params.Workers
	if workers > len(cells) {
		workers = len(cells)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				events, err := s.detector.Anomalies(ctx, cells[i], refDate,
					s.params.BaselineDays, s.params.Sensitivity)
				if err != nil {
					setErr(fmt.Errorf("cell %d (%.4f, %.4f): %w", i, cells[i].Lon, cells[i].Lat, err))
					continue
				}
				if len(events) == 0 {
					continue
				}
				ev := events[0]
				results[i] = &Hotspot{
					CellIndex:  i,
					Center:     cells[i],
					Date:       refDate,
					Magnitude:  ev.Magnitude,
					Confidence: ev.Confidence,
					Bands:      ev.AffectedBands,
				}
			}
		}()
	}

feed:
	for i := range cells {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var hotspots []Hotspot
	for _, r := range results {
		if r != nil {
			hotspots = append(hotspots, *r)
		}
	}
	s.logf("hotspot scan: %d/%d cells flagged", len(hotspots), len(cells))
	return hotspots, nil
}

// Cluster groups hotspots greedily in input order: each unclustered
// hotspot seeds a cluster and absorbs every still-unclustered hotspot
// within twice the grid size of the seed. Membership is judged against
// the seed only, so two cells farther apart than the link distance can
// share a cluster only through a common seed. Input order determines
// the seeds, making the grouping deterministic for a given hotspot
// list. Clusters come back sorted by descending average magnitude.
func (s *Scanner) Cluster(hotspots []Hotspot) []Cluster {
	return ClusterWithin(hotspots, 2*s.params.GridSizeMeters)
}

// ClusterWithin is Cluster with an explicit linking distance in meters.
func ClusterWithin(hotspots []Hotspot, linkMeters float64) []Cluster {
	if len(hotspots) == 0 {
		return nil
	}

	assigned := make([]bool, len(hotspots))
	var clusters []Cluster

	for seed := range hotspots {
		if assigned[seed] {
			continue
		}
		assigned[seed] = true
		members := []int{seed}

		for j := range hotspots {
			if assigned[j] {
				continue
			}
			if geo.Haversine(hotspots[seed].Center, hotspots[j].Center) <= linkMeters {
				assigned[j] = true
				members = append(members, j)
			}
		}

		clusters = append(clusters, buildCluster(hotspots, members))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AvgMagnitude > clusters[j].AvgMagnitude
	})
	return clusters
}

// buildCluster assembles a cluster from member indices; members[0] is
// the seed and supplies the cluster center.
func buildCluster(hotspots []Hotspot, members []int) Cluster {
	seed := hotspots[members[0]]
	c := Cluster{
		ID:      uuid.New().String(),
		Center:  seed.Center,
		Members: make([]Hotspot, 0, len(members)),
	}

	for _, m := range members {
		h := hotspots[m]
		c.Members = append(c.Members, h)
		c.TotalMagnitude += h.Magnitude
		if d := geo.Haversine(c.Center, h.Center); d > c.RadiusMeters {
			c.RadiusMeters = d
		}
	}
	c.AvgMagnitude = c.TotalMagnitude / float64(len(members))
	return c
}
