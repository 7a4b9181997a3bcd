// Package plot renders detection output as PNG files for field reports.
package plot

import (
	"fmt"
	"image/color"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/parklands-data/invasive.report/internal/hotspot"
)

// TrendPoint is one NDVI observation in a time series.
type TrendPoint struct {
	Date time.Time
	NDVI float64
}

// NDVITrend renders the NDVI series as a line plot with day-resolution
// x ticks and saves it to path.
func NDVITrend(path, title string, series []TrendPoint) error {
	if len(series) == 0 {
		return fmt.Errorf("empty NDVI series")
	}

	sorted := make([]TrendPoint, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	pts := make(plotter.XYs, len(sorted))
	for i, s := range sorted {
		pts[i] = plotter.XY{X: float64(s.Date.Unix()), Y: s.NDVI}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "NDVI"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build line: %w", err)
	}
	line.Color = color.RGBA{G: 128, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save ndvi trend: %w", err)
	}
	return nil
}

// HotspotMap renders flagged cells as a lon/lat scatter, colored by
// magnitude, with cluster centers marked, and saves it to path.
func HotspotMap(path, title string, hotspots []hotspot.Hotspot, clusters []hotspot.Cluster) error {
	if len(hotspots) == 0 {
		return fmt.Errorf("no hotspots to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	cells := make(plotter.XYs, len(hotspots))
	for i, h := range hotspots {
		cells[i] = plotter.XY{X: h.Center.Lon, Y: h.Center.Lat}
	}
	scatter, err := plotter.NewScatter(cells)
	if err != nil {
		return fmt.Errorf("build cell scatter: %w", err)
	}
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  magnitudeColor(hotspots[i].Magnitude),
			Radius: vg.Points(4),
			Shape:  draw.BoxGlyph{},
		}
	}
	p.Add(scatter)
	p.Legend.Add("flagged cell", scatter)

	if len(clusters) > 0 {
		centers := make(plotter.XYs, len(clusters))
		for i, c := range clusters {
			centers[i] = plotter.XY{X: c.Center.Lon, Y: c.Center.Lat}
		}
		marks, err := plotter.NewScatter(centers)
		if err != nil {
			return fmt.Errorf("build cluster scatter: %w", err)
		}
		marks.GlyphStyle = draw.GlyphStyle{
			Color:  color.RGBA{B: 200, A: 255},
			Radius: vg.Points(6),
			Shape:  draw.CrossGlyph{},
		}
		p.Add(marks)
		p.Legend.Add("cluster center", marks)
	}

	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save hotspot map: %w", err)
	}
	return nil
}

// magnitudeColor maps [0,1] onto a yellow-to-red ramp.
func magnitudeColor(m float64) color.Color {
	if m < 0 {
		m = 0
	}
	if m > 1 {
		m = 1
	}
	return color.RGBA{R: 255, G: uint8(200 * (1 - m)), A: 255}
}
