package validation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

// LoadCSV ingests ground-truth rows from r and returns how many were
// added. The header must name at least longitude, latitude,
// observation_date, invasive_present and observer; species,
// coverage_percent, confidence and notes are optional. Dates are
// YYYY-MM-DD. A malformed row aborts the load with its line number.
func (f *Framework) LoadCSV(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"longitude", "latitude", "observation_date", "invasive_present", "observer"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	added := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}

		lon, err := strconv.ParseFloat(field(row, "longitude"), 64)
		if err != nil {
			return added, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		lat, err := strconv.ParseFloat(field(row, "latitude"), 64)
		if err != nil {
			return added, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		date, err := time.Parse("2006-01-02", field(row, "observation_date"))
		if err != nil {
			return added, fmt.Errorf("line %d: observation_date: %w", line, err)
		}
		present, err := strconv.ParseBool(field(row, "invasive_present"))
		if err != nil {
			return added, fmt.Errorf("line %d: invasive_present: %w", line, err)
		}

		gt := GroundTruthPoint{
			Point:           geo.Point{Lon: lon, Lat: lat},
			ObservedAt:      date,
			InvasivePresent: present,
			Species:         field(row, "species"),
			Observer:        field(row, "observer"),
			Notes:           field(row, "notes"),
		}
		if s := field(row, "coverage_percent"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return added, fmt.Errorf("line %d: coverage_percent: %w", line, err)
			}
			gt.CoveragePercent = v
		}
		if s := field(row, "confidence"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return added, fmt.Errorf("line %d: confidence: %w", line, err)
			}
			gt.Confidence = v
		}

		f.AddGroundTruth(gt)
		added++
	}

	f.logf("loaded %d ground-truth points from CSV", added)
	return added, nil
}
