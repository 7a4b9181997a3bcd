package spectral

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

// LoadCSV builds a ScriptedProvider from archived readings. The header
// must carry longitude, latitude and date columns; every remaining
// column is treated as a band name (B2, B4, B8, ...). Empty band cells
// mean the band was occluded for that reading. Dates are YYYY-MM-DD.
func LoadCSV(r io.Reader) (*ScriptedProvider, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read readings header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"longitude", "latitude", "date"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("readings file missing required column %q", required)
		}
	}

	bands := make([]string, 0, len(header))
	for _, name := range header {
		switch name {
		case "longitude", "latitude", "date":
		default:
			bands = append(bands, name)
		}
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("readings file has no band columns")
	}

	p := NewScriptedProvider()
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		lon, err := strconv.ParseFloat(record[cols["longitude"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid longitude: %w", line, err)
		}
		lat, err := strconv.ParseFloat(record[cols["latitude"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid latitude: %w", line, err)
		}
		date, err := time.Parse("2006-01-02", record[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}

		values := make(map[string]float64, len(bands))
		for _, band := range bands {
			cell := record[cols[band]]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s value: %w", line, band, err)
			}
			values[band] = v
		}
		p.AddReading(geo.Point{Lon: lon, Lat: lat}, date, values)
	}

	return p, nil
}
