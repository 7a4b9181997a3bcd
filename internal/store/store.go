// Package store persists detection events, ground truth and validation
// results in sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/parklands-data/invasive.report/internal/detect"
	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/validation"
)

// Store wraps the sqlite handle. Schema management goes through the
// migration helpers in migrate.go.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// Single writer: sqlite serializes writes anyway, and a pool of
	// connections to the same file just trades lock errors for latency.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return &Store{DB: db}, nil
}

// InsertEvent stores a change event. Events without an ID get one.
func (s *Store) InsertEvent(ctx context.Context, ev detect.Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	bands, err := json.Marshal(ev.AffectedBands)
	if err != nil {
		return "", fmt.Errorf("encode bands: %w", err)
	}
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.ExecContext(ctx, `
		INSERT INTO change_events (id, lon, lat, event_date, category, magnitude, confidence, affected_bands, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Point.Lon, ev.Point.Lat, ev.Date.UTC(), string(ev.Category),
		ev.Magnitude, ev.Confidence, string(bands), string(meta))
	if err != nil {
		return "", fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return ev.ID, nil
}

// EventFilter narrows ListEvents. Zero fields are ignored.
type EventFilter struct {
	Category detect.Category
	Since    time.Time
	Until    time.Time
	Limit    int
}

// ListEvents returns stored events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]detect.Event, error) {
	query := `SELECT id, lon, lat, event_date, category, magnitude, confidence, affected_bands, metadata
		FROM change_events WHERE 1=1`
	var args []interface{}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	if !filter.Since.IsZero() {
		query += " AND event_date >= ?"
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += " AND event_date <= ?"
		args = append(args, filter.Until.UTC())
	}
	query += " ORDER BY event_date DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []detect.Event
	for rows.Next() {
		var ev detect.Event
		var category, bands, meta string
		if err := rows.Scan(&ev.ID, &ev.Point.Lon, &ev.Point.Lat, &ev.Date,
			&category, &ev.Magnitude, &ev.Confidence, &bands, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Category = detect.Category(category)
		if bands != "" {
			if err := json.Unmarshal([]byte(bands), &ev.AffectedBands); err != nil {
				return nil, fmt.Errorf("decode bands for %s: %w", ev.ID, err)
			}
		}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// InsertGroundTruth stores an observation and returns its generated ID.
func (s *Store) InsertGroundTruth(ctx context.Context, gt validation.GroundTruthPoint) (string, error) {
	id := uuid.New().String()
	confidence := gt.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	_, err := s.ExecContext(ctx, `
		INSERT INTO ground_truth (id, lon, lat, observed_at, invasive_present, species, coverage_percent, observer, notes, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, gt.Point.Lon, gt.Point.Lat, gt.ObservedAt.UTC(), gt.InvasivePresent,
		gt.Species, gt.CoveragePercent, gt.Observer, gt.Notes, confidence)
	if err != nil {
		return "", fmt.Errorf("insert ground truth: %w", err)
	}
	return id, nil
}

// ListGroundTruth returns all stored observations, oldest first, so a
// framework loaded from the store reproduces insertion-order matching.
func (s *Store) ListGroundTruth(ctx context.Context) ([]validation.GroundTruthPoint, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT lon, lat, observed_at, invasive_present, species, coverage_percent, observer, notes, confidence
		FROM ground_truth ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list ground truth: %w", err)
	}
	defer rows.Close()

	var out []validation.GroundTruthPoint
	for rows.Next() {
		var gt validation.GroundTruthPoint
		if err := rows.Scan(&gt.Point.Lon, &gt.Point.Lat, &gt.ObservedAt, &gt.InvasivePresent,
			&gt.Species, &gt.CoveragePercent, &gt.Observer, &gt.Notes, &gt.Confidence); err != nil {
			return nil, fmt.Errorf("scan ground truth: %w", err)
		}
		out = append(out, gt)
	}
	return out, rows.Err()
}

// InsertValidation stores one validation result.
func (s *Store) InsertValidation(ctx context.Context, r validation.Result) (string, error) {
	id := uuid.New().String()
	var speciesMatch interface{}
	if r.SpeciesMatch != nil {
		speciesMatch = *r.SpeciesMatch
	}
	_, err := s.ExecContext(ctx, `
		INSERT INTO validations (id, ground_truth, predicted, confidence, detection_date, distance_meters, date_gap_days, species_match, observer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.GroundTruth, r.Predicted, r.Confidence, r.DetectionDate.UTC(),
		r.DistanceMeters, r.DateGapDays, speciesMatch, r.Observer)
	if err != nil {
		return "", fmt.Errorf("insert validation: %w", err)
	}
	return id, nil
}

// ListValidations returns all stored validation results, oldest first.
func (s *Store) ListValidations(ctx context.Context) ([]validation.Result, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT ground_truth, predicted, confidence, detection_date, distance_meters, date_gap_days, species_match, observer
		FROM validations ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var out []validation.Result
	for rows.Next() {
		var r validation.Result
		var speciesMatch sql.NullBool
		if err := rows.Scan(&r.GroundTruth, &r.Predicted, &r.Confidence, &r.DetectionDate,
			&r.DistanceMeters, &r.DateGapDays, &speciesMatch, &r.Observer); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		if speciesMatch.Valid {
			v := speciesMatch.Bool
			r.SpeciesMatch = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventPoints returns the locations of stored events in a category, for
// plotting and regional summaries.
func (s *Store) EventPoints(ctx context.Context, category detect.Category) ([]geo.Point, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT lon, lat FROM change_events WHERE category = ? ORDER BY event_date`, string(category))
	if err != nil {
		return nil, fmt.Errorf("event points: %w", err)
	}
	defer rows.Close()

	var out []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lon, &p.Lat); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
