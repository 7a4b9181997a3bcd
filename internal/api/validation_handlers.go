package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/parklands-data/invasive.report/internal/httputil"
	"github.com/parklands-data/invasive.report/internal/validation"
)

// groundTruth ingests field observations, either a JSON array or a CSV
// body depending on Content-Type. Records land in the in-memory
// framework and, when a store is configured, in the database.
func (s *Server) groundTruth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.framework == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "validation framework not configured")
		return
	}

	var points []validation.GroundTruthPoint
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/csv"):
		n, err := s.framework.LoadCSV(r.Body)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("CSV import failed: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]int{"imported": n})
		return
	default:
		if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid ground truth JSON: %v", err))
			return
		}
	}

	for _, p := range points {
		s.framework.AddGroundTruth(p)
		if s.store != nil {
			if _, err := s.store.InsertGroundTruth(r.Context(), p); err != nil {
				httputil.InternalServerError(w, fmt.Sprintf("failed to persist ground truth: %v", err))
				return
			}
		}
	}
	httputil.WriteJSONOK(w, map[string]int{"imported": len(points)})
}

// validatePrediction scores one prediction against the loaded ground
// truth using the configured tolerances.
func (s *Server) validatePrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.framework == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "validation framework not configured")
		return
	}

	var pred validation.Prediction
	if err := json.NewDecoder(r.Body).Decode(&pred); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid prediction JSON: %v", err))
		return
	}

	result := s.framework.Validate(pred, s.cfg.GetToleranceMeters(), s.cfg.GetToleranceDays())
	if result == nil {
		httputil.NotFound(w, "no ground truth within tolerance")
		return
	}
	if s.store != nil {
		if _, err := s.store.InsertValidation(r.Context(), *result); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to persist validation: %v", err))
			return
		}
	}
	httputil.WriteJSONOK(w, result)
}

func (s *Server) validationMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.framework == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "validation framework not configured")
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"metrics":       s.framework.ComputeMetrics(),
		"by_confidence": s.framework.AccuracyByConfidence(),
		"by_distance":   s.framework.AccuracyByDistance(),
		"by_season":     s.framework.AccuracyBySeason(),
	})
}
