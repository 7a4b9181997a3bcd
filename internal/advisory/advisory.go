// Package advisory consults an external assessment service about detection
// findings. The service response is untrusted: structured JSON is used
// when parseable, and anything else degrades to an explicit best-effort
// fallback rather than an error in the detection path.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/httputil"
	"github.com/parklands-data/invasive.report/internal/monitoring"
)

// Findings is the structured payload sent to the advisory service. Only
// numeric evidence goes out; interpretation stays on the service side.
type Findings struct {
	Point           geo.Point              `json:"point"`
	Date            time.Time              `json:"date"`
	SuddenEvents    int                    `json:"sudden_events"`
	GradualEvents   int                    `json:"gradual_events"`
	SeasonalEvents  int                    `json:"seasonal_events"`
	MaxMagnitude    float64                `json:"max_magnitude"`
	CurrentNDVI     float64                `json:"current_ndvi"`
	BaselineNDVI    float64                `json:"baseline_ndvi"`
	AffectedBands   []string               `json:"affected_bands,omitempty"`
	ExtraIndicators map[string]interface{} `json:"extra_indicators,omitempty"`
}

// Structured is a fully parsed advisory response.
type Structured struct {
	// Confidence is the service's invasion likelihood, 0 to 100.
	Confidence float64  `json:"confidence"`
	Detected   bool     `json:"invasive_likely"`
	Species    []string `json:"possible_species,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Fallback carries what could be salvaged from an unparseable response.
type Fallback struct {
	RawText string
	// Confidence is a best-effort number scraped from the text; 0 when
	// nothing could be extracted.
	Confidence float64
}

// Assessment is the outcome of one advisory call. Exactly one of the two
// accessors reports ok; callers must handle the degraded case explicitly.
type Assessment struct {
	structured *Structured
	fallback   *Fallback
}

// Structured returns the parsed response when the service answered with
// valid JSON.
func (a Assessment) Structured() (Structured, bool) {
	if a.structured == nil {
		return Structured{}, false
	}
	return *a.structured, true
}

// Fallback returns the degraded result for an unparseable response.
func (a Assessment) Fallback() (Fallback, bool) {
	if a.fallback == nil {
		return Fallback{}, false
	}
	return *a.fallback, true
}

// Confidence returns the 0-100 likelihood from either form.
func (a Assessment) Confidence() float64 {
	if a.structured != nil {
		return a.structured.Confidence
	}
	if a.fallback != nil {
		return a.fallback.Confidence
	}
	return 0
}

// Detected reports the service's verdict. A fallback never claims a
// detection.
func (a Assessment) Detected() bool {
	return a.structured != nil && a.structured.Detected
}

// Client calls the advisory service over HTTP.
type Client struct {
	baseURL string
	http    httputil.HTTPClient

	// Logf receives diagnostic output; defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// NewClient returns a client for the advisory service at baseURL. A nil
// httpClient uses the default client.
func NewClient(baseURL string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		Logf:    monitoring.Logf,
	}
}

func (c *Client) logf(format string, v ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, v...)
	}
}

// Assess submits findings and returns the service's assessment. Transport
// and HTTP-status failures are errors; an unparseable body is not, and
// comes back as a fallback assessment instead.
func (c *Client) Assess(ctx context.Context, f Findings) (Assessment, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return Assessment{}, fmt.Errorf("encode findings: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assess", bytes.NewReader(payload))
	if err != nil {
		return Assessment{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("advisory request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Assessment{}, fmt.Errorf("read advisory response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Assessment{}, fmt.Errorf("advisory service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	a := Parse(string(body))
	if fb, ok := a.Fallback(); ok {
		c.logf("advisory response unparseable, using fallback confidence %.0f", fb.Confidence)
	}
	return a, nil
}

var (
	jsonFenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	confidenceRe = regexp.MustCompile(`(?i)confidence\D{0,12}?(\d{1,3})`)
	percentRe    = regexp.MustCompile(`(\d{1,3})\s*%`)
)

// Parse interprets an advisory response body. It tries the whole body as
// JSON, then the first fenced JSON block, and finally degrades to a
// fallback whose confidence is scraped from the text.
func Parse(body string) Assessment {
	trimmed := strings.TrimSpace(body)

	var s Structured
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
		return Assessment{structured: &s}
	}
	if m := jsonFenceRe.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &s); err == nil {
			return Assessment{structured: &s}
		}
	}

	fb := Fallback{RawText: body}
	if m := confidenceRe.FindStringSubmatch(trimmed); m != nil {
		fb.Confidence = parsePercent(m[1])
	} else if m := percentRe.FindStringSubmatch(trimmed); m != nil {
		fb.Confidence = parsePercent(m[1])
	}
	return Assessment{fallback: &fb}
}

func parsePercent(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
