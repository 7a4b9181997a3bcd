package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

var (
	siteA = geo.Point{Lon: -121.5969, Lat: 37.9089}
	aug20 = time.Date(2023, 8, 20, 0, 0, 0, 0, time.UTC)
	aug25 = time.Date(2023, 8, 25, 0, 0, 0, 0, time.UTC)
)

func quietFramework(s MatchStrategy) *Framework {
	f := NewFramework(s)
	f.Logf = func(string, ...interface{}) {}
	return f
}

func TestValidateMatchWithinTolerance(t *testing.T) {
	// Ground truth 5 days after the prediction at the same location.
	f := quietFramework(MatchFirst)
	f.AddGroundTruth(GroundTruthPoint{
		Point: siteA, ObservedAt: aug25, InvasivePresent: true, Observer: "ranger-3",
	})

	r := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true, Confidence: 0.8}, 100, 10)
	if r == nil {
		t.Fatal("expected a match within tolerance")
	}
	if !r.GroundTruth || !r.Predicted {
		t.Errorf("gt=%v pred=%v, want both true", r.GroundTruth, r.Predicted)
	}
	if r.DistanceMeters > 1 {
		t.Errorf("distance = %f, want ~0", r.DistanceMeters)
	}
	if r.DateGapDays != 5 {
		t.Errorf("date gap = %f days, want 5", r.DateGapDays)
	}
}

func TestValidateNoMatchBeyondDistance(t *testing.T) {
	// Ground truth 150m away with a 100m tolerance: no result, which is
	// different from a recorded false negative.
	f := quietFramework(MatchFirst)
	f.AddGroundTruth(GroundTruthPoint{
		Point: geo.Offset(siteA, 150, 0), ObservedAt: aug20, InvasivePresent: true, Observer: "ranger-3",
	})

	if r := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true}, 100, 10); r != nil {
		t.Errorf("got result %+v, want nil", r)
	}
	if got := len(f.Results()); got != 0 {
		t.Errorf("%d results recorded on a non-match, want 0", got)
	}
}

func TestValidateNoMatchBeyondDateTolerance(t *testing.T) {
	f := quietFramework(MatchFirst)
	f.AddGroundTruth(GroundTruthPoint{
		Point: siteA, ObservedAt: aug20.AddDate(0, 0, 30), InvasivePresent: true, Observer: "ranger-3",
	})

	if r := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true}, 100, 10); r != nil {
		t.Errorf("got result %+v, want nil", r)
	}
}

func TestValidateStrategies(t *testing.T) {
	// Two qualifying points: the first inserted is 80m away and 1 day off;
	// the second is 10m away but 8 days off.
	far := GroundTruthPoint{Point: geo.Offset(siteA, 80, 0), ObservedAt: aug20.AddDate(0, 0, 1), InvasivePresent: true, Observer: "first"}
	near := GroundTruthPoint{Point: geo.Offset(siteA, 10, 0), ObservedAt: aug20.AddDate(0, 0, 8), InvasivePresent: true, Observer: "second"}

	tests := []struct {
		strategy     MatchStrategy
		wantObserver string
	}{
		{MatchFirst, "first"},
		{MatchNearest, "second"},
		{MatchNearestDate, "first"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			f := quietFramework(tt.strategy)
			f.AddGroundTruth(far)
			f.AddGroundTruth(near)

			r := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true}, 100, 10)
			if r == nil {
				t.Fatal("expected a match")
			}
			if r.Observer != tt.wantObserver {
				t.Errorf("matched observer %q, want %q", r.Observer, tt.wantObserver)
			}
		})
	}
}

func TestSpeciesMatchSubstring(t *testing.T) {
	tests := []struct {
		pred, gt string
		want     bool
	}{
		{"tamarix", "Tamarix ramosissima", true},
		{"Tamarix ramosissima", "tamarix", true},
		{"TAMARIX", "tamarix", true},
		{"arundo", "Tamarix ramosissima", false},
	}
	for _, tt := range tests {
		if got := speciesMatch(tt.pred, tt.gt); got != tt.want {
			t.Errorf("speciesMatch(%q, %q) = %v, want %v", tt.pred, tt.gt, got, tt.want)
		}
	}
}

func TestValidateRecordsSpeciesMatch(t *testing.T) {
	f := quietFramework(MatchFirst)
	f.AddGroundTruth(GroundTruthPoint{
		Point: siteA, ObservedAt: aug20, InvasivePresent: true,
		Species: "Tamarix ramosissima", Observer: "ranger-3",
	})

	r := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true, Species: "tamarix"}, 100, 10)
	if r == nil || r.SpeciesMatch == nil {
		t.Fatal("expected a species-match verdict")
	}
	if !*r.SpeciesMatch {
		t.Error("tamarix should match Tamarix ramosissima")
	}

	// No predicted species: verdict must be absent, not false.
	r2 := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true}, 100, 10)
	if r2 == nil {
		t.Fatal("expected a match")
	}
	if r2.SpeciesMatch != nil {
		t.Errorf("species match = %v without a predicted species, want nil", *r2.SpeciesMatch)
	}
}

// record appends a synthetic result through the public Validate path.
// Callers keep record dates more than the 5-day tolerance apart so each
// prediction can only match its own ground-truth point.
func record(f *Framework, gt, pred bool, confidence float64, date time.Time, eastMeters float64) {
	pt := geo.Offset(siteA, eastMeters, 0)
	f.AddGroundTruth(GroundTruthPoint{Point: pt, ObservedAt: date, InvasivePresent: gt, Observer: "survey"})
	f.Validate(Prediction{Point: siteA, Date: date, Detected: pred, Confidence: confidence}, 200, 5)
}

func TestComputeMetrics(t *testing.T) {
	f := quietFramework(MatchNearest)
	jun := time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)
	record(f, true, true, 0.9, jun, 10)                     // tp
	record(f, true, true, 0.8, jun.AddDate(0, 0, 11), 30)   // tp
	record(f, false, false, 0.3, jun.AddDate(0, 0, 22), 60) // tn
	record(f, false, true, 0.6, jun.AddDate(0, 0, 33), 90)  // fp
	record(f, true, false, 0.1, jun.AddDate(0, 0, 44), 120) // fn

	m := f.ComputeMetrics()
	if m.TP != 2 || m.TN != 1 || m.FP != 1 || m.FN != 1 {
		t.Fatalf("confusion matrix tp=%d tn=%d fp=%d fn=%d", m.TP, m.TN, m.FP, m.FN)
	}
	if m.TP+m.TN+m.FP+m.FN != m.Count {
		t.Errorf("cells sum to %d, count is %d", m.TP+m.TN+m.FP+m.FN, m.Count)
	}
	if want := 3.0 / 5.0; m.Accuracy != want {
		t.Errorf("accuracy = %f, want %f", m.Accuracy, want)
	}
	if want := 2.0 / 3.0; m.Precision != want {
		t.Errorf("precision = %f, want %f", m.Precision, want)
	}
	if want := 2.0 / 3.0; m.Recall != want {
		t.Errorf("recall = %f, want %f", m.Recall, want)
	}
	if m.F1 <= 0.66 || m.F1 >= 0.67 {
		t.Errorf("f1 = %f, want ~0.667", m.F1)
	}
	if m.SpeciesAccuracy != nil {
		t.Errorf("species accuracy = %v with no species data, want nil", *m.SpeciesAccuracy)
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := quietFramework(MatchFirst).ComputeMetrics()
	if m.Count != 0 || m.Accuracy != 0 || m.Precision != 0 || m.Recall != 0 || m.F1 != 0 {
		t.Errorf("empty framework metrics = %+v, want zeros", m)
	}
}

func TestAccuracyBreakdowns(t *testing.T) {
	f := quietFramework(MatchNearest)
	mar := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	apr := time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC)
	record(f, true, true, 0.9, mar, 10)   // high confidence, 0-25m, spring
	record(f, true, false, 0.9, apr, 60)  // high confidence, 50-75m, spring
	record(f, false, false, 0.1, dec, 30) // low confidence, 25-50m, winter

	byConf := f.AccuracyByConfidence()
	if got := byConf["0.75-1.00"]; got.Count != 2 || got.Accuracy != 0.5 {
		t.Errorf("high-confidence bin = %+v, want count 2 accuracy 0.5", got)
	}
	if got := byConf["0.00-0.25"]; got.Count != 1 || got.Accuracy != 1 {
		t.Errorf("low-confidence bin = %+v, want count 1 accuracy 1", got)
	}
	if _, ok := byConf["0.25-0.50"]; ok {
		t.Error("empty confidence bin must be omitted")
	}

	byDist := f.AccuracyByDistance()
	if got := byDist["0-25m"]; got.Count != 1 || got.Accuracy != 1 {
		t.Errorf("0-25m bin = %+v", got)
	}
	if got := byDist["50-75m"]; got.Count != 1 || got.Accuracy != 0 {
		t.Errorf("50-75m bin = %+v", got)
	}
	if _, ok := byDist["75-100m"]; ok {
		t.Error("empty distance bin must be omitted")
	}

	bySeason := f.AccuracyBySeason()
	if got := bySeason["spring"]; got.Count != 2 || got.Accuracy != 0.5 {
		t.Errorf("spring bin = %+v", got)
	}
	if got := bySeason["winter"]; got.Count != 1 || got.Accuracy != 1 {
		t.Errorf("winter bin = %+v", got)
	}
	if _, ok := bySeason["summer"]; ok {
		t.Error("empty season bin must be omitted")
	}
}

func TestDefaultObserverConfidence(t *testing.T) {
	f := quietFramework(MatchFirst)
	f.AddGroundTruth(GroundTruthPoint{Point: siteA, ObservedAt: aug20, InvasivePresent: true, Observer: "x"})
	f.AddGroundTruth(GroundTruthPoint{Point: siteA, ObservedAt: aug20, InvasivePresent: true, Observer: "y", Confidence: 0.5})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.points[0].Confidence != 1.0 {
		t.Errorf("unset confidence = %f, want 1.0", f.points[0].Confidence)
	}
	if f.points[1].Confidence != 0.5 {
		t.Errorf("explicit confidence = %f, want 0.5", f.points[1].Confidence)
	}
}

func TestLoadCSV(t *testing.T) {
	const data = `longitude,latitude,observation_date,invasive_present,species,coverage_percent,observer,notes
-121.5969,37.9089,2023-08-25,true,Tamarix ramosissima,45.5,ranger-3,dense stand on east bank
-121.6010,37.9120,2023-08-26,false,,,ranger-4,
`
	f := quietFramework(MatchFirst)
	n, err := f.LoadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadCSV() error: %v", err)
	}
	if n != 2 || f.GroundTruthCount() != 2 {
		t.Fatalf("loaded %d rows (stored %d), want 2", n, f.GroundTruthCount())
	}

	r := f.Validate(Prediction{Point: siteA, Date: aug20, Detected: true, Species: "tamarix"}, 100, 10)
	if r == nil {
		t.Fatal("CSV point should validate the prediction")
	}
	if r.SpeciesMatch == nil || !*r.SpeciesMatch {
		t.Error("species from CSV should match")
	}
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing column", "longitude,latitude,observer\n-121,37,x\n"},
		{"bad date", "longitude,latitude,observation_date,invasive_present,observer\n-121,37,25-08-2023,true,x\n"},
		{"bad bool", "longitude,latitude,observation_date,invasive_present,observer\n-121,37,2023-08-25,maybe,x\n"},
		{"bad longitude", "longitude,latitude,observation_date,invasive_present,observer\neast,37,2023-08-25,true,x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := quietFramework(MatchFirst)
			if _, err := f.LoadCSV(strings.NewReader(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
