package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})
	Logf("scan progress: %d/%d cells", 3, 12)

	if len(captured) != 1 {
		t.Fatalf("expected 1 captured line, got %d", len(captured))
	}
	if captured[0] != "scan progress: 3/12 cells" {
		t.Errorf("unexpected captured line %q", captured[0])
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	SetLogger(nil)

	Logf("should be dropped")
	if called {
		t.Error("muted logger still invoked previous callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("baseline build: %s", "ok")
}
