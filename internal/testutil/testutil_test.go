package testutil

import (
	"errors"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)

	ok := t.Run("status mismatch", func(t *testing.T) {
		AssertStatusCode(t, http.StatusOK, http.StatusBadRequest)
	})
	if ok {
		t.Fatal("expected subtest to fail on mismatched status code")
	}
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)

	ok := t.Run("unexpected error", func(t *testing.T) {
		AssertNoError(t, errors.New("baseline build failed"))
	})
	if ok {
		t.Fatal("expected subtest to fail when error is non-nil")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("no imagery in range"))

	ok := t.Run("missing expected error", func(t *testing.T) {
		AssertError(t, nil)
	})
	if ok {
		t.Fatal("expected subtest to fail when error is nil")
	}
}
