package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TreeEnsemble.Predict")
		panic("index out of range")
	}

	err := testFunc()

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "TreeEnsemble.Predict" {
		t.Errorf("Expected operation 'TreeEnsemble.Predict', got '%s'", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if want := "panic in TreeEnsemble.Predict: index out of range"; panicErr.Error() != want {
		t.Errorf("Expected error message '%s', got '%s'", want, panicErr.Error())
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "NormalOperation")
		return nil
	}
	if err := testFunc(); err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("validation failed")

	testFunc := func() (err error) {
		defer Recover(&err, "Operation")
		err = originalErr
		panic("panic after error")
	}

	err := testFunc()
	for _, want := range []string{"panic in Operation", "panic after error", "original error", "validation failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error message should contain %q: %s", want, err.Error())
		}
	}
	if !errors.Is(err, originalErr) {
		t.Error("Should be able to identify original error with errors.Is")
	}
}

func TestSafeExecute(t *testing.T) {
	if err := SafeExecute("ok", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sentinel := fmt.Errorf("plain failure")
	if err := SafeExecute("fail", func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	err := SafeExecute("walk", func() error {
		var nodes []int
		_ = nodes[3]
		return nil
	})
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
	if panicErr.Operation != "walk" {
		t.Errorf("Operation = %q, want walk", panicErr.Operation)
	}
}
