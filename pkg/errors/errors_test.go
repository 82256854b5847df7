package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestTaxonomyMessagesAndCasting(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
		kind    string
		check   func(error) bool
	}{
		{
			name:    "model not found",
			err:     NewModelNotFoundError("Unknown", []string{"Logistic Regression", "LightGBM"}),
			wantMsg: `tumorscope: model "Unknown" is not configured (known: Logistic Regression, LightGBM)`,
			kind:    "model_not_found",
			check:   func(e error) bool { var target *ModelNotFoundError; return As(e, &target) },
		},
		{
			name:    "model load with cause",
			err:     NewModelLoadError("LightGBM", "models/lightgbm.json", "decode artifact", fmt.Errorf("unexpected EOF")),
			wantMsg: `tumorscope: load model "LightGBM" from models/lightgbm.json: decode artifact: unexpected EOF`,
			kind:    "model_load",
			check:   func(e error) bool { var target *ModelLoadError; return As(e, &target) },
		},
		{
			name:    "schema mismatch",
			err:     NewSchemaMismatchError("wdbc-19/v1", []string{"radius_mean"}, []string{"age"}, nil),
			wantMsg: "tumorscope: input does not match schema wdbc-19/v1: missing radius_mean; unexpected age",
			kind:    "schema_mismatch",
			check:   func(e error) bool { var target *SchemaMismatchError; return As(e, &target) },
		},
		{
			name:    "inference",
			err:     NewInferenceError("Predict", "Catboost", fmt.Errorf("corrupt tree")),
			wantMsg: `tumorscope: Predict: model "Catboost": corrupt tree`,
			kind:    "inference",
			check:   func(e error) bool { var target *InferenceError; return As(e, &target) },
		},
		{
			name:    "unsupported family",
			err:     NewUnsupportedModelFamilyError("GlobalImportance", "kernel"),
			wantMsg: `tumorscope: GlobalImportance: unsupported model family "kernel"`,
			kind:    "unsupported_family",
			check:   func(e error) bool { var target *UnsupportedModelFamilyError; return As(e, &target) },
		},
		{
			name:    "dimension mismatch",
			err:     NewDimensionMismatchError("LocalContribution", "coefficients", 19, 18),
			wantMsg: "tumorscope: LocalContribution: coefficients length mismatch. Expected 19, got 18",
			kind:    "dimension_mismatch",
			check:   func(e error) bool { var target *DimensionMismatchError; return As(e, &target) },
		},
		{
			name:    "storage write",
			err:     NewStorageWriteError("sqlite", 2, fmt.Errorf("database is locked")),
			wantMsg: "tumorscope: audit write to sqlite failed after 2 attempt(s): database is locked",
			kind:    "storage_write",
			check:   func(e error) bool { var target *StorageWriteError; return As(e, &target) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", tt.err.Error(), tt.wantMsg)
			}
			if !tt.check(tt.err) {
				t.Errorf("%T should be castable to its concrete type", tt.err)
			}
			if got := Kind(tt.err); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", tt.err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := Wrap(NewStorageWriteError("bolt", 1, fmt.Errorf("timeout")), "append audit record")
	if got := Kind(err); got != "storage_write" {
		t.Errorf("Kind() = %q, want storage_write", got)
	}
	if Kind(nil) != "" {
		t.Error("Kind(nil) should be empty")
	}
	if Kind(fmt.Errorf("plain")) != "internal" {
		t.Error("unclassified errors should map to internal")
	}
}

func TestUnwrapChains(t *testing.T) {
	cause := fmt.Errorf("connection reset by peer")
	err := NewStorageWriteError("postgres", 2, cause)
	if !Is(err, cause) {
		t.Error("StorageWriteError should unwrap to its cause")
	}

	loadCause := fmt.Errorf("bad magic")
	if !Is(NewModelLoadError("m", "p", "decode", loadCause), loadCause) {
		t.Error("ModelLoadError should unwrap to its cause")
	}
}

func TestConsistencyWarning(t *testing.T) {
	w := NewConsistencyWarning("Logistic Regression", 0.9526, 0.9, 1e-6)
	if math.Abs(w.Delta()-0.0526) > 1e-12 {
		t.Errorf("Delta() = %v, want 0.0526", w.Delta())
	}
	if !strings.Contains(w.Error(), "Logistic Regression") {
		t.Errorf("warning message should name the model: %s", w.Error())
	}

	var got error
	prev := SetWarningHandler(func(e error) { got = e })
	defer SetWarningHandler(prev)
	Warn(w)
	if got != w {
		t.Error("Warn should route to the configured handler")
	}
}

func TestSigmoid(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{0, 0.5},
		{3, 0.9525741268224334},
		{-3, 0.04742587317756678},
		{1000, 1},
		{-1000, 0},
	}
	for _, tt := range tests {
		if got := Sigmoid(tt.z); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Sigmoid(%v) = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("ok", []float64{1, 2, 3}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := CheckScalar("log_odds", math.NaN())
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %T", err)
	}
	if numErr.Operation != "log_odds" {
		t.Errorf("Operation = %q", numErr.Operation)
	}
}
