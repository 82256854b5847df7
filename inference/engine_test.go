package inference

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/core/schema"
	"github.com/YuminosukeSato/tumorscope/internal/fixtures"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/sklearn/linear_model"
)

type stubHandle struct {
	label   model.Label
	err     error
	panicky bool
}

func (s *stubHandle) Name() string           { return "stub" }
func (s *stubHandle) Family() model.Family   { return model.FamilyLinear }
func (s *stubHandle) FeatureNames() []string { return schema.Default().Names() }
func (s *stubHandle) Predict(mat.Vector) (model.Label, error) {
	if s.panicky {
		panic("index out of range")
	}
	return s.label, s.err
}

type stubProba struct {
	stubHandle
	proba model.Probability
}

func (s *stubProba) PredictProba(mat.Vector) (model.Probability, error) { return s.proba, nil }

func newEngine(t *testing.T, opts ...Option) (*Engine, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return New(nil, append([]Option{WithLogger(logger)}, opts...)...), logger
}

func TestPredictLinear(t *testing.T) {
	e, logger := newEngine(t)
	env := fixtures.DefaultLinear("Logistic Regression")
	lr, err := linear_model.FromEnvelope(env)
	require.NoError(t, err)

	res, err := e.Predict(context.Background(), lr, fixtures.Input(0, map[string]float64{"radius_mean": 1.5}))
	require.NoError(t, err)
	assert.Equal(t, model.Malignant, res.Prediction)
	require.NotNil(t, res.Probabilities)
	assert.InDelta(t, 0.9525741268224334, res.Probabilities.Malignant, 1e-9)
	assert.InDelta(t, 1-0.9525741268224334, res.Probabilities.Benign, 1e-9)
	assert.Equal(t, 19, res.Input.Len())
	assert.True(t, logger.ContainsMessage("prediction computed"))
}

func TestPredictDeterministic(t *testing.T) {
	e, _ := newEngine(t)
	lr, err := linear_model.FromEnvelope(fixtures.DefaultLinear("lr"))
	require.NoError(t, err)
	in := fixtures.Input(0.7, nil)

	first, err := e.Predict(context.Background(), lr, in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Predict(context.Background(), lr, in)
		require.NoError(t, err)
		assert.Equal(t, first.Prediction, again.Prediction)
		assert.Equal(t, *first.Probabilities, *again.Probabilities)
	}
}

func TestPredictWithoutProbability(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Predict(context.Background(), &stubHandle{label: model.Benign}, fixtures.Input(1, nil))
	require.NoError(t, err)
	assert.Equal(t, model.Benign, res.Prediction)
	assert.Nil(t, res.Probabilities)
}

func TestPredictSchemaMismatch(t *testing.T) {
	e, _ := newEngine(t)
	in := fixtures.Input(1, nil)
	delete(in, "area_se")

	_, err := e.Predict(context.Background(), &stubHandle{}, in)
	var sm *errors.SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, []string{"area_se"}, sm.Missing)
}

func TestPredictExtraKeyPolicy(t *testing.T) {
	in := fixtures.Input(1, map[string]float64{"patient_age": 50})

	strict, _ := newEngine(t)
	_, err := strict.Predict(context.Background(), &stubHandle{}, in)
	assert.Error(t, err)

	lenient, _ := newEngine(t, WithExtraKeyPolicy(schema.IgnoreExtra))
	_, err = lenient.Predict(context.Background(), &stubHandle{}, in)
	assert.NoError(t, err)
}

func TestPredictInferenceErrors(t *testing.T) {
	tests := []struct {
		name   string
		handle model.Handle
	}{
		{"model error", &stubHandle{err: errors.New("boom")}},
		{"panic", &stubHandle{panicky: true}},
		{"unknown label", &stubHandle{label: model.Label(3)}},
		{"probability out of range", &stubProba{proba: model.Probability{Benign: -0.5, Malignant: 1.5}}},
		{"probability not summing to one", &stubProba{proba: model.Probability{Benign: 0.5, Malignant: 0.6}}},
		{"probability NaN", &stubProba{proba: model.Probability{Benign: math.NaN(), Malignant: 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t)
			_, err := e.Predict(context.Background(), tt.handle, fixtures.Input(1, nil))
			var ie *errors.InferenceError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, "inference", errors.Kind(err))
		})
	}
}

func TestPredictCancelledContext(t *testing.T) {
	e, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Predict(ctx, &stubHandle{}, fixtures.Input(1, nil))
	assert.True(t, errors.Is(err, context.Canceled))
}
