package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLabelText(t *testing.T) {
	b, err := json.Marshal(map[string]Label{"prediction": Malignant})
	require.NoError(t, err)
	assert.JSONEq(t, `{"prediction":"Malignant"}`, string(b))

	var got struct{ Prediction Label }
	require.NoError(t, json.Unmarshal([]byte(`{"Prediction":"Benign"}`), &got))
	assert.Equal(t, Benign, got.Prediction)

	_, err = ParseLabel("malignant")
	assert.Error(t, err)
	_, err = Label(7).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Label(7)", Label(7).String())
}

func TestLabelFromClass(t *testing.T) {
	l, err := LabelFromClass(1)
	require.NoError(t, err)
	assert.Equal(t, Malignant, l)

	_, err = LabelFromClass(2)
	assert.Error(t, err)
}

func TestProbabilityValidate(t *testing.T) {
	assert.NoError(t, FromMalignant(0.953).Validate())
	assert.NoError(t, Probability{Benign: 0.4, Malignant: 0.6 + 5e-7}.Validate())
	assert.Error(t, Probability{Benign: 0.5, Malignant: 0.6}.Validate())
	assert.Error(t, Probability{Benign: -0.1, Malignant: 1.1}.Validate())
}

type stubLinear struct{}

func (stubLinear) Name() string                                 { return "stub" }
func (stubLinear) Family() Family                               { return FamilyLinear }
func (stubLinear) FeatureNames() []string                       { return []string{"a"} }
func (stubLinear) Predict(mat.Vector) (Label, error)            { return Malignant, nil }
func (stubLinear) PredictProba(mat.Vector) (Probability, error) { return FromMalignant(1), nil }
func (stubLinear) Coefficients() mat.Vector                     { return mat.NewVecDense(1, []float64{1}) }
func (stubLinear) Intercept() float64                           { return 0 }

func TestWithoutProbability(t *testing.T) {
	var h Handle = stubLinear{}
	_, ok := HasProbability(h)
	require.True(t, ok)

	hidden := WithoutProbability(h)
	_, ok = HasProbability(hidden)
	assert.False(t, ok)

	lm, ok := hidden.(LinearModel)
	require.True(t, ok)
	assert.Equal(t, 1.0, lm.Coefficients().AtVec(0))
	assert.Equal(t, FamilyLinear, hidden.Family())
}
