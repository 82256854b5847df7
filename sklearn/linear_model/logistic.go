package linear_model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// LogisticRegression is a fitted binary logistic regression restored from an
// artifact. It corresponds to scikit-learn's LogisticRegression with
// coef_[0] and intercept_[0]; class 1 is Malignant.
type LogisticRegression struct {
	name         string
	featureNames []string

	// Model parameters
	coef_      *mat.VecDense
	intercept_ float64
	threshold  float64
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// WithLRThreshold sets the P(Malignant) cut-off used by Predict.
func WithLRThreshold(threshold float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		if threshold > 0 && threshold < 1 {
			lr.threshold = threshold
		}
	}
}

// WithLRFeatureNames records the feature order the model was trained on.
func WithLRFeatureNames(names []string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.featureNames = append([]string(nil), names...)
	}
}

// NewLogisticRegression restores a model from its coefficients and intercept.
func NewLogisticRegression(name string, coef []float64, intercept float64, opts ...LogisticRegressionOption) (*LogisticRegression, error) {
	if len(coef) == 0 {
		return nil, errors.NewValidationError("coef", "must not be empty", len(coef))
	}
	params := make([]float64, len(coef), len(coef)+1)
	copy(params, coef)
	if err := errors.CheckNumericalStability("logistic coefficients", append(params, intercept)); err != nil {
		return nil, err
	}

	lr := &LogisticRegression{
		name:       name,
		coef_:      mat.NewVecDense(len(params), params),
		intercept_: intercept,
		threshold:  0.5,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr, nil
}

// FromEnvelope builds the model from a decoded linear artifact.
func FromEnvelope(env *model.Envelope) (*LogisticRegression, error) {
	if env.Family != model.FamilyLinear || env.Linear == nil {
		return nil, errors.NewUnsupportedModelFamilyError("linear_model.FromEnvelope", string(env.Family))
	}
	opts := []LogisticRegressionOption{WithLRFeatureNames(env.FeatureNames)}
	if env.Linear.Threshold != 0 {
		opts = append(opts, WithLRThreshold(env.Linear.Threshold))
	}
	return NewLogisticRegression(env.Name, env.Linear.Coef, env.Linear.Intercept, opts...)
}

// Name returns the model name.
func (lr *LogisticRegression) Name() string { return lr.name }

// Family returns model.FamilyLinear.
func (lr *LogisticRegression) Family() model.Family { return model.FamilyLinear }

// FeatureNames returns the training feature order.
func (lr *LogisticRegression) FeatureNames() []string {
	return append([]string(nil), lr.featureNames...)
}

// Coefficients returns a copy of coef_.
func (lr *LogisticRegression) Coefficients() mat.Vector {
	return mat.VecDenseCopyOf(lr.coef_)
}

// Intercept returns intercept_.
func (lr *LogisticRegression) Intercept() float64 { return lr.intercept_ }

// DecisionFunction returns intercept_ + coef_·x.
func (lr *LogisticRegression) DecisionFunction(x mat.Vector) (float64, error) {
	if x.Len() != lr.coef_.Len() {
		return 0, errors.NewDimensionMismatchError("LogisticRegression.DecisionFunction", "input", lr.coef_.Len(), x.Len())
	}
	return lr.intercept_ + mat.Dot(lr.coef_, x), nil
}

// Predict returns Malignant when the decision value is strictly above
// logit(threshold). At the default threshold this is decision_function > 0.
func (lr *LogisticRegression) Predict(x mat.Vector) (model.Label, error) {
	z, err := lr.DecisionFunction(x)
	if err != nil {
		return model.Benign, err
	}
	if err := errors.CheckScalar("LogisticRegression.Predict", z); err != nil {
		return model.Benign, err
	}
	if z > errors.Logit(lr.threshold) {
		return model.Malignant, nil
	}
	return model.Benign, nil
}

// PredictProba returns probability estimates for both classes
func (lr *LogisticRegression) PredictProba(x mat.Vector) (model.Probability, error) {
	z, err := lr.DecisionFunction(x)
	if err != nil {
		return model.Probability{}, err
	}
	if err := errors.CheckScalar("LogisticRegression.PredictProba", z); err != nil {
		return model.Probability{}, err
	}
	return model.FromMalignant(errors.Sigmoid(z)), nil
}
