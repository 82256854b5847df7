// Package inference runs a model handle on a schema-validated feature vector.
package inference

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/core/schema"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
)

// Result is the outcome of one prediction.
// Probabilities is nil when the handle has no probability capability.
type Result struct {
	Model         string             `json:"model"`
	Prediction    model.Label        `json:"prediction"`
	Probabilities *model.Probability `json:"probabilities,omitempty"`
	Input         schema.Vector      `json:"-"`
	Elapsed       time.Duration      `json:"-"`
}

// Engine validates inputs and invokes model handles. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	schema  *schema.Schema
	policy  schema.ExtraKeyPolicy
	logger  log.Logger
	metrics *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtraKeyPolicy sets how keys outside the schema are treated.
func WithExtraKeyPolicy(p schema.ExtraKeyPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine validating against s (the default schema if nil).
func New(s *schema.Schema, opts ...Option) *Engine {
	if s == nil {
		s = schema.Default()
	}
	e := &Engine{schema: s, policy: schema.RejectExtra, logger: log.GetLogger()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(log.ComponentKey, "inference")
	return e
}

// Schema returns the validation schema.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Bind validates raw against the schema.
func (e *Engine) Bind(raw map[string]float64) (schema.Vector, error) {
	return e.schema.Bind(raw, e.policy)
}

// Predict validates raw and runs h on it.
func (e *Engine) Predict(ctx context.Context, h model.Handle, raw map[string]float64) (*Result, error) {
	vec, err := e.Bind(raw)
	if err != nil {
		return nil, err
	}
	return e.PredictVector(ctx, h, vec)
}

// PredictVector runs h on an already bound vector.
func (e *Engine) PredictVector(ctx context.Context, h model.Handle, vec schema.Vector) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewInferenceError("predict", h.Name(), err)
	}
	if vec.Schema() == nil {
		return nil, errors.NewInferenceError("predict", h.Name(), errors.New("feature vector is not bound to a schema"))
	}

	start := time.Now()
	x := vec.Dense()

	label, err := predictLabel(h, x)
	if err != nil {
		return nil, errors.NewInferenceError("predict", h.Name(), err)
	}

	res := &Result{Model: h.Name(), Prediction: label, Input: vec}

	if pp, ok := model.HasProbability(h); ok {
		proba, err := predictProba(pp, x)
		if err != nil {
			return nil, errors.NewInferenceError("predict_proba", h.Name(), err)
		}
		res.Probabilities = &proba
	}
	res.Elapsed = time.Since(start)

	e.metrics.ObservePrediction(res.Model, label.String(), res.Elapsed)
	if e.logger.Enabled(ctx, log.LevelDebug) {
		fields := []any{log.ModelNameKey, res.Model, log.LabelKey, label.String()}
		if res.Probabilities != nil {
			fields = append(fields, log.ConfidenceKey, res.Probabilities.Malignant)
		}
		e.logger.Debug("prediction computed", fields...)
	}
	return res, nil
}

func predictLabel(h model.Handle, x mat.Vector) (label model.Label, err error) {
	defer errors.Recover(&err, "Predict")
	label, err = h.Predict(x)
	if err != nil {
		return label, err
	}
	if !label.Valid() {
		return label, errors.Newf("model returned unknown label %d", int(label))
	}
	return label, nil
}

func predictProba(pp model.ProbabilityPredictor, x mat.Vector) (proba model.Probability, err error) {
	defer errors.Recover(&err, "PredictProba")
	proba, err = pp.PredictProba(x)
	if err != nil {
		return proba, err
	}
	if err := errors.CheckNumericalStability("PredictProba", []float64{proba.Benign, proba.Malignant}); err != nil {
		return proba, err
	}
	return proba, proba.Validate()
}
