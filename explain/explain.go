// Package explain computes global feature importance and local feature
// contributions for linear and tree-ensemble model handles.
//
// Linear models are explained by their coefficients: the global score of a
// feature is |coef|, its local score is coef*x. Tree ensembles are explained
// by their feature_importances: the global score is the importance itself and
// the local score is importance*x. The tree-ensemble local score is a
// heuristic that scales importance by magnitude; it is not a signed
// attribution.
package explain

import (
	"encoding/json"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/core/schema"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
)

// DefaultTolerance is the allowed gap between sigmoid(log-odds) and the
// model's own P(Malignant).
const DefaultTolerance = 1e-6

// FeatureScore is one row of a global importance ranking.
type FeatureScore struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// GlobalImportance holds model-level scores in schema order.
type GlobalImportance struct {
	Model  string         `json:"model"`
	Family model.Family   `json:"family"`
	Scores []FeatureScore `json:"scores"`
}

// SortedAscending returns the scores ordered by increasing score. Ties keep
// schema order.
func (g *GlobalImportance) SortedAscending() []FeatureScore {
	out := append([]FeatureScore(nil), g.Scores...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// MarshalJSON adds a "ranked" field holding SortedAscending next to the
// schema-ordered scores.
func (g GlobalImportance) MarshalJSON() ([]byte, error) {
	type plain GlobalImportance
	return json.Marshal(struct {
		plain
		Ranked []FeatureScore `json:"ranked"`
	}{plain(g), g.SortedAscending()})
}

// Contribution is one row of a local explanation: the observed value, the
// coefficient or importance it was multiplied with and the product.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Weight  float64 `json:"weight"`
	Score   float64 `json:"score"`
}

// LocalContribution holds instance-level scores in schema order.
type LocalContribution struct {
	Model         string         `json:"model"`
	Family        model.Family   `json:"family"`
	Contributions []Contribution `json:"contributions"`
}

// SortedDescending returns the contributions ordered by decreasing score.
// Ties keep schema order.
func (l *LocalContribution) SortedDescending() []Contribution {
	out := append([]Contribution(nil), l.Contributions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// MarshalJSON adds a "ranked" field holding SortedDescending next to the
// schema-ordered contributions.
func (l LocalContribution) MarshalJSON() ([]byte, error) {
	type plain LocalContribution
	return json.Marshal(struct {
		plain
		Ranked []Contribution `json:"ranked"`
	}{plain(l), l.SortedDescending()})
}

// Top returns the highest scoring contribution.
func (l *LocalContribution) Top() (Contribution, bool) {
	if len(l.Contributions) == 0 {
		return Contribution{}, false
	}
	return l.SortedDescending()[0], true
}

// Engine explains handles against one schema. It is stateless and safe for
// concurrent use.
type Engine struct {
	schema    *schema.Schema
	tolerance float64
	logger    log.Logger
	metrics   *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance sets the consistency tolerance.
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol > 0 {
			e.tolerance = tol
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine for s (the default schema if nil).
func New(s *schema.Schema, opts ...Option) *Engine {
	if s == nil {
		s = schema.Default()
	}
	e := &Engine{schema: s, tolerance: DefaultTolerance, logger: log.GetLogger()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(log.ComponentKey, "explain")
	return e
}

// Tolerance returns the consistency tolerance.
func (e *Engine) Tolerance() float64 { return e.tolerance }

// weights returns the family's importance source and its global transform.
func (e *Engine) weights(op string, h model.Handle) (mat.Vector, func(float64) float64, error) {
	var (
		w         mat.Vector
		transform func(float64) float64
		source    string
	)
	switch h.Family() {
	case model.FamilyLinear:
		lm, ok := h.(model.LinearModel)
		if !ok {
			return nil, nil, errors.NewUnsupportedModelFamilyError(op, string(h.Family()))
		}
		w, transform, source = lm.Coefficients(), math.Abs, "coefficients"
	case model.FamilyTreeEnsemble:
		tm, ok := h.(model.TreeEnsembleModel)
		if !ok {
			return nil, nil, errors.NewUnsupportedModelFamilyError(op, string(h.Family()))
		}
		w, transform, source = tm.FeatureImportances(), func(v float64) float64 { return v }, "feature_importances"
	default:
		return nil, nil, errors.NewUnsupportedModelFamilyError(op, string(h.Family()))
	}
	if w == nil || w.Len() != e.schema.Len() {
		got := 0
		if w != nil {
			got = w.Len()
		}
		return nil, nil, errors.NewDimensionMismatchError(op, source, e.schema.Len(), got)
	}
	return w, transform, nil
}

// Global computes the model-level importance of every schema feature.
func (e *Engine) Global(h model.Handle) (*GlobalImportance, error) {
	w, transform, err := e.weights("explain.Global", h)
	if err != nil {
		return nil, err
	}
	g := &GlobalImportance{Model: h.Name(), Family: h.Family(), Scores: make([]FeatureScore, e.schema.Len())}
	for i := range g.Scores {
		g.Scores[i] = FeatureScore{Feature: e.schema.Name(i), Score: transform(w.AtVec(i))}
	}
	return g, nil
}

// Local computes the contribution of every feature of vec.
func (e *Engine) Local(h model.Handle, vec schema.Vector) (*LocalContribution, error) {
	w, _, err := e.weights("explain.Local", h)
	if err != nil {
		return nil, err
	}
	if vec.Len() != e.schema.Len() {
		return nil, errors.NewDimensionMismatchError("explain.Local", "input", e.schema.Len(), vec.Len())
	}

	l := &LocalContribution{Model: h.Name(), Family: h.Family(), Contributions: make([]Contribution, e.schema.Len())}
	for i := range l.Contributions {
		weight, value := w.AtVec(i), vec.At(i)
		l.Contributions[i] = Contribution{
			Feature: e.schema.Name(i),
			Value:   value,
			Weight:  weight,
			Score:   weight * value,
		}
	}
	return l, nil
}

// LogOdds returns intercept + coef·x for a linear handle.
func (e *Engine) LogOdds(h model.Handle, vec schema.Vector) (float64, error) {
	lm, ok := h.(model.LinearModel)
	if !ok || h.Family() != model.FamilyLinear {
		return 0, errors.NewUnsupportedModelFamilyError("explain.LogOdds", string(h.Family()))
	}
	coef := lm.Coefficients()
	if coef == nil || coef.Len() != vec.Len() {
		got := 0
		if coef != nil {
			got = coef.Len()
		}
		return 0, errors.NewDimensionMismatchError("explain.LogOdds", "coefficients", vec.Len(), got)
	}
	z := lm.Intercept() + mat.Dot(coef, vec.Dense())
	if err := errors.CheckScalar("explain.LogOdds", z); err != nil {
		return 0, err
	}
	return z, nil
}

// Probability maps log-odds to P(Malignant).
func (e *Engine) Probability(logOdds float64) float64 {
	return errors.Sigmoid(logOdds)
}

// CheckConsistency compares sigmoid(logOdds) with the handle's reported
// P(Malignant). A gap above the tolerance yields a warning, which is also
// passed to errors.Warn. It returns nil when the two agree or reported is nil.
func (e *Engine) CheckConsistency(h model.Handle, logOdds float64, reported *model.Probability) *errors.ConsistencyWarning {
	if reported == nil {
		return nil
	}
	sig := e.Probability(logOdds)
	if math.Abs(sig-reported.Malignant) <= e.tolerance {
		return nil
	}
	w := errors.NewConsistencyWarning(h.Name(), sig, reported.Malignant, e.tolerance)
	e.metrics.ConsistencyWarning(h.Name())
	errors.Warn(w)
	return w
}
