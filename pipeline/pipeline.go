// Package pipeline wires model resolution, inference, explanation and audit
// into one call per prediction request.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/tumorscope/audit"
	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/explain"
	"github.com/YuminosukeSato/tumorscope/inference"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
	"github.com/YuminosukeSato/tumorscope/pkg/telemetry"
)

// Resolver resolves model identifiers. *registry.Registry implements it.
type Resolver interface {
	Resolve(ctx context.Context, id string) (model.Handle, error)
	Models() []string
}

// Report is everything produced for one prediction request.
type Report struct {
	RequestID     string                     `json:"request_id"`
	Model         string                     `json:"model"`
	Family        model.Family               `json:"family"`
	Prediction    model.Label                `json:"prediction"`
	Probabilities *model.Probability         `json:"probabilities,omitempty"`
	Global        *explain.GlobalImportance  `json:"global_importance"`
	Local         *explain.LocalContribution `json:"local_contribution"`
	// LogOdds and SigmoidProbability are set for linear models only.
	LogOdds            *float64                     `json:"log_odds,omitempty"`
	SigmoidProbability *float64                     `json:"sigmoid_probability,omitempty"`
	Warnings           []*errors.ConsistencyWarning `json:"warnings,omitempty"`
	RecordID           audit.RecordID               `json:"record_id,omitempty"`
	Elapsed            time.Duration                `json:"-"`
}

// Pipeline runs prediction requests. It is safe for concurrent use.
type Pipeline struct {
	resolver  Resolver
	inference *inference.Engine
	explain   *explain.Engine
	store     audit.Store
	logger    log.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline. A nil store disables auditing (dry runs).
func New(resolver Resolver, inf *inference.Engine, exp *explain.Engine, store audit.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:  resolver,
		inference: inf,
		explain:   exp,
		store:     store,
		logger:    log.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(log.ComponentKey, "pipeline")
	return p
}

// Models returns the selectable model identifiers.
func (p *Pipeline) Models() []string { return p.resolver.Models() }

// GlobalImportance explains a model without predicting.
func (p *Pipeline) GlobalImportance(ctx context.Context, modelID string) (*explain.GlobalImportance, error) {
	h, err := p.resolver.Resolve(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return p.explain.Global(h)
}

// Run resolves modelID, predicts and explains raw, then appends an audit
// record. Nothing is written when any earlier step fails.
func (p *Pipeline) Run(ctx context.Context, modelID string, raw map[string]float64) (*Report, error) {
	start := time.Now()
	rep := &Report{RequestID: uuid.NewString(), Model: modelID}
	logger := p.logger.With(log.RequestIDKey, rep.RequestID, log.ModelNameKey, modelID)

	if err := p.run(ctx, rep, raw); err != nil {
		p.metrics.PipelineFailure(errors.Kind(err))
		logger.Error("pipeline run failed", err, log.OperationKey, log.OperationPipelineRun)
		return nil, err
	}
	rep.Elapsed = time.Since(start)

	fields := []any{
		log.LabelKey, rep.Prediction.String(),
		log.RecordIDKey, int64(rep.RecordID),
		log.DurationMsKey, rep.Elapsed.Milliseconds(),
	}
	if top, ok := rep.Local.Top(); ok {
		fields = append(fields, log.TopFeatureKey, top.Feature)
	}
	if rep.LogOdds != nil {
		fields = append(fields, log.LogOddsKey, *rep.LogOdds)
	}
	logger.Info("prediction recorded", fields...)
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, rep *Report, raw map[string]float64) error {
	h, err := p.resolver.Resolve(ctx, rep.Model)
	if err != nil {
		return err
	}
	rep.Family = h.Family()

	if rep.Global, err = p.explain.Global(h); err != nil {
		return err
	}

	vec, err := p.inference.Bind(raw)
	if err != nil {
		return err
	}
	res, err := p.inference.PredictVector(ctx, h, vec)
	if err != nil {
		return err
	}
	rep.Prediction, rep.Probabilities = res.Prediction, res.Probabilities

	if rep.Local, err = p.explain.Local(h, vec); err != nil {
		return err
	}

	if h.Family() == model.FamilyLinear {
		z, err := p.explain.LogOdds(h, vec)
		if err != nil {
			return err
		}
		sig := p.explain.Probability(z)
		rep.LogOdds, rep.SigmoidProbability = &z, &sig
		if w := p.explain.CheckConsistency(h, z, res.Probabilities); w != nil {
			rep.Warnings = append(rep.Warnings, w)
		}
	}

	if p.store == nil {
		return nil
	}
	rec, err := audit.NewRecord(rep.Model, res.Prediction, res.Probabilities, vec)
	if err != nil {
		return err
	}
	if rep.RecordID, err = p.store.Append(ctx, rec); err != nil {
		return err
	}
	return nil
}
