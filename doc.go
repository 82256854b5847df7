// Package tumorscope is a tumor classification inference, explanation and
// audit engine for Go backend services.
//
// Given a trained binary classifier (Benign / Malignant) and a 19-feature
// measurement record, tumorscope predicts the class and its probability,
// explains the model globally and the prediction locally, and appends every
// prediction to an append-only audit store.
//
// # Features
//
// - Model artifacts: logistic regression and gradient-boosted tree
// ensembles (LightGBM-style JSON dumps) in JSON or gob envelopes
// - Explanations: |coefficient| or stored feature importances globally,
// coefficient×value or importance×value locally, with log-odds and a
// sigmoid consistency check for linear models
// - Audit: SQLite, PostgreSQL or bbolt behind one Store interface
// - Operations: zerolog logging, Prometheus metrics, YAML/.env
// configuration, a cobra CLI and a JSON HTTP API
//
// # Quick Start
//
//	reg, _ := registry.New(registry.Options{
//	    Models: []registry.Entry{{ID: "LightGBM", Path: "models/lightgbm.json"}},
//	})
//	store, _ := audit.Open(ctx, "sqlite://data/audit.db", audit.Options{})
//	_ = store.EnsureSchema(ctx)
//
//	p := pipeline.New(reg, inference.New(nil), explain.New(nil), store)
//	rep, err := p.Run(ctx, "LightGBM", features)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(rep.Prediction, rep.Probabilities.Malignant)
//
// # Packages
//
//   - core/model: artifact envelope, Handle capability interfaces, labels
//   - core/schema: the ordered feature schema and bound input vectors
//   - sklearn/linear_model, sklearn/ensemble: the two model families
//   - registry: identifier to handle resolution with caching and hot reload
//   - inference, explain, pipeline: prediction, explanation and orchestration
//   - audit: persistence of prediction records
//   - config, server, cmd/tumorscope: configuration and outer surfaces
//   - pkg/errors, pkg/log, pkg/telemetry: errors, logging and metrics
//
// See examples/ for runnable programs.
package tumorscope
