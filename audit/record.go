// Package audit persists one immutable record per completed prediction.
//
// Records are append-only: the Store interface exposes no update or delete.
// Backends are chosen by DSN scheme: sqlite://, postgres:// and bolt://.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/core/schema"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// TableName is the audit table (and bbolt bucket) name.
const TableName = "predictions"

// RecordID identifies a stored record. IDs increase with insertion order.
type RecordID int64

// Record is one persisted prediction event.
// ProbaBenign and ProbaMalignant are nil when the model had no probability
// capability.
type Record struct {
	ID             RecordID        `json:"id"`
	ModelName      string          `json:"model_name"`
	Prediction     string          `json:"prediction"`
	ProbaBenign    *float64        `json:"prediction_proba_benign"`
	ProbaMalignant *float64        `json:"prediction_proba_malignant"`
	Input          json.RawMessage `json:"input_data"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewRecord builds a record from a prediction. The input is stored as a
// schema-tagged blob.
func NewRecord(modelName string, label model.Label, proba *model.Probability, input schema.Vector) (Record, error) {
	if modelName == "" {
		return Record{}, errors.NewValidationError("model_name", "must not be empty", modelName)
	}
	if !label.Valid() {
		return Record{}, errors.NewValidationError("prediction", "unknown label", int(label))
	}
	if input.Schema() == nil {
		return Record{}, errors.NewValidationError("input_data", "feature vector is not bound to a schema", nil)
	}
	blob, err := json.Marshal(input.Blob())
	if err != nil {
		return Record{}, errors.Wrap(err, "encode input blob")
	}

	rec := Record{ModelName: modelName, Prediction: label.String(), Input: blob}
	if proba != nil {
		b, m := proba.Benign, proba.Malignant
		rec.ProbaBenign, rec.ProbaMalignant = &b, &m
	}
	return rec, nil
}

// DecodeInput parses the stored input blob.
func (r Record) DecodeInput() (schema.Blob, error) {
	var b schema.Blob
	if err := json.Unmarshal(r.Input, &b); err != nil {
		return b, errors.Wrap(err, "decode input blob")
	}
	return b, nil
}

// ErrRecordNotFound is returned by Get for an unknown id.
var ErrRecordNotFound = errors.New("tumorscope: audit record not found")

// Store is an append-only audit log.
type Store interface {
	// EnsureSchema creates the table or bucket if it does not exist.
	EnsureSchema(ctx context.Context) error
	// Append writes rec in one transaction and returns its id.
	Append(ctx context.Context, rec Record) (RecordID, error)
	// Get returns the record with id.
	Get(ctx context.Context, id RecordID) (Record, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// Backend names the storage engine.
	Backend() string
	Close() error
}
