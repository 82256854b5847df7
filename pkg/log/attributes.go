// Package log defines standard attribute keys for tumorscope operations.
//
// Keys follow a hierarchical naming convention ("model.name", "audit.record_id")
// so log pipelines can filter by prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey is the configured model identifier, e.g. "Logistic Regression".
	ModelNameKey = "model.name"

	// ModelFamilyKey is the family tag of the resolved handle: "linear" or "tree_ensemble".
	ModelFamilyKey = "model.family"

	// ArtifactPathKey is the artifact location a handle was loaded from.
	ArtifactPathKey = "model.artifact"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// RequestIDKey correlates all log lines of one pipeline run.
	RequestIDKey = "request.id"
)

// Data Shape
const (
	// FeaturesKey indicates the number of features in the schema.
	FeaturesKey = "data.features"

	// SchemaKey is the schema version tag, e.g. "wdbc-19/v1".
	SchemaKey = "data.schema"
)

// Prediction and Explanation
const (
	// LabelKey is the textual predicted label.
	LabelKey = "preds.label"

	// ConfidenceKey records P(Malignant) when the handle offers probabilities.
	ConfidenceKey = "preds.confidence"

	// LogOddsKey records intercept + coef·x for linear handles.
	LogOddsKey = "explain.log_odds"

	// TopFeatureKey is the highest-ranked feature of an explanation.
	TopFeatureKey = "explain.top_feature"
)

// Audit and Storage
const (
	// RecordIDKey is the surrogate id assigned by the audit store.
	RecordIDKey = "audit.record_id"

	// BackendKey names the audit backend: "sqlite", "postgres" or "bolt".
	BackendKey = "audit.backend"

	// AttemptKey is the 1-based write attempt number.
	AttemptKey = "audit.attempt"
)

// HTTP
const (
	// HTTPMethodKey is the request method.
	HTTPMethodKey = "http.method"

	// HTTPPathKey is the request path.
	HTTPPathKey = "http.path"

	// HTTPStatusKey is the response status code.
	HTTPStatusKey = "http.status"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error Context
const (
	// ErrorKindKey is the taxonomy class returned by errors.Kind.
	ErrorKindKey = "error.kind"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationResolve     = "resolve"
	OperationPredict     = "predict"
	OperationGlobal      = "global_importance"
	OperationLocal       = "local_contribution"
	OperationAppend      = "audit_append"
	OperationSchema      = "ensure_schema"
	OperationLoad        = "load_artifact"
	OperationPipelineRun = "pipeline_run"
)
