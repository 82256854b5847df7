// Package errors はtumorscope全体のエラーハンドリングと警告システムを提供します。
// 推論・説明・監査の各段階で発生する失敗を型付きエラーとして表現し、
// 呼び出し側が errors.As で分類できるようにします。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("tumorscope-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定し、直前のハンドラを返します。
// ConsistencyWarningなどの警告の処理方法を制御できます。
//
// 例:
//
//	prev := errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
//	defer errors.SetWarningHandler(prev)
func SetWarningHandler(handler func(w error)) func(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	prev := warningHandler
	warningHandler = handler
	return prev
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConsistencyWarning は線形モデルの対数オッズから計算した確率と、
// モデル自身の PredictProba の出力が許容誤差を超えて食い違った場合の警告です。
// 予測自体は利用可能なため、エラーではなく結果への注記として扱います。
type ConsistencyWarning struct {
	ModelID           string
	SigmoidMalignant  float64 // sigmoid(intercept + coef·x)
	ReportedMalignant float64 // モデルが返した P(Malignant)
	Tolerance         float64
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("model %q: sigmoid(log-odds)=%.9f disagrees with predicted probability %.9f (tolerance %g)",
		w.ModelID, w.SigmoidMalignant, w.ReportedMalignant, w.Tolerance)
}

// Delta は2つの確率の絶対差を返します。
func (w *ConsistencyWarning) Delta() float64 {
	d := w.SigmoidMalignant - w.ReportedMalignant
	if d < 0 {
		return -d
	}
	return d
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConsistencyWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model_id", w.ModelID).
		Float64("sigmoid_malignant", w.SigmoidMalignant).
		Float64("reported_malignant", w.ReportedMalignant).
		Float64("delta", w.Delta()).
		Float64("tolerance", w.Tolerance).
		Str("type", "ConsistencyWarning")
}

// NewConsistencyWarning は新しいConsistencyWarningを作成します。
func NewConsistencyWarning(modelID string, sigmoid, reported, tolerance float64) *ConsistencyWarning {
	return &ConsistencyWarning{
		ModelID:           modelID,
		SigmoidMalignant:  sigmoid,
		ReportedMalignant: reported,
		Tolerance:         tolerance,
	}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ModelNotFoundError は設定されていないモデル識別子が指定された場合のエラーです。
type ModelNotFoundError struct {
	ModelID string
	Known   []string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("tumorscope: model %q is not configured (known: %s)", e.ModelID, strings.Join(e.Known, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ModelNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_id", e.ModelID).
		Strs("known", e.Known).
		Str("type", "ModelNotFoundError")
}

// NewModelNotFoundError は新しいModelNotFoundErrorを作成し、スタックトレースを付与します。
func NewModelNotFoundError(modelID string, known []string) error {
	return errors.WithStack(&ModelNotFoundError{ModelID: modelID, Known: known})
}

// ModelLoadError はモデルアーティファクトの読み込みまたはデシリアライズに失敗した場合のエラーです。
// ファイル破損、フォーマットバージョン不一致、必須機能の欠落を含みます。
type ModelLoadError struct {
	ModelID string
	Path    string
	Reason  string
	Err     error
}

func (e *ModelLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tumorscope: load model %q from %s: %s: %v", e.ModelID, e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("tumorscope: load model %q from %s: %s", e.ModelID, e.Path, e.Reason)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ModelLoadError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_id", e.ModelID).
		Str("path", e.Path).
		Str("reason", e.Reason).
		Str("type", "ModelLoadError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewModelLoadError は新しいModelLoadErrorを作成し、スタックトレースを付与します。
func NewModelLoadError(modelID, path, reason string, err error) error {
	return errors.WithStack(&ModelLoadError{ModelID: modelID, Path: path, Reason: reason, Err: err})
}

// SchemaMismatchError は入力された特徴量ベクトルがスキーマを満たさない場合のエラーです。
type SchemaMismatchError struct {
	Schema    string
	Missing   []string // スキーマにあるが入力にない特徴量
	Extra     []string // strictモードで拒否された余分なキー
	NonFinite []string // NaNまたはInfを含む特徴量
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Extra, ", "))
	}
	if len(e.NonFinite) > 0 {
		parts = append(parts, "non-finite "+strings.Join(e.NonFinite, ", "))
	}
	return fmt.Sprintf("tumorscope: input does not match schema %s: %s", e.Schema, strings.Join(parts, "; "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SchemaMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("schema", e.Schema).
		Strs("missing", e.Missing).
		Strs("extra", e.Extra).
		Strs("non_finite", e.NonFinite).
		Str("type", "SchemaMismatchError")
}

// NewSchemaMismatchError は新しいSchemaMismatchErrorを作成し、スタックトレースを付与します。
func NewSchemaMismatchError(schema string, missing, extra, nonFinite []string) error {
	return errors.WithStack(&SchemaMismatchError{Schema: schema, Missing: missing, Extra: extra, NonFinite: nonFinite})
}

// InferenceError はモデル評価中の失敗です。リトライせずに即座に伝播させます。
type InferenceError struct {
	Op      string
	ModelID string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("tumorscope: %s: model %q: %v", e.Op, e.ModelID, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InferenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("model_id", e.ModelID).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "InferenceError")
}

// NewInferenceError は新しいInferenceErrorを作成し、スタックトレースを付与します。
func NewInferenceError(op, modelID string, err error) error {
	return errors.WithStack(&InferenceError{Op: op, ModelID: modelID, Err: err})
}

// UnsupportedModelFamilyError はハンドルのファミリータグがどの既知のバリアントとも一致しない場合のエラーです。
type UnsupportedModelFamilyError struct {
	Op     string
	Family string
}

func (e *UnsupportedModelFamilyError) Error() string {
	return fmt.Sprintf("tumorscope: %s: unsupported model family %q", e.Op, e.Family)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnsupportedModelFamilyError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("family", e.Family).
		Str("type", "UnsupportedModelFamilyError")
}

// NewUnsupportedModelFamilyError は新しいUnsupportedModelFamilyErrorを作成し、スタックトレースを付与します。
func NewUnsupportedModelFamilyError(op, family string) error {
	return errors.WithStack(&UnsupportedModelFamilyError{Op: op, Family: family})
}

// DimensionMismatchError は係数・重要度の系列長が特徴量スキーマの長さと異なる場合のエラーです。
type DimensionMismatchError struct {
	Op       string
	Source   string // "coefficients" or "feature_importances"
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("tumorscope: %s: %s length mismatch. Expected %d, got %d", e.Op, e.Source, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("source", e.Source).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("type", "DimensionMismatchError")
}

// NewDimensionMismatchError は新しいDimensionMismatchErrorを作成し、スタックトレースを付与します。
func NewDimensionMismatchError(op, source string, expected, got int) error {
	return errors.WithStack(&DimensionMismatchError{Op: op, Source: source, Expected: expected, Got: got})
}

// StorageWriteError は監査レコードの永続化に失敗した場合のエラーです。
// 一時的な障害に対して一度だけリトライした後に返されます。
type StorageWriteError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("tumorscope: audit write to %s failed after %d attempt(s): %v", e.Backend, e.Attempts, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *StorageWriteError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("backend", e.Backend).
		Int("attempts", e.Attempts).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "StorageWriteError")
}

// NewStorageWriteError は新しいStorageWriteErrorを作成し、スタックトレースを付与します。
func NewStorageWriteError(backend string, attempts int, err error) error {
	return errors.WithStack(&StorageWriteError{Backend: backend, Attempts: attempts, Err: err})
}

// ValidationError は設定値などの入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tumorscope: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// Kind はエラーを分類名に変換します。メトリクスのラベルやHTTPレスポンスで使用します。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case isType[*ModelNotFoundError](err):
		return "model_not_found"
	case isType[*ModelLoadError](err):
		return "model_load"
	case isType[*SchemaMismatchError](err):
		return "schema_mismatch"
	case isType[*InferenceError](err):
		return "inference"
	case isType[*UnsupportedModelFamilyError](err):
		return "unsupported_family"
	case isType[*DimensionMismatchError](err):
		return "dimension_mismatch"
	case isType[*StorageWriteError](err):
		return "storage_write"
	case isType[*ValidationError](err):
		return "validation"
	default:
		return "internal"
	}
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptySchema は特徴量スキーマが空の場合のエラーです。
	ErrEmptySchema = New("empty feature schema")
)
