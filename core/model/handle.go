// Package model は学習済みモデルを一つの機能面に正規化するハンドル型を提供します。
//
// 推論と説明はファミリータグ（Linear / TreeEnsemble）で分岐します。
// 新しいファミリーを追加する場合は、Family定数とその重要度インターフェースを一組追加します。
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Family はモデルファミリーのタグです。
type Family string

const (
	// FamilyLinear は係数と切片を公開する線形モデルです。
	FamilyLinear Family = "linear"
	// FamilyTreeEnsemble は非負の feature_importances を公開する決定木アンサンブルです。
	FamilyTreeEnsemble Family = "tree_ensemble"
)

// Handle は全てのモデルハンドルが持つ機能です。生成後は読み取り専用で、並行利用できます。
type Handle interface {
	// Name はアーティファクトに記録されたモデル名を返します。
	Name() string
	// Family はファミリータグを返します。
	Family() Family
	// FeatureNames は学習時の特徴量の並びを返します。
	FeatureNames() []string
	// Predict は1サンプルのラベルを返します。
	Predict(x mat.Vector) (Label, error)
}

// ProbabilityPredictor は確率推定機能を持つハンドルが実装します。
type ProbabilityPredictor interface {
	// PredictProba は (P(Benign), P(Malignant)) を返します。
	PredictProba(x mat.Vector) (Probability, error)
}

// LinearModel は線形ファミリーの重要度ソースです。
type LinearModel interface {
	Handle
	// Coefficients は特徴量順の係数を返します。
	Coefficients() mat.Vector
	// Intercept は切片を返します。
	Intercept() float64
}

// TreeEnsembleModel は決定木アンサンブルファミリーの重要度ソースです。
type TreeEnsembleModel interface {
	Handle
	// FeatureImportances は特徴量順の非負の重要度を返します。
	FeatureImportances() mat.Vector
}

// HasProbability はハンドルが確率推定機能を公開しているかを判定します。
func HasProbability(h Handle) (ProbabilityPredictor, bool) {
	p, ok := h.(ProbabilityPredictor)
	return p, ok
}

type linearOnly struct{ LinearModel }

type treeOnly struct{ TreeEnsembleModel }

type handleOnly struct{ Handle }

// WithoutProbability は確率推定機能を隠したハンドルを返します。
// アーティファクトが predict_proba を宣言していない場合にレジストリが使用します。
func WithoutProbability(h Handle) Handle {
	switch m := h.(type) {
	case LinearModel:
		return linearOnly{m}
	case TreeEnsembleModel:
		return treeOnly{m}
	default:
		return handleOnly{h}
	}
}
