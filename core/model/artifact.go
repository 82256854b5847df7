package model

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// FormatVersion はこのパッケージが読み書きするアーティファクト形式のバージョンです。
const FormatVersion = 1

// 機能名
const (
	CapabilityPredict      = "predict"
	CapabilityPredictProba = "predict_proba"
)

// Envelope はモデルアーティファクトの共通の外枠です。
// ファミリーに応じて Linear か TreeEnsemble のどちらか一方だけを持ちます。
type Envelope struct {
	FormatVersion int                 `json:"format_version"`
	Name          string              `json:"name,omitempty"`
	Family        Family              `json:"family"`
	FeatureNames  []string            `json:"feature_names,omitempty"`
	Capabilities  []string            `json:"capabilities"`
	Linear        *LinearParams       `json:"linear,omitempty"`
	TreeEnsemble  *TreeEnsembleParams `json:"tree_ensemble,omitempty"`
}

// LinearParams はロジスティック回帰の学習済みパラメータです（scikit-learnの coef_[0], intercept_[0]）。
type LinearParams struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Threshold float64   `json:"threshold,omitempty"` // P(Malignant) の判定閾値、既定0.5
}

// TreeEnsembleParams は勾配ブースティング木の学習済みパラメータです。
// 木はLightGBMの dump_model 形式のノード構造で保存されます。
type TreeEnsembleParams struct {
	Objective          string     `json:"objective"`
	BaseScore          float64    `json:"base_score"`
	FeatureImportances []float64  `json:"feature_importances,omitempty"`
	ImportanceType     string     `json:"importance_type,omitempty"` // "gain" or "split"
	Trees              []TreeInfo `json:"tree_info"`
}

// TreeInfo は1本の木の情報です。
type TreeInfo struct {
	TreeIndex     int      `json:"tree_index"`
	NumLeaves     int      `json:"num_leaves"`
	Shrinkage     float64  `json:"shrinkage"`
	TreeStructure TreeNode `json:"tree_structure"`
}

// TreeNode は内部ノードまたは葉です。LeftChild と RightChild が共に nil なら葉です。
type TreeNode struct {
	// 内部ノード
	SplitFeature int       `json:"split_feature,omitempty"`
	SplitGain    float64   `json:"split_gain,omitempty"`
	Threshold    float64   `json:"threshold,omitempty"`
	DecisionType string    `json:"decision_type,omitempty"` // "<=" のみ対応
	DefaultLeft  bool      `json:"default_left,omitempty"`
	MissingType  string    `json:"missing_type,omitempty"` // "None", "NaN", "Zero"
	LeftChild    *TreeNode `json:"left_child,omitempty"`
	RightChild   *TreeNode `json:"right_child,omitempty"`

	// 葉
	LeafValue float64 `json:"leaf_value,omitempty"`
	LeafCount int     `json:"leaf_count,omitempty"`
}

// IsLeaf は葉ノードかどうかを返します。
func (n *TreeNode) IsLeaf() bool {
	return n.LeftChild == nil && n.RightChild == nil
}

// HasCapability は指定した機能が宣言されているかを判定します。
func (e *Envelope) HasCapability(name string) bool {
	for _, c := range e.Capabilities {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Validate はアーティファクトの構造的な整合性を検証します。
// 係数・重要度の長さとスキーマの照合は説明エンジンの責務です。
func (e *Envelope) Validate() error {
	if e.FormatVersion != FormatVersion {
		return errors.Newf("unsupported format_version %d (want %d)", e.FormatVersion, FormatVersion)
	}
	if !e.HasCapability(CapabilityPredict) {
		return errors.New("artifact does not declare the predict capability")
	}
	switch e.Family {
	case FamilyLinear:
		if e.Linear == nil || e.TreeEnsemble != nil {
			return errors.New("linear artifact must carry exactly the linear parameter block")
		}
		if len(e.Linear.Coef) == 0 {
			return errors.New("linear artifact has no coefficients")
		}
	case FamilyTreeEnsemble:
		if e.TreeEnsemble == nil || e.Linear != nil {
			return errors.New("tree_ensemble artifact must carry exactly the tree_ensemble parameter block")
		}
		if len(e.TreeEnsemble.Trees) == 0 && len(e.TreeEnsemble.FeatureImportances) == 0 {
			return errors.New("tree_ensemble artifact has neither trees nor feature_importances")
		}
	}
	return nil
}

// DecodeJSON はJSON形式のアーティファクトを読み込みます。未知のフィールドは拒否します。
func DecodeJSON(r io.Reader) (*Envelope, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode json artifact")
	}
	return &env, nil
}

// EncodeJSON はアーティファクトをJSONで書き出します。
func EncodeJSON(w io.Writer, env *Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return errors.Wrap(err, "encode json artifact")
	}
	return nil
}
