package ensemble

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

func leaf(v float64) *model.TreeNode { return &model.TreeNode{LeafValue: v} }

func stump(feature int, threshold, gain, left, right float64) model.TreeNode {
	return model.TreeNode{
		SplitFeature: feature,
		SplitGain:    gain,
		Threshold:    threshold,
		DecisionType: "<=",
		MissingType:  "None",
		LeftChild:    leaf(left),
		RightChild:   leaf(right),
	}
}

func testEnvelope() *model.Envelope {
	return &model.Envelope{
		FormatVersion: model.FormatVersion,
		Name:          "LightGBM",
		Family:        model.FamilyTreeEnsemble,
		FeatureNames:  []string{"a", "b"},
		Capabilities:  []string{model.CapabilityPredict, model.CapabilityPredictProba},
		TreeEnsemble: &model.TreeEnsembleParams{
			Objective: "binary sigmoid:1",
			Trees: []model.TreeInfo{
				{TreeIndex: 0, NumLeaves: 2, Shrinkage: 0.1, TreeStructure: stump(0, 1.0, 3, -1, 1)},
				{TreeIndex: 1, NumLeaves: 2, Shrinkage: 0.1, TreeStructure: stump(1, 0.5, 1, -0.5, 0.5)},
			},
		},
	}
}

func TestClassifier_Predict(t *testing.T) {
	clf, err := FromEnvelope(testEnvelope())
	require.NoError(t, err)

	x := mat.NewVecDense(2, []float64{2, 0})
	raw, err := clf.RawScore(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, raw, 1e-12)

	proba, err := clf.PredictProba(x)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-0.5)), proba.Malignant, 1e-12)

	label, err := clf.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, model.Malignant, label)

	label, err = clf.Predict(mat.NewVecDense(2, []float64{0, 0}))
	require.NoError(t, err)
	assert.Equal(t, model.Benign, label)
}

func TestClassifier_PredictAtDecisionBoundary(t *testing.T) {
	// raw = -1.5 + 1 + 0.5 = 0
	env := testEnvelope()
	env.TreeEnsemble.BaseScore = -1.5
	clf, err := FromEnvelope(env)
	require.NoError(t, err)

	x := mat.NewVecDense(2, []float64{2, 1})
	proba, err := clf.PredictProba(x)
	require.NoError(t, err)
	assert.Equal(t, 0.5, proba.Malignant)
	label, err := clf.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, model.Benign, label, "ties go to Benign")

	// sigmoid(-1e-17) rounds to exactly 0.5 but the score is negative
	env = testEnvelope()
	env.TreeEnsemble.Trees = env.TreeEnsemble.Trees[:1]
	env.TreeEnsemble.Trees[0].TreeStructure = stump(0, 1.0, 1, -1e-17, 1)
	clf, err = FromEnvelope(env)
	require.NoError(t, err)

	x = mat.NewVecDense(2, []float64{0, 0})
	proba, err = clf.PredictProba(x)
	require.NoError(t, err)
	assert.Equal(t, 0.5, proba.Malignant)
	label, err = clf.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, model.Benign, label)
}

func TestClassifier_BaseScoreAndSigmoidScale(t *testing.T) {
	env := testEnvelope()
	env.TreeEnsemble.BaseScore = -0.5
	env.TreeEnsemble.Objective = "binary sigmoid:2"
	clf, err := FromEnvelope(env)
	require.NoError(t, err)

	proba, err := clf.PredictProba(mat.NewVecDense(2, []float64{2, 1}))
	require.NoError(t, err)
	// raw = -0.5 + 1 + 0.5 = 1
	assert.InDelta(t, 1/(1+math.Exp(-2)), proba.Malignant, 1e-12)
}

func TestClassifier_DerivedImportances(t *testing.T) {
	clf, err := FromEnvelope(testEnvelope())
	require.NoError(t, err)
	assert.Equal(t, ImportanceGain, clf.ImportanceType())

	imp := clf.FeatureImportances()
	assert.InDelta(t, 0.75, imp.AtVec(0), 1e-12)
	assert.InDelta(t, 0.25, imp.AtVec(1), 1e-12)

	split, err := clf.GetFeatureImportance(ImportanceSplit)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, split)

	_, err = clf.GetFeatureImportance("cover")
	assert.Error(t, err)
}

func TestClassifier_ProvidedImportances(t *testing.T) {
	env := testEnvelope()
	env.TreeEnsemble.FeatureImportances = []float64{0.3, 0.7}
	clf, err := FromEnvelope(env)
	require.NoError(t, err)

	imp := clf.FeatureImportances()
	assert.Equal(t, 0.3, imp.AtVec(0))
	assert.Equal(t, 0.7, imp.AtVec(1))

	env.TreeEnsemble.FeatureImportances = []float64{-0.1, 1.1}
	_, err = FromEnvelope(env)
	assert.Error(t, err)
}

func TestClassifier_DimensionMismatch(t *testing.T) {
	clf, err := FromEnvelope(testEnvelope())
	require.NoError(t, err)

	_, err = clf.Predict(mat.NewVecDense(3, []float64{1, 2, 3}))
	var dm *errors.DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Expected)
}

func TestFromEnvelope_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(env *model.Envelope)
	}{
		{"multiclass objective", func(env *model.Envelope) { env.TreeEnsemble.Objective = "multiclass num_class:3" }},
		{"categorical split", func(env *model.Envelope) { env.TreeEnsemble.Trees[0].TreeStructure.DecisionType = "==" }},
		{"split feature out of range", func(env *model.Envelope) { env.TreeEnsemble.Trees[1].TreeStructure.SplitFeature = 5 }},
		{"one child", func(env *model.Envelope) { env.TreeEnsemble.Trees[0].TreeStructure.RightChild = nil }},
		{"bad missing type", func(env *model.Envelope) { env.TreeEnsemble.Trees[0].TreeStructure.MissingType = "Sometimes" }},
		{"linear family", func(env *model.Envelope) { env.Family = model.FamilyLinear }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnvelope()
			tt.mutate(env)
			_, err := FromEnvelope(env)
			assert.Error(t, err)
		})
	}
}

func TestTree_MissingValues(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{SplitFeature: 0, Threshold: -1, DefaultLeft: true, Missing: MissingZero, Left: 1, Right: 2},
		{Left: -1, Right: -1, LeafValue: 10},
		{Left: -1, Right: -1, LeafValue: 20},
	}}
	// 0 は欠損扱いでデフォルト方向（左）へ
	assert.Equal(t, 10.0, tree.Predict([]float64{0}))
	assert.Equal(t, 20.0, tree.Predict([]float64{3}))
	assert.Equal(t, 10.0, tree.Predict([]float64{math.NaN()}))

	tree.Nodes[0].Missing = MissingNaN
	tree.Nodes[0].DefaultLeft = false
	assert.Equal(t, 20.0, tree.Predict([]float64{math.NaN()}))
	assert.Equal(t, 20.0, tree.Predict([]float64{0}))
}

func TestClassifier_SatisfiesHandles(t *testing.T) {
	clf, err := FromEnvelope(testEnvelope())
	require.NoError(t, err)
	var _ model.TreeEnsembleModel = clf
	var _ model.ProbabilityPredictor = clf
	assert.Equal(t, model.FamilyTreeEnsemble, clf.Family())
	assert.Equal(t, []string{"a", "b"}, clf.FeatureNames())
}
