// Package fixtures builds model artifacts for tests.
package fixtures

import (
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/core/schema"
)

// Linear returns a logistic regression artifact over names.
func Linear(name string, names []string, coef []float64, intercept float64) *model.Envelope {
	return &model.Envelope{
		FormatVersion: model.FormatVersion,
		Name:          name,
		Family:        model.FamilyLinear,
		FeatureNames:  append([]string(nil), names...),
		Capabilities:  []string{model.CapabilityPredict, model.CapabilityPredictProba},
		Linear:        &model.LinearParams{Coef: append([]float64(nil), coef...), Intercept: intercept},
	}
}

// Tree returns a tree ensemble artifact with one stump per feature listed in
// splits and the given importances.
func Tree(name string, names []string, importances []float64, splits ...int) *model.Envelope {
	trees := make([]model.TreeInfo, 0, len(splits))
	for i, f := range splits {
		trees = append(trees, model.TreeInfo{
			TreeIndex: i,
			NumLeaves: 2,
			Shrinkage: 0.1,
			TreeStructure: model.TreeNode{
				SplitFeature: f,
				SplitGain:    1,
				Threshold:    0.5,
				DecisionType: "<=",
				MissingType:  "None",
				LeftChild:    &model.TreeNode{LeafValue: -1, LeafCount: 10},
				RightChild:   &model.TreeNode{LeafValue: 1, LeafCount: 10},
			},
		})
	}
	return &model.Envelope{
		FormatVersion: model.FormatVersion,
		Name:          name,
		Family:        model.FamilyTreeEnsemble,
		FeatureNames:  append([]string(nil), names...),
		Capabilities:  []string{model.CapabilityPredict, model.CapabilityPredictProba},
		TreeEnsemble: &model.TreeEnsembleParams{
			Objective:          "binary sigmoid:1",
			FeatureImportances: append([]float64(nil), importances...),
			ImportanceType:     "gain",
			Trees:              trees,
		},
	}
}

// DefaultLinear is a linear artifact over the default schema with a single
// non-zero coefficient of 2.0 on radius_mean.
func DefaultLinear(name string) *model.Envelope {
	s := schema.Default()
	coef := make([]float64, s.Len())
	i, _ := s.Index("radius_mean")
	coef[i] = 2.0
	return Linear(name, s.Names(), coef, 0)
}

// DefaultTree is a tree artifact over the default schema where area_mean and
// area_se carry importances 0.3 and 0.7.
func DefaultTree(name string) *model.Envelope {
	s := schema.Default()
	imp := make([]float64, s.Len())
	imp[0], imp[1] = 0.3, 0.7
	return Tree(name, s.Names(), imp, 0, 1)
}

// Input returns a full default-schema input with every feature set to v and
// the given overrides applied.
func Input(v float64, overrides map[string]float64) map[string]float64 {
	raw := make(map[string]float64)
	for _, n := range schema.Default().Names() {
		raw[n] = v
	}
	for k, x := range overrides {
		raw[k] = x
	}
	return raw
}

// Write saves env under dir and returns its path.
func Write(tb testing.TB, dir, file string, env *model.Envelope) string {
	tb.Helper()
	path := filepath.Join(dir, file)
	if err := model.SaveEnvelope(env, path); err != nil {
		tb.Fatalf("write artifact %s: %v", path, err)
	}
	return path
}
