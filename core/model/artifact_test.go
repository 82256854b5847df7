package model

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearEnvelope() *Envelope {
	return &Envelope{
		FormatVersion: FormatVersion,
		Name:          "Logistic Regression",
		Family:        FamilyLinear,
		FeatureNames:  []string{"a", "b"},
		Capabilities:  []string{CapabilityPredict, CapabilityPredictProba},
		Linear:        &LinearParams{Coef: []float64{0.5, -1.5}, Intercept: 0.25},
	}
}

func treeEnvelope() *Envelope {
	return &Envelope{
		FormatVersion: FormatVersion,
		Name:          "LightGBM",
		Family:        FamilyTreeEnsemble,
		FeatureNames:  []string{"a", "b"},
		Capabilities:  []string{CapabilityPredict},
		TreeEnsemble: &TreeEnsembleParams{
			Objective: "binary",
			Trees: []TreeInfo{{
				TreeIndex: 0,
				NumLeaves: 2,
				TreeStructure: TreeNode{
					SplitFeature: 1,
					SplitGain:    2.5,
					Threshold:    0.5,
					DecisionType: "<=",
					LeftChild:    &TreeNode{LeafValue: -0.2},
					RightChild:   &TreeNode{LeafValue: 0.3},
				},
			}},
		},
	}
}

func TestEnvelope_Validate(t *testing.T) {
	require.NoError(t, linearEnvelope().Validate())
	require.NoError(t, treeEnvelope().Validate())

	tests := []struct {
		name   string
		env    func() *Envelope
		errMsg string
	}{
		{"version", func() *Envelope { e := linearEnvelope(); e.FormatVersion = 2; return e }, "format_version"},
		{"no predict", func() *Envelope { e := linearEnvelope(); e.Capabilities = []string{CapabilityPredictProba}; return e }, "predict capability"},
		{"linear without block", func() *Envelope { e := linearEnvelope(); e.Linear = nil; return e }, "linear parameter block"},
		{"linear with tree block", func() *Envelope { e := linearEnvelope(); e.TreeEnsemble = treeEnvelope().TreeEnsemble; return e }, "linear parameter block"},
		{"empty coef", func() *Envelope { e := linearEnvelope(); e.Linear.Coef = nil; return e }, "no coefficients"},
		{"tree without trees", func() *Envelope { e := treeEnvelope(); e.TreeEnsemble.Trees = nil; return e }, "neither trees"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEnvelope_HasCapability(t *testing.T) {
	env := treeEnvelope()
	assert.True(t, env.HasCapability(CapabilityPredict))
	assert.True(t, env.HasCapability("PREDICT"))
	assert.False(t, env.HasCapability(CapabilityPredictProba))
}

func TestDecodeJSON(t *testing.T) {
	src := `{
  "format_version": 1,
  "name": "LightGBM",
  "family": "tree_ensemble",
  "feature_names": ["a", "b"],
  "capabilities": ["predict", "predict_proba"],
  "tree_ensemble": {
    "objective": "binary sigmoid:1",
    "base_score": 0,
    "tree_info": [{
      "tree_index": 0,
      "num_leaves": 2,
      "shrinkage": 0.1,
      "tree_structure": {
        "split_feature": 0, "split_gain": 1.5, "threshold": 2.0,
        "decision_type": "<=", "default_left": true, "missing_type": "None",
        "left_child": {"leaf_value": -0.1, "leaf_count": 10},
        "right_child": {"leaf_value": 0.2, "leaf_count": 5}
      }
    }]
  }
}`
	env, err := DecodeJSON(strings.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, env.Validate())
	root := env.TreeEnsemble.Trees[0].TreeStructure
	assert.False(t, root.IsLeaf())
	assert.True(t, root.LeftChild.IsLeaf())
	assert.Equal(t, 0.2, root.RightChild.LeafValue)

	_, err = DecodeJSON(strings.NewReader(`{"format_version": 1, "surprise": true}`))
	assert.Error(t, err)
}

func TestSaveLoadEnvelope(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"model.json", "model.gob"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			want := treeEnvelope()
			require.NoError(t, SaveEnvelope(want, path))

			got, err := LoadEnvelope(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := LoadEnvelope(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSaveEnvelopeRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.pkl")
	err := SaveEnvelope(linearEnvelope(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".pkl")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file should be left behind")
}

func TestGobRoundTripWriter(t *testing.T) {
	var buf bytes.Buffer
	want := linearEnvelope()
	require.NoError(t, SaveEnvelopeToWriter(want, &buf))
	got, err := LoadEnvelopeFromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "json", Format("a/b/Model.JSON"))
	assert.Equal(t, "gob", Format("m.gob"))
	assert.Equal(t, "", Format("m.pkl"))
}
