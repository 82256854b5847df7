package ensemble

import (
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// ObjectiveType represents the objective function type
type ObjectiveType string

const (
	// Binary classification objectives
	BinaryLogistic     ObjectiveType = "binary"
	BinaryCrossEntropy ObjectiveType = "cross_entropy"
)

// Importance types accepted when importances are derived from the trees.
const (
	ImportanceGain  = "gain"
	ImportanceSplit = "split"
)

// Classifier is a fitted binary gradient boosted tree ensemble.
// P(Malignant) = sigmoid(sigmoidScale * (BaseScore + Σ leaf values)).
type Classifier struct {
	name         string
	featureNames []string
	numFeatures  int

	Objective    ObjectiveType
	SigmoidScale float64
	BaseScore    float64
	Trees        []Tree

	importances    *mat.VecDense
	importanceType string
	threshold      float64
}

// FromEnvelope builds the classifier from a decoded tree_ensemble artifact.
// When the artifact carries no feature_importances they are derived from the
// trees using importance_type (gain by default) and normalized to sum to 1.
func FromEnvelope(env *model.Envelope) (*Classifier, error) {
	if env.Family != model.FamilyTreeEnsemble || env.TreeEnsemble == nil {
		return nil, errors.NewUnsupportedModelFamilyError("ensemble.FromEnvelope", string(env.Family))
	}
	p := env.TreeEnsemble

	objective, scale, err := parseObjective(p.Objective)
	if err != nil {
		return nil, err
	}

	numFeatures := len(env.FeatureNames)
	if numFeatures == 0 {
		numFeatures = len(p.FeatureImportances)
	}
	if numFeatures == 0 {
		return nil, errors.NewValidationError("feature_names", "tree ensemble needs feature names or importances", 0)
	}

	c := &Classifier{
		name:           env.Name,
		featureNames:   append([]string(nil), env.FeatureNames...),
		numFeatures:    numFeatures,
		Objective:      objective,
		SigmoidScale:   scale,
		BaseScore:      p.BaseScore,
		Trees:          make([]Tree, 0, len(p.Trees)),
		importanceType: p.ImportanceType,
		threshold:      0.5,
	}
	for i := range p.Trees {
		tree, err := convertTree(&p.Trees[i], numFeatures)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to convert tree %d", p.Trees[i].TreeIndex)
		}
		c.Trees = append(c.Trees, tree)
	}

	if len(p.FeatureImportances) > 0 {
		if err := errors.CheckNumericalStability("feature_importances", p.FeatureImportances); err != nil {
			return nil, err
		}
		for i, v := range p.FeatureImportances {
			if v < 0 {
				return nil, errors.NewValidationError("feature_importances", "must be non-negative", i)
			}
		}
		c.importances = mat.NewVecDense(len(p.FeatureImportances), append([]float64(nil), p.FeatureImportances...))
	} else {
		if c.importanceType == "" {
			c.importanceType = ImportanceGain
		}
		imp, err := c.GetFeatureImportance(c.importanceType)
		if err != nil {
			return nil, err
		}
		c.importances = mat.NewVecDense(len(imp), imp)
	}
	return c, nil
}

// parseObjective reads strings such as "binary sigmoid:1".
func parseObjective(obj string) (ObjectiveType, float64, error) {
	parts := strings.Fields(obj)
	if len(parts) == 0 {
		return BinaryLogistic, 1, nil
	}
	objective := ObjectiveType(parts[0])
	switch objective {
	case BinaryLogistic, BinaryCrossEntropy:
	default:
		return "", 0, errors.NewValidationError("objective", "only binary objectives are supported", parts[0])
	}

	scale := 1.0
	for _, p := range parts[1:] {
		if v, ok := strings.CutPrefix(p, "sigmoid:"); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				return "", 0, errors.NewValidationError("objective", "invalid sigmoid parameter", v)
			}
			scale = f
		}
	}
	return objective, scale, nil
}

// Name returns the model name.
func (c *Classifier) Name() string { return c.name }

// Family returns model.FamilyTreeEnsemble.
func (c *Classifier) Family() model.Family { return model.FamilyTreeEnsemble }

// FeatureNames returns the training feature order.
func (c *Classifier) FeatureNames() []string {
	return append([]string(nil), c.featureNames...)
}

// FeatureImportances returns a copy of the importance vector.
func (c *Classifier) FeatureImportances() mat.Vector {
	return mat.VecDenseCopyOf(c.importances)
}

// ImportanceType reports how FeatureImportances was obtained.
func (c *Classifier) ImportanceType() string { return c.importanceType }

// NumFeatures returns the input dimension.
func (c *Classifier) NumFeatures() int { return c.numFeatures }

// RawScore returns BaseScore plus the sum of all tree outputs.
func (c *Classifier) RawScore(x mat.Vector) (float64, error) {
	if x.Len() != c.numFeatures {
		return 0, errors.NewDimensionMismatchError("ensemble.Classifier.RawScore", "input", c.numFeatures, x.Len())
	}
	features := make([]float64, x.Len())
	for i := range features {
		features[i] = x.AtVec(i)
	}

	score := c.BaseScore
	for i := range c.Trees {
		score += c.Trees[i].Predict(features)
	}
	return score, nil
}

// PredictProba returns probability estimates for both classes
func (c *Classifier) PredictProba(x mat.Vector) (model.Probability, error) {
	raw, err := c.RawScore(x)
	if err != nil {
		return model.Probability{}, err
	}
	if err := errors.CheckScalar("ensemble.Classifier.PredictProba", raw); err != nil {
		return model.Probability{}, err
	}
	return model.FromMalignant(errors.Sigmoid(c.SigmoidScale * raw)), nil
}

// Predict returns Malignant when the scaled raw score is strictly above
// logit(threshold); ties go to Benign.
func (c *Classifier) Predict(x mat.Vector) (model.Label, error) {
	raw, err := c.RawScore(x)
	if err != nil {
		return model.Benign, err
	}
	if err := errors.CheckScalar("ensemble.Classifier.Predict", raw); err != nil {
		return model.Benign, err
	}
	if c.SigmoidScale*raw > errors.Logit(c.threshold) {
		return model.Malignant, nil
	}
	return model.Benign, nil
}

// GetFeatureImportance calculates normalized importance scores from the
// trees. "split" counts how often a feature is used, "gain" sums split gains.
func (c *Classifier) GetFeatureImportance(importanceType string) ([]float64, error) {
	if importanceType != ImportanceGain && importanceType != ImportanceSplit {
		return nil, errors.NewValidationError("importance_type", "must be gain or split", importanceType)
	}
	importance := make([]float64, c.numFeatures)

	for _, tree := range c.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			if importanceType == ImportanceSplit {
				importance[node.SplitFeature]++
			} else {
				importance[node.SplitFeature] += node.Gain
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance, nil
}
