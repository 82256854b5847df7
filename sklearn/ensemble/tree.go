package ensemble

import (
	"math"

	"github.com/YuminosukeSato/tumorscope/core/model"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// MissingType mirrors LightGBM's missing_type of a split.
type MissingType int

const (
	MissingNone MissingType = iota
	MissingZero
	MissingNaN
)

// kZeroThreshold is LightGBM's zero band for missing_type=Zero.
const kZeroThreshold = 1e-35

// Node is a flattened tree node. Leaves have Left == Right == -1.
type Node struct {
	// Split information (for non-leaf nodes)
	SplitFeature int
	Threshold    float64
	DefaultLeft  bool
	Missing      MissingType
	Gain         float64
	Left         int
	Right        int

	// Leaf information (for leaf nodes)
	LeafValue float64
	LeafCount int
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left == -1 && n.Right == -1
}

// Tree is one regression tree of the ensemble. Nodes[0] is the root.
type Tree struct {
	TreeIndex int
	Nodes     []Node
}

// Predict returns the leaf value reached by features.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue
		}
		if goLeft(node, features[node.SplitFeature]) {
			nodeID = node.Left
		} else {
			nodeID = node.Right
		}
	}
	// unreachable for trees built by convertTree
	return 0
}

func goLeft(n *Node, v float64) bool {
	switch {
	case math.IsNaN(v):
		if n.Missing == MissingNaN {
			return n.DefaultLeft
		}
		// NaN without a NaN bin is treated as zero
		v = 0
		if n.Missing == MissingZero {
			return n.DefaultLeft
		}
	case n.Missing == MissingZero && math.Abs(v) <= kZeroThreshold:
		return n.DefaultLeft
	}
	return v <= n.Threshold
}

// convertTree flattens a dump_model tree in depth-first order.
func convertTree(info *model.TreeInfo, numFeatures int) (Tree, error) {
	tree := Tree{TreeIndex: info.TreeIndex}

	var build func(n *model.TreeNode, depth int) (int, error)
	build = func(n *model.TreeNode, depth int) (int, error) {
		if depth > maxTreeDepth {
			return 0, errors.Newf("tree %d deeper than %d", info.TreeIndex, maxTreeDepth)
		}
		idx := len(tree.Nodes)
		if n.IsLeaf() {
			if math.IsNaN(n.LeafValue) || math.IsInf(n.LeafValue, 0) {
				return 0, errors.Newf("tree %d has a non-finite leaf value", info.TreeIndex)
			}
			tree.Nodes = append(tree.Nodes, Node{Left: -1, Right: -1, LeafValue: n.LeafValue, LeafCount: n.LeafCount})
			return idx, nil
		}
		if n.LeftChild == nil || n.RightChild == nil {
			return 0, errors.Newf("tree %d has an internal node with one child", info.TreeIndex)
		}
		if n.DecisionType != "" && n.DecisionType != "<=" {
			return 0, errors.Newf("tree %d: decision_type %q is not supported", info.TreeIndex, n.DecisionType)
		}
		if n.SplitFeature < 0 || n.SplitFeature >= numFeatures {
			return 0, errors.NewDimensionMismatchError("ensemble.convertTree", "split_feature", numFeatures, n.SplitFeature+1)
		}

		missing, err := parseMissingType(n.MissingType)
		if err != nil {
			return 0, err
		}
		tree.Nodes = append(tree.Nodes, Node{
			SplitFeature: n.SplitFeature,
			Threshold:    n.Threshold,
			DefaultLeft:  n.DefaultLeft,
			Missing:      missing,
			Gain:         n.SplitGain,
		})

		left, err := build(n.LeftChild, depth+1)
		if err != nil {
			return 0, err
		}
		right, err := build(n.RightChild, depth+1)
		if err != nil {
			return 0, err
		}
		tree.Nodes[idx].Left = left
		tree.Nodes[idx].Right = right
		return idx, nil
	}

	if _, err := build(&info.TreeStructure, 0); err != nil {
		return Tree{}, err
	}
	return tree, nil
}

const maxTreeDepth = 256

func parseMissingType(s string) (MissingType, error) {
	switch s {
	case "", "None":
		return MissingNone, nil
	case "Zero":
		return MissingZero, nil
	case "NaN":
		return MissingNaN, nil
	default:
		return MissingNone, errors.Newf("unknown missing_type %q", s)
	}
}
