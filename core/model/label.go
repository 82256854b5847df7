package model

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// Label は二値の腫瘍クラスです。内部では0/1、外部ではテキストで表現します。
type Label int

const (
	// Benign は良性（クラス0）です。
	Benign Label = 0
	// Malignant は悪性（クラス1）です。
	Malignant Label = 1
)

// String はラベルのテキスト表現を返します。
func (l Label) String() string {
	switch l {
	case Benign:
		return "Benign"
	case Malignant:
		return "Malignant"
	default:
		return fmt.Sprintf("Label(%d)", int(l))
	}
}

// Valid は既知のラベルかどうかを返します。
func (l Label) Valid() bool {
	return l == Benign || l == Malignant
}

// MarshalText はラベルをテキストとしてエンコードします。
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, errors.Newf("invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText はテキストからラベルを復元します。
func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel は "Benign" / "Malignant" を解釈します。
func ParseLabel(s string) (Label, error) {
	switch s {
	case "Benign":
		return Benign, nil
	case "Malignant":
		return Malignant, nil
	default:
		return 0, errors.Newf("unknown label %q", s)
	}
}

// LabelFromClass はモデルが出力した数値クラスをラベルに変換します。
func LabelFromClass(class float64) (Label, error) {
	switch class {
	case 0:
		return Benign, nil
	case 1:
		return Malignant, nil
	default:
		return 0, errors.Newf("class %v is not binary", class)
	}
}

// ProbabilityTolerance は確率の和が1からずれてよい許容誤差です。
const ProbabilityTolerance = 1e-6

// Probability は (P(Benign), P(Malignant)) の組です。
type Probability struct {
	Benign    float64 `json:"benign"`
	Malignant float64 `json:"malignant"`
}

// FromMalignant はP(Malignant)から確率の組を作ります。
func FromMalignant(p float64) Probability {
	return Probability{Benign: 1 - p, Malignant: p}
}

// Validate は両方の値が[0,1]にあり、和が1に近いことを確認します。
func (p Probability) Validate() error {
	for _, v := range []float64{p.Benign, p.Malignant} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return errors.Newf("probability %v outside [0,1]", v)
		}
	}
	if math.Abs(p.Benign+p.Malignant-1) > ProbabilityTolerance {
		return errors.Newf("probabilities sum to %v, want 1", p.Benign+p.Malignant)
	}
	return nil
}
