// Package schema は特徴量スキーマと、それに束縛された特徴量ベクトルを提供します。
//
// スキーマは順序付きの特徴量名の列です。係数・重要度の系列はスキーマと同じ順序で並びます。
package schema

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// DefaultVersion は乳腺腫瘍19特徴量スキーマのバージョンタグです。
const DefaultVersion = "wdbc-19/v1"

// defaultNames はモデル学習時の特徴量の並び順です。
var defaultNames = []string{
	"area_mean", "area_se", "area_worst", "compactness_mean",
	"compactness_worst", "concave points_mean", "concave points_worst",
	"concavity_mean", "concavity_worst", "perimeter_mean", "perimeter_se",
	"perimeter_worst", "radius_mean", "radius_se", "radius_worst",
	"smoothness_worst", "symmetry_worst", "texture_mean", "texture_worst",
}

// ExtraKeyPolicy はスキーマに存在しないキーの扱いを決めます。
type ExtraKeyPolicy int

const (
	// RejectExtra は余分なキーをSchemaMismatchErrorとして拒否します。
	RejectExtra ExtraKeyPolicy = iota
	// IgnoreExtra は余分なキーを黙って捨てます。
	IgnoreExtra
)

// ParseExtraKeyPolicy は設定値 "strict" / "ignore" を変換します。
func ParseExtraKeyPolicy(s string) (ExtraKeyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict", "reject":
		return RejectExtra, nil
	case "ignore":
		return IgnoreExtra, nil
	default:
		return RejectExtra, errors.NewValidationError("schema.extra_keys", "must be strict or ignore", s)
	}
}

// Schema は順序付きの特徴量名の集合です。生成後は不変です。
type Schema struct {
	version string
	names   []string
	index   map[string]int
}

// New は特徴量名の列からスキーマを作成します。空や重複はエラーです。
func New(version string, names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, errors.ErrEmptySchema
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, errors.NewValidationError("schema.features", "feature name must not be empty", i)
		}
		if _, dup := idx[n]; dup {
			return nil, errors.NewValidationError("schema.features", "duplicate feature name", n)
		}
		idx[n] = i
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return &Schema{version: version, names: cp, index: idx}, nil
}

// Default は19特徴量の既定スキーマを返します。
func Default() *Schema {
	s, err := New(DefaultVersion, defaultNames)
	if err != nil {
		panic(err)
	}
	return s
}

// Version はスキーマのバージョンタグを返します。
func (s *Schema) Version() string { return s.version }

// Len は特徴量の数を返します。
func (s *Schema) Len() int { return len(s.names) }

// Names は特徴量名のコピーをスキーマ順で返します。
func (s *Schema) Names() []string {
	cp := make([]string, len(s.names))
	copy(cp, s.names)
	return cp
}

// Name はi番目の特徴量名を返します。
func (s *Schema) Name(i int) string { return s.names[i] }

// Index は特徴量名の位置を返します。
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// SameNames はnamesがスキーマと同じ名前を同じ順序で持つかを判定します。
func (s *Schema) SameNames(names []string) bool {
	if len(names) != len(s.names) {
		return false
	}
	for i, n := range names {
		if s.names[i] != n {
			return false
		}
	}
	return true
}

// Bind は生の特徴量マップをスキーマに束縛します。
// 欠落したキーと非有限値は常に拒否され、余分なキーはpolicyに従います。
func (s *Schema) Bind(raw map[string]float64, policy ExtraKeyPolicy) (Vector, error) {
	values := make([]float64, len(s.names))
	var missing, nonFinite, extra []string

	for i, n := range s.names {
		v, ok := raw[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nonFinite = append(nonFinite, n)
			continue
		}
		values[i] = v
	}
	if policy == RejectExtra {
		for k := range raw {
			if _, ok := s.index[k]; !ok {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
	}

	if len(missing) > 0 || len(nonFinite) > 0 || len(extra) > 0 {
		return Vector{}, errors.NewSchemaMismatchError(s.version, missing, extra, nonFinite)
	}
	return Vector{schema: s, values: values}, nil
}

// Vector はスキーマに束縛された特徴量ベクトルです。値はスキーマ順に並びます。
type Vector struct {
	schema *Schema
	values []float64
}

// Schema は束縛先のスキーマを返します。ゼロ値ではnilです。
func (v Vector) Schema() *Schema { return v.schema }

// Len は特徴量の数を返します。
func (v Vector) Len() int { return len(v.values) }

// At はi番目の値を返します。
func (v Vector) At(i int) float64 { return v.values[i] }

// Get は特徴量名で値を引きます。
func (v Vector) Get(name string) (float64, bool) {
	if v.schema == nil {
		return 0, false
	}
	i, ok := v.schema.index[name]
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Values は値のコピーを返します。
func (v Vector) Values() []float64 {
	cp := make([]float64, len(v.values))
	copy(cp, v.values)
	return cp
}

// Dense はgonumのベクトルとして返します。呼び出し側が変更しても元の値には影響しません。
func (v Vector) Dense() *mat.VecDense {
	return mat.NewVecDense(len(v.values), v.Values())
}

// Map は特徴量名から値へのマップを返します。
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.values))
	for i, n := range v.schema.names {
		m[n] = v.values[i]
	}
	return m
}

// Blob は監査ストアに保存されるスキーマタグ付きの入力表現です。
type Blob struct {
	Schema   string             `json:"schema"`
	Features map[string]float64 `json:"features"`
}

// Blob はベクトルを永続化用の表現に変換します。
func (v Vector) Blob() Blob {
	return Blob{Schema: v.schema.version, Features: v.Map()}
}
