package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

// SaveEnvelope はアーティファクトをファイルに保存します。拡張子で形式を選びます（.json / .gob）。
//
// 使用例:
//
//	env := &model.Envelope{FormatVersion: model.FormatVersion, Family: model.FamilyLinear, ...}
//	err := model.SaveEnvelope(env, "models/logistic_regression.gob")
func SaveEnvelope(env *Envelope, filename string) error {
	format := Format(filename)
	if format == "" {
		return errors.Newf("unsupported artifact extension %q", filepath.Ext(filename))
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	if format == "json" {
		return EncodeJSON(file, env)
	}
	return SaveEnvelopeToWriter(env, file)
}

// LoadEnvelope はファイルからアーティファクトを読み込みます。
// 戻り値のエンベロープはまだ Validate されていません。
func LoadEnvelope(filename string) (*Envelope, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	switch Format(filename) {
	case "json":
		return DecodeJSON(file)
	case "gob":
		return LoadEnvelopeFromReader(file)
	default:
		return nil, errors.Newf("unsupported artifact extension %q", filepath.Ext(filename))
	}
}

// SaveEnvelopeToWriter はアーティファクトをgobでio.Writerに保存します。
func SaveEnvelopeToWriter(env *Envelope, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		return errors.Wrap(err, "failed to encode artifact")
	}
	return nil
}

// LoadEnvelopeFromReader はio.Readerからgob形式のアーティファクトを読み込みます。
func LoadEnvelopeFromReader(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "failed to decode artifact")
	}
	return &env, nil
}

// Format はファイル名の拡張子からアーティファクト形式（"json" / "gob" / ""）を返します。
func Format(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return "json"
	case ".gob":
		return "gob"
	default:
		return ""
	}
}
