package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tumorscope/explain"
	"github.com/YuminosukeSato/tumorscope/internal/fixtures"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

type cli struct {
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o755))
	fixtures.Write(t, modelsDir, "lr.json", fixtures.DefaultLinear("Logistic Regression"))
	fixtures.Write(t, modelsDir, "lgbm.json", fixtures.DefaultTree("LightGBM"))

	cfg := fmt.Sprintf(`
models_dir: %s
models:
  - id: Logistic Regression
    path: lr.json
  - id: LightGBM
    path: lgbm.json
registry:
  watch: false
audit:
  dsn: bolt://%s
log:
  level: error
`, modelsDir, filepath.Join(dir, "audit.bolt"))
	path := filepath.Join(dir, "tumorscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &cli{dir: dir, config: path}
}

func (c *cli) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", c.config, "--env", filepath.Join(c.dir, "absent.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) writeInput(t *testing.T, raw map[string]float64) string {
	t.Helper()
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	path := filepath.Join(c.dir, "input.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestModelsCmd(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "Logistic Regression")
	assert.Contains(t, out, filepath.Join("models", "lgbm.json"))
}

func TestImportanceCmd(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "importance", "--model", "LightGBM", "--json")
	require.NoError(t, err)
	var g explain.GlobalImportance
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Len(t, g.Scores, 19)

	out, err = c.run(t, "", "importance", "--model", "LightGBM")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "area_se"), out)

	_, err = c.run(t, "", "importance")
	assert.Error(t, err)
}

func TestPredictAndHistoryCmd(t *testing.T) {
	c := newCLI(t)
	input := c.writeInput(t, fixtures.Input(0, map[string]float64{"radius_mean": 1}))

	out, err := c.run(t, "", "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, "audit store ready (bolt)")

	out, err = c.run(t, "", "predict", "--model", "Logistic Regression", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Malignant")
	assert.Contains(t, out, "Audit record:")
	assert.Contains(t, out, "radius_mean")

	out, err = c.run(t, "", "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Logistic Regression")
	assert.Contains(t, out, "0.8808")
}

func TestPredictDryRunFromStdin(t *testing.T) {
	c := newCLI(t)
	b, err := json.Marshal(fixtures.Input(0, nil))
	require.NoError(t, err)

	out, err := c.run(t, string(b), "predict", "--model", "LightGBM", "--input", "-", "--dry-run", "--json")
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "LightGBM", rep["model"])
	assert.NotContains(t, rep, "record_id")

	out, err = c.run(t, "", "history")
	require.NoError(t, err)
	assert.NotContains(t, out, "LightGBM")
}

func TestPredictErrorsCmd(t *testing.T) {
	c := newCLI(t)
	input := c.writeInput(t, fixtures.Input(0, nil))

	_, err := c.run(t, "", "predict", "--model", "Nope", "--input", input)
	var nf *errors.ModelNotFoundError
	assert.True(t, errors.As(err, &nf), "got %v", err)

	_, err = c.run(t, "not json", "predict", "--model", "LightGBM", "--input", "-")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve), "got %v", err)

	_, err = c.run(t, "", "predict", "--input", input)
	assert.Error(t, err)
}
