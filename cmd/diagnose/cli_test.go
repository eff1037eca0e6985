package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/store"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `
models:
  dir: ` + filepath.Join(dir, "ml_models") + `
media:
  dir: ` + filepath.Join(dir, "media") + `
store:
  path: ` + filepath.Join(dir, "data", "diagnosis.db") + `
logging:
  level: fatal
  format: text
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestPredictCmd(t *testing.T) {
	configFile := writeTestConfig(t)
	casePath := filepath.Join(t.TempDir(), "case.json")
	require.NoError(t, os.WriteFile(casePath, []byte(`{"csf_protein": 60, "seizures": 1, "notes": "n/a"}`), 0o644))

	out := execute(t, "--config", configFile, "predict", "--disease", "ae", "--data", casePath, "--save=true")

	var result domain.DiagnosticResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.LabelAE, result.Label)
	assert.Equal(t, 60.0, result.Confidence)

	history := execute(t, "--config", configFile, "history", "--limit", "5", "--json=false", "--delete=")
	assert.Contains(t, history, domain.LabelAE)
	assert.Contains(t, history, "60.00")
	assert.Contains(t, history, "Showing 1 of 1 sessions")

	var export store.SessionExport
	require.NoError(t, json.Unmarshal([]byte(execute(t, "--config", configFile, "history", "--json=true", "--delete=")), &export))
	require.Len(t, export.Sessions, 1)
	id := export.Sessions[0].ID

	deleted := execute(t, "--config", configFile, "history", "--json=false", "--delete", id)
	assert.Contains(t, deleted, "Deleted session "+id)

	empty := execute(t, "--config", configFile, "history", "--json=false", "--delete=")
	assert.Contains(t, empty, "No sessions stored")
}

func TestModelsCmd(t *testing.T) {
	configFile := writeTestConfig(t)

	out := execute(t, "--config", configFile, "models")
	assert.Contains(t, out, "MODEL")
	for _, key := range modelRoles {
		assert.Contains(t, out, string(key))
	}
	assert.Contains(t, out, "false")
	assert.NotContains(t, out, "true")
}

func TestReadCase(t *testing.T) {
	t.Run("Null_Document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "null.json")
		require.NoError(t, os.WriteFile(path, []byte("null"), 0o644))
		got, err := readCase(path)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		_, err := readCase(path)
		assert.Error(t, err)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := readCase(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}
