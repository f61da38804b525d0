package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyTestdata copies testdata into a temporary directory so golden files
// can be written.
func copyTestdata(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, os.DirFS("testdata")))
	return dir
}

func TestTest_Passing(t *testing.T) {
	stdout, _, err := execute(t, "test", "testdata/scenarios", "--filter", "counter")
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ counter")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestTest_Failing(t *testing.T) {
	stdout, _, err := execute(t, "test", "testdata/scenarios/counter_failing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, stdout, "✗ counter_failing")
	assert.Contains(t, stdout, "expected output 42, got 41")
	assert.Contains(t, stdout, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTest_JSON(t *testing.T) {
	stdout, _, err := execute(t, "test", "testdata/scenarios", "--format", "json")
	require.Error(t, err)

	resp, data := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(1), data["failed"])
	assert.Equal(t, float64(2), data["total"])
}

func TestTest_UpdateGolden(t *testing.T) {
	dir := copyTestdata(t)
	scenario := filepath.Join(dir, "scenarios", "counter.yaml")
	golden := filepath.Join(dir, "scenarios", "golden", "counter.golden")

	stdout, _, err := execute(t, "test", scenario, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ counter (golden updated)")
	require.FileExists(t, golden)

	_, _, err = execute(t, "test", scenario)
	require.NoError(t, err, "trace should match the golden file just written")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	stdout, _, err = execute(t, "test", scenario)
	require.Error(t, err)
	assert.Contains(t, stdout, "trace does not match golden file")
}

func TestTest_Metrics(t *testing.T) {
	stdout, _, err := execute(t, "test", "testdata/scenarios", "--filter", "counter", "--metrics", "--format", "json")
	require.NoError(t, err)

	_, data := decodeResponse(t, stdout)
	var found bool
	for _, m := range data["metrics"].([]any) {
		s := m.(map[string]any)
		labels, _ := s["labels"].(map[string]any)
		if s["name"] == "svcidl_dispatch_calls_total" && labels["method"] == "incr" && labels["outcome"] == "ok" {
			found = true
			assert.Equal(t, float64(1), s["value"])
		}
	}
	assert.True(t, found, "incr counter missing from %v", data["metrics"])
}

func TestTest_MissingPath(t *testing.T) {
	_, _, err := execute(t, "test", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles(t *testing.T) {
	dir := copyTestdata(t)
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(filepath.Join(scenarios, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "golden", "x.yaml"), []byte("name: x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "notes.txt"), []byte("x"), 0o644))

	files, err := findScenarioFiles(scenarios, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(scenarios, "counter.yaml"),
		filepath.Join(scenarios, "counter_failing.yaml"),
	}, files)

	files, err = findScenarioFiles(scenarios, "*_failing")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(scenarios, "counter_failing.yaml")}, files)

	_, err = findScenarioFiles(scenarios, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "calc.golden"), goldenFilePath(filepath.Join("a", "b", "calc.yaml")))
}

func TestLabelString(t *testing.T) {
	assert.Equal(t, "", labelString(nil))
	assert.Equal(t, `{method="incr",outcome="ok"}`, labelString(map[string]string{"outcome": "ok", "method": "incr"}))
}
