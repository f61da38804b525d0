package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeResponse parses a JSON CLI response.
func decodeResponse(t *testing.T, out string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "svcidl", cmd.Use)
	assert.Contains(t, cmd.Long, "canonical CBOR")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"resolve", "validate", "publish", "list", "inspect", "call", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"resolve", []string{"service", "imports", "registry", "output", "pack"}},
		{"validate", []string{"imports", "registry"}},
		{"publish", []string{"registry"}},
		{"list", []string{"registry", "dependents"}},
		{"inspect", []string{"registry"}},
		{"call", []string{"args", "reply", "construct", "imports", "registry"}},
		{"test", []string{"update", "filter", "registry", "metrics"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "flag --%s", name)
			}
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, "--format", "invalid", "validate", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigFlag_Missing(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "validate", ".")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigDrivesDefaults(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out", "counter.idl")
	cfgPath := filepath.Join(dir, "svcidl.yaml")
	cfg := "decls: testdata/decls/counter\noutput: " + out + "\ncompress: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	stdout, _, err := execute(t, "--config", cfgPath, "resolve", "--format", "json")
	require.NoError(t, err)

	_, data := decodeResponse(t, stdout)
	assert.Equal(t, out, data["output"])

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEqual(t, byte('{'), written[0], "compress should pack the artifact")
}

func TestVerboseLogsToStderr(t *testing.T) {
	out := filepath.Join(t.TempDir(), "counter.json")
	stdout, stderr, err := execute(t, "-v", "--format", "json", "resolve", "testdata/decls/counter", "-o", out)
	require.NoError(t, err)

	decodeResponse(t, stdout)
	assert.Contains(t, stderr, "loaded declarations")
}
