package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
decls: ./decls
registry: ./registry.db
output: build/svc.idl
compress: true
`)

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Decls:    "./decls",
		Registry: "./registry.db",
		Output:   "build/svc.idl",
		Compress: true,
	}, cfg)
}

func TestLoadConfig_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	_, err = LoadConfig(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""), true)
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoadConfig_UnknownField(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "decl: ./decls\n"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decl")
}

func TestPick(t *testing.T) {
	assert.Equal(t, "flag", pick("flag", "config"))
	assert.Equal(t, "config", pick("", "config"))
	assert.Equal(t, "", pick("", ""))
}
