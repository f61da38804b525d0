package decl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "wallet.cue", "package svc\n"+walletCUE)
	writeCUE(t, dir, "token.cue", `package svc

service: Token: {
	version: "0.3.0"
	struct: Amount: value: "u128"
}
`)

	sets, errs := LoadDir(dir)
	require.Empty(t, errs)
	require.Len(t, sets, 2)

	names := []string{sets[0].Name, sets[1].Name}
	assert.ElementsMatch(t, []string{"Wallet", "Token"}, names)
}

func TestLoadDir_CollectsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "svc.cue", `package svc

service: Good: {
	version: "1.0.0"
	function: ping: {}
}

service: NoVersion: {
	function: ping: {}
}

service: BadIndex: {
	version: "1.0.0"
	event: E: {
		fields: a: "u8"
		indexed: ["b"]
	}
}
`)

	sets, errs := LoadDir(dir)
	require.Len(t, sets, 1)
	assert.Equal(t, "Good", sets[0].Name)
	require.Len(t, errs, 2)

	codes := map[string]bool{}
	for _, err := range errs {
		var le *LoadError
		require.True(t, errors.As(err, &le))
		codes[le.Code] = true
	}
	assert.True(t, codes[ErrCodeVersion])
	assert.True(t, codes[ErrCodeIndexed])
}

func TestLoadDir_Errors(t *testing.T) {
	empty := t.TempDir()
	noServices := t.TempDir()
	writeCUE(t, noServices, "x.cue", "package svc\n\nother: 1\n")
	broken := t.TempDir()
	writeCUE(t, broken, "x.cue", "package svc\n\nservice: {\n")

	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", filepath.Join(empty, "nope"), ErrCodeNotFound},
		{"no files", empty, ErrCodeNoFiles},
		{"no services", noServices, ErrCodeNoServices},
		{"syntax", broken, ErrCodeLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadDir(tt.dir)
			require.Len(t, errs, 1)
			var le *LoadError
			require.True(t, errors.As(errs[0], &le))
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadOne(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "svc.cue", `package svc

service: A: version: "1.0.0"
service: B: version: "2.0.0"
`)

	_, err := LoadOne(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares 2 services")

	b, err := LoadOne(dir, "B")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", b.Version)

	_, err = LoadOne(dir, "C")
	require.Error(t, err)
}
