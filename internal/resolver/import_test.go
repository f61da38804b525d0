package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svcidl/internal/decl"
	"github.com/roach88/svcidl/internal/idl"
)

func unitsInterface() *idl.Interface {
	return &idl.Interface{
		Name:    "units",
		Version: "1.0.0",
		TypeDefs: []idl.TypeDef{
			{Kind: idl.KindEnum, Name: "Unit", Variants: []idl.Variant{{Name: "Wei"}, {Name: "Gwei"}}},
		},
	}
}

func tokenInterface() *idl.Interface {
	return &idl.Interface{
		Name:    "token",
		Version: "0.3.0",
		Imports: []idl.Import{{Name: "units", Version: "1.0.0"}},
		TypeDefs: []idl.TypeDef{
			{Kind: idl.KindStruct, Name: "Amount", Fields: []idl.Field{
				{Name: "value", Type: idl.U128},
				{Name: "unit", Type: idl.Defined{Namespace: "units", Name: "Unit"}},
			}},
			{Kind: idl.KindStruct, Name: "Plain", Fields: []idl.Field{{Name: "value", Type: idl.U64}}},
		},
	}
}

func walletDecls(imports ...decl.Import) *decl.Set {
	return &decl.Set{
		Name:    "Wallet",
		Version: "1.0.0",
		Imports: imports,
		Functions: []decl.Function{
			{Name: "balance", Output: shape("Plain")},
		},
		Constructors: ctor(),
	}
}

func TestResolveImportedType(t *testing.T) {
	iface, err := resolve(t, walletDecls(decl.Import{Name: "token", Version: "0.3.0"}), tokenInterface())
	require.NoError(t, err)

	fn, _ := iface.Function("balance")
	assert.Equal(t, idl.Defined{Namespace: "token", Name: "Plain"}, fn.Output)
	assert.Empty(t, iface.TypeDefs, "imported defs stay owned by their interface")
	require.Len(t, iface.Imports, 1)
	assert.Equal(t, idl.ImportKey{Name: "token", Version: "0.3.0"}, iface.Imports[0].Key())
}

func TestResolveQualifiedImport(t *testing.T) {
	set := walletDecls(decl.Import{Name: "token", Version: "0.3.0"})
	set.Functions[0].Output = shape("token.Plain")

	iface, err := resolve(t, set, tokenInterface())
	require.NoError(t, err)
	assert.Equal(t, idl.Defined{Namespace: "token", Name: "Plain"}, iface.Functions[0].Output)
}

func TestResolveLocalShadowsImport(t *testing.T) {
	set := walletDecls(decl.Import{Name: "token", Version: "0.3.0"})
	set.Structs = []decl.Struct{{Name: "Plain", Fields: []decl.Field{field("v", "u8")}}}

	iface, err := resolve(t, set, tokenInterface())
	require.NoError(t, err)
	assert.Equal(t, idl.Defined{Name: "Plain"}, iface.Functions[0].Output, "local declarations win")
}

func TestResolveImportOrderFirstMatchWins(t *testing.T) {
	other := &idl.Interface{
		Name:     "other",
		Version:  "2.0.0",
		TypeDefs: []idl.TypeDef{{Kind: idl.KindStruct, Name: "Plain"}},
	}
	set := walletDecls(
		decl.Import{Name: "other", Version: "2.0.0"},
		decl.Import{Name: "token", Version: "0.3.0"},
	)

	iface, err := resolve(t, set, tokenInterface(), other)
	require.NoError(t, err)
	assert.Equal(t, idl.Defined{Namespace: "other", Name: "Plain"}, iface.Functions[0].Output)
}

func TestResolveUndeclaredImport(t *testing.T) {
	// token is in the build environment but not imported.
	_, err := resolve(t, walletDecls(), tokenInterface())
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrUndeclaredImport), "got %v", err)

	set := walletDecls()
	set.Functions[0].Output = shape("token.Plain")
	_, err = resolve(t, set, tokenInterface())
	assert.True(t, HasCode(err, ErrUndeclaredImport))
}

func TestResolveTransitiveImportMustBeDeclared(t *testing.T) {
	set := walletDecls(decl.Import{Name: "token", Version: "0.3.0"})
	set.Functions[0].Output = shape("Amount")

	_, err := resolve(t, set, tokenInterface(), unitsInterface())
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrUndeclaredImport), "Amount reaches units.Unit through token")

	set = walletDecls(
		decl.Import{Name: "token", Version: "0.3.0"},
		decl.Import{Name: "units", Version: "1.0.0"},
	)
	set.Functions[0].Output = shape("Amount")
	_, err = resolve(t, set, tokenInterface(), unitsInterface())
	assert.NoError(t, err)
}

func TestResolveTransitiveImportVersionMismatch(t *testing.T) {
	newer := unitsInterface()
	newer.Version = "2.0.0"
	set := walletDecls(
		decl.Import{Name: "token", Version: "0.3.0"},
		decl.Import{Name: "units", Version: "2.0.0"},
	)
	set.Functions[0].Output = shape("Amount")

	_, err := resolve(t, set, tokenInterface(), newer)
	assert.True(t, HasCode(err, ErrUndeclaredImport))
}

func TestResolveMissingImport(t *testing.T) {
	_, err := resolve(t, walletDecls(decl.Import{Name: "token", Version: "9.9.9"}), tokenInterface())
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrMissingImport))
}

func TestResolveUnknownQualified(t *testing.T) {
	set := walletDecls(decl.Import{Name: "token", Version: "0.3.0"})
	set.Functions[0].Output = shape("token.Nope")
	_, err := resolve(t, set, tokenInterface())
	assert.True(t, HasCode(err, ErrUnknownType))
}

func TestResolveDuplicateImport(t *testing.T) {
	set := walletDecls(
		decl.Import{Name: "token", Version: "0.3.0"},
		decl.Import{Name: "token", Version: "0.3.0"},
	)
	_, err := resolve(t, set, tokenInterface())
	assert.True(t, HasCode(err, ErrDuplicateDefinition))
}
