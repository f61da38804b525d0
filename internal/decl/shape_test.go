package decl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		src  string
		want Shape
	}{
		{"u32", Named("u32")},
		{"Account", Named("Account")},
		{"token.Amount", Qualified("token", "Amount")},
		{"list<u8>", Named("list", Named("u8"))},
		{"result<u32, Error>", Named("result", Named("u32"), Named("Error"))},
		{"array<bool, 4>", Named("array", Named("bool"), Literal(4))},
		{"()", TupleOf()},
		{"(u8, string)", TupleOf(Named("u8"), Named("string"))},
		{"tuple<u8, string>", Named("tuple", Named("u8"), Named("string"))},
		{"*u8", Shape{Kind: ShapePointer, Args: []Shape{Named("u8")}}},
		{"&string", Shape{Kind: ShapeRef, Args: []Shape{Named("string")}}},
		{" option< list< token.Amount > > ", Named("option", Named("list", Qualified("token", "Amount")))},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ParseShape(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseShapeErrors(t *testing.T) {
	for _, src := range []string{"", "list<", "list<>", "a.", "u8 u8", "(u8", "<u8>", "list<u8,>"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseShape(src)
			assert.Error(t, err)
		})
	}
}

func TestShapeString(t *testing.T) {
	for _, src := range []string{"u32", "token.Amount", "result<list<u8>, Error>", "(u8, bool)", "()", "*u8", "&string", "array<u8, 20>"} {
		assert.Equal(t, src, MustParseShape(src).String())
	}
}

func TestIsUnit(t *testing.T) {
	assert.True(t, MustParseShape("()").IsUnit())
	assert.False(t, MustParseShape("(u8)").IsUnit())
	assert.False(t, MustParseShape("unit").IsUnit())
}
