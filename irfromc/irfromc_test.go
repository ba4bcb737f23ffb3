package irfromc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amd64sysv/codegen/ir"
)

func TestScalarTypeCodePlainKeywords(t *testing.T) {
	cases := []struct {
		keywords []string
		want     ir.TypeCode
	}{
		{[]string{"int"}, ir.Int32},
		{nil, ir.Int32},
		{[]string{"char"}, ir.Int8},
		{[]string{"unsigned", "char"}, ir.Int8},
		{[]string{"short"}, ir.Int16},
		{[]string{"long"}, ir.Int64},
		{[]string{"long", "long"}, ir.Int64},
		{[]string{"float"}, ir.Float32},
		{[]string{"double"}, ir.Float64},
		{[]string{"long", "double"}, ir.LongDouble},
		{[]string{"_Bool"}, ir.Bool},
		{[]string{"float", "_Complex"}, ir.ComplexFloat32},
		{[]string{"double", "_Complex"}, ir.ComplexFloat64},
		{[]string{"long", "double", "_Complex"}, ir.ComplexLongDouble},
	}
	for _, c := range cases {
		got, err := scalarTypeCode(c.keywords)
		require.NoError(t, err)
		require.Equal(t, c.want, got, "keywords=%v", c.keywords)
	}
}

func TestScalarTypeCodeRejectsUnsupported(t *testing.T) {
	_, err := scalarTypeCode([]string{"__int128"})
	require.Error(t, err)
}

func TestContainsAndCount(t *testing.T) {
	xs := []string{"long", "long", "int"}
	require.True(t, contains(xs, "long"))
	require.False(t, contains(xs, "short"))
	require.Equal(t, 2, count(xs, "long"))
	require.Equal(t, 0, count(xs, "short"))
}

func TestDefaultConfigTargetsLinuxAmd64(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "linux", cfg.TargetOS)
	require.Equal(t, "amd64", cfg.Target)
}
