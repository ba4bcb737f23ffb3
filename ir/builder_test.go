package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeBuilderStructChildren(t *testing.T) {
	b := NewTypeBuilder()
	root := b.OpenStruct(2, 0)
	f1 := b.Scalar(Int32)
	f2 := b.Scalar(Float64)
	typ := b.Build()

	children, err := typ.ChildrenOf(root)
	require.NoError(t, err)
	require.Equal(t, []int{f1, f2}, children)
}

func TestTypeBuilderArrayChildIsSingleElement(t *testing.T) {
	b := NewTypeBuilder()
	root := b.OpenArray(5)
	elem := b.Scalar(Int8)
	typ := b.Build()

	children, err := typ.ChildrenOf(root)
	require.NoError(t, err)
	require.Equal(t, []int{elem}, children)
}

func TestTypeSpanOfNestedAggregate(t *testing.T) {
	b := NewTypeBuilder()
	root := b.OpenStruct(2, 0)
	b.Scalar(Int32)
	inner := b.OpenStruct(1, 0)
	b.Scalar(Int64)
	typ := b.Build()

	span, err := typ.SpanOf(root)
	require.NoError(t, err)
	require.Equal(t, 4, span) // root + int32 + inner + int64

	innerSpan, err := typ.SpanOf(inner)
	require.NoError(t, err)
	require.Equal(t, 2, innerSpan)
}

func TestChildrenOfNonAggregateErrors(t *testing.T) {
	b := NewTypeBuilder()
	leaf := b.Scalar(Int32)
	typ := b.Build()
	_, err := typ.ChildrenOf(leaf)
	require.Error(t, err)
}

func TestEntryAtOutOfBoundsErrors(t *testing.T) {
	typ := NewTypeBuilder().Build()
	_, err := typ.EntryAt(0)
	require.Error(t, err)
}

func TestModuleAddAndGetDeclaration(t *testing.T) {
	m := NewModule()
	decl := &FunctionDecl{Name: "foo"}
	m.AddDeclaration(decl)
	got, err := m.GetDeclaration("foo")
	require.NoError(t, err)
	require.Equal(t, decl, got)

	_, err = m.GetDeclaration("missing")
	require.Error(t, err)
}

func TestModuleAddFunctionRegistersDeclaration(t *testing.T) {
	m := NewModule()
	m.AddFunction(&Function{Decl: FunctionDecl{Name: "bar"}})
	got, err := m.GetDeclaration("bar")
	require.NoError(t, err)
	require.Equal(t, "bar", got.Name)
}

func TestModuleAddStringLiteralAssignsSequentialIDs(t *testing.T) {
	m := NewModule()
	id0 := m.AddStringLiteral(Multibyte, []byte("a"), false)
	id1 := m.AddStringLiteral(Multibyte, []byte("b"), false)
	require.Equal(t, 0, id0)
	require.Equal(t, 1, id1)
	require.Len(t, m.StringLiterals, 2)
}

func TestInstructionZeroValueReturnDestIsValueNone(t *testing.T) {
	var inst Instruction
	require.Equal(t, ValueNone, inst.ReturnDest.Kind)
	require.Empty(t, inst.Args)
}

func TestInstructionCarriesArgsAndReturnDest(t *testing.T) {
	inst := Instruction{
		IsCall: true,
		Args: []ValueRef{
			{Kind: ValueLocal, Offset: -8},
			{Kind: ValueGlobal, Symbol: "my_string"},
		},
		ReturnDest: ValueRef{Kind: ValueLocal, Offset: -16},
	}
	require.Len(t, inst.Args, 2)
	require.Equal(t, ValueLocal, inst.Args[0].Kind)
	require.EqualValues(t, -8, inst.Args[0].Offset)
	require.Equal(t, ValueGlobal, inst.Args[1].Kind)
	require.Equal(t, "my_string", inst.Args[1].Symbol)
	require.Equal(t, ValueLocal, inst.ReturnDest.Kind)
}

func TestTypeCodeIsAggregateOpener(t *testing.T) {
	require.True(t, Struct.IsAggregateOpener())
	require.True(t, Union.IsAggregateOpener())
	require.True(t, Array.IsAggregateOpener())
	require.False(t, Int32.IsAggregateOpener())
}
