package sysv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocationStringRendersEachKind(t *testing.T) {
	require.Equal(t, "none", None.String())
	require.Equal(t, "rdi", NewGPRegLocation(RDI).String())
	require.Equal(t, "xmm0", NewSSERegLocation(XMM0).String())
	require.Equal(t, "[rbp+16]", NewMemoryLocation(BaseRBP, 16).String())
	require.Equal(t, "[rsp+0]", NewMemoryLocation(BaseRSP, 0).String())
}

func TestLocationStringMultipleShowsBothQwords(t *testing.T) {
	loc := NewMultipleLocation([]Location{NewGPRegLocation(RAX), NewSSERegLocation(XMM0)})
	require.Contains(t, loc.String(), "rax")
	require.Contains(t, loc.String(), "xmm0")
}

func TestLocationStringNested(t *testing.T) {
	parent := NewMemoryLocation(BaseRBP, 16)
	require.Equal(t, "nested(+8)", NewNestedLocation(&parent, 8).String())
}

func TestResolveNestedThroughMemoryParent(t *testing.T) {
	parent := NewMemoryLocation(BaseRBP, 16)
	member := NewNestedLocation(&parent, 12)
	resolved, ok := ResolveNested(member)
	require.True(t, ok)
	require.Equal(t, LocMemory, resolved.Kind)
	require.Equal(t, BaseRBP, resolved.Base)
	require.EqualValues(t, 28, resolved.Offset)
}

func TestResolveNestedChainAccumulatesOffsets(t *testing.T) {
	outer := NewMemoryLocation(BaseRSP, 0)
	mid := NewNestedLocation(&outer, 16)
	inner := NewNestedLocation(&mid, 4)
	resolved, ok := ResolveNested(inner)
	require.True(t, ok)
	require.EqualValues(t, 20, resolved.Offset)
}

func TestResolveNestedRegisterParentIsNotAddressable(t *testing.T) {
	parent := NewGPRegLocation(RDI)
	_, ok := ResolveNested(NewNestedLocation(&parent, 8))
	require.False(t, ok)
}

func TestEightbyteClassStringPanicsOnInvalid(t *testing.T) {
	require.Panics(t, func() { _ = EightbyteClass(200).String() })
}

func TestEightbyteClassStringNames(t *testing.T) {
	require.Equal(t, "NO_CLASS", NoClass.String())
	require.Equal(t, "INTEGER", Integer.String())
	require.Equal(t, "SSE", Sse.String())
	require.Equal(t, "SSEUP", SseUp.String())
	require.Equal(t, "X87", X87.String())
	require.Equal(t, "X87UP", X87Up.String())
	require.Equal(t, "COMPLEX_X87", ComplexX87.String())
	require.Equal(t, "MEMORY", Memory.String())
}
