package sysv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amd64sysv/codegen/asmsink"
)

func TestFormatInlineAsmSubstitutesRegisterAndMemoryAndImmediate(t *testing.T) {
	params := []AsmParam{
		{Kind: AsmParamRegister, Loc: NewGPRegLocation(RAX)},
		{Kind: AsmParamMemory, Loc: NewMemoryLocation(BaseRBP, -16)},
		{Kind: AsmParamImmediate, Immediate: "42"},
	}
	out, err := FormatInlineAsm(asmsink.IntelPrefix, "mov %0, %1\nadd %0, %2", params, "f", 0, 0)
	require.NoError(t, err)
	require.Contains(t, out, "mov rax, qword ptr [rbp-16]")
	require.Contains(t, out, "add rax, 42")
}

func TestFormatInlineAsmRendersATTOperands(t *testing.T) {
	params := []AsmParam{
		{Kind: AsmParamRegister, Loc: NewGPRegLocation(RAX)},
		{Kind: AsmParamMemory, Loc: NewMemoryLocation(BaseRBP, -16)},
	}
	out, err := FormatInlineAsm(asmsink.ATT, "mov %1, %0", params, "f", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "mov -16(%rbp), %rax", out)
}

func TestFormatInlineAsmResolvesNestedMemoryMember(t *testing.T) {
	parent := NewMemoryLocation(BaseRBP, 16)
	params := []AsmParam{
		{Kind: AsmParamMemory, Loc: NewNestedLocation(&parent, 8)},
	}
	out, err := FormatInlineAsm(asmsink.IntelPrefix, "mov rax, %q0", params, "f", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "mov rax, qword ptr [rbp+24]", out)
}

func TestFormatInlineAsmNestedMemberOfRegisterParentErrors(t *testing.T) {
	parent := NewGPRegLocation(RDI)
	params := []AsmParam{
		{Kind: AsmParamMemory, Loc: NewNestedLocation(&parent, 8)},
	}
	_, err := FormatInlineAsm(asmsink.IntelPrefix, "mov rax, %0", params, "f", 0, 0)
	require.Error(t, err)
}

func TestFormatInlineAsmWidthOverride(t *testing.T) {
	params := []AsmParam{{Kind: AsmParamRegister, Loc: NewGPRegLocation(RAX)}}
	out, err := FormatInlineAsm(asmsink.IntelPrefix, "%b0 %w0 %d0 %q0", params, "f", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "al ax eax rax", out)
}

func TestFormatInlineAsmLiteralPercentAndUnique(t *testing.T) {
	out, err := FormatInlineAsm(asmsink.IntelPrefix, "%% %=", nil, "f", 0, 7)
	require.NoError(t, err)
	require.Equal(t, "% 7", out)
}

func TestFormatInlineAsmGreedyLongestMatch(t *testing.T) {
	params := make([]AsmParam, 13)
	for i := range params {
		params[i] = AsmParam{Kind: AsmParamImmediate, Immediate: "x"}
	}
	params[12] = AsmParam{Kind: AsmParamImmediate, Immediate: "twelve"}
	out, err := FormatInlineAsm(asmsink.IntelPrefix, "%12", params, "f", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "twelve", out) // binds to param 12, not param 1 then "2"
}

func TestFormatInlineAsmLabelPlaceholderBuildsTrampolineName(t *testing.T) {
	params := []AsmParam{{Kind: AsmParamLabel, TargetUID: 3}}
	out, err := FormatInlineAsm(asmsink.IntelPrefix, "jmp %l0", params, "myfunc", 5, 0)
	require.NoError(t, err)
	require.Equal(t, "jmp __kefir_asm_label_myfunc_5_3", out)
}

func TestFormatInlineAsmOutOfRangePlaceholderErrors(t *testing.T) {
	_, err := FormatInlineAsm(asmsink.IntelPrefix, "%5", nil, "f", 0, 0)
	require.Error(t, err)
}

func TestFormatInlineAsmUnrecognizedPlaceholderErrors(t *testing.T) {
	_, err := FormatInlineAsm(asmsink.IntelPrefix, "%z", nil, "f", 0, 0)
	require.Error(t, err)
}
