// Package sysv implements the AMD64 System V ABI code generation core:
// type classification, parameter/return placement, frame planning,
// prologue/epilogue emission, call materialization and static data
// serialization.
package sysv

import "fmt"

// GPReg identifies one of the 16 AMD64 general-purpose registers by its
// 64-bit name, independent of the width it is referenced at in an
// instruction operand.
type GPReg byte

const (
	RAX GPReg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// SSEReg identifies one of the 16 XMM registers.
type SSEReg byte

const (
	XMM0 SSEReg = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

// IntegerParamPool is the fixed, ABI-mandated order in which the 6
// integer argument registers are drawn from.
var IntegerParamPool = [6]GPReg{RDI, RSI, RDX, RCX, R8, R9}

// SSEParamPool is the fixed order of the 8 SSE argument registers.
var SSEParamPool = [8]SSEReg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}

// IntegerReturnPool gives the up-to-two integer registers used for a
// return value, in qword order.
var IntegerReturnPool = [2]GPReg{RAX, RDX}

// SSEReturnPool gives the up-to-two SSE registers used for a return
// value, in qword order.
var SSEReturnPool = [2]SSEReg{XMM0, XMM1}

var gpName64 = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var gpName32 = [16]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var gpName16 = [16]string{
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
}

var gpName8 = [16]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

// SubRegister returns the register name for r at the given operand
// width in bytes (1, 2, 4 or 8). This is the one place a `mov` whose
// operand width differs from a parameter's natural width looks up the
// correctly-sized register name.
func SubRegister(r GPReg, widthBytes int) string {
	switch widthBytes {
	case 1:
		return gpName8[r]
	case 2:
		return gpName16[r]
	case 4:
		return gpName32[r]
	case 8:
		return gpName64[r]
	default:
		panic(fmt.Sprintf("BUG: invalid register width %d", widthBytes))
	}
}

// String implements fmt.Stringer, always rendering the 64-bit name.
func (r GPReg) String() string { return gpName64[r] }

// String implements fmt.Stringer.
func (r SSEReg) String() string { return fmt.Sprintf("xmm%d", r) }
