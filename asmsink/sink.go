// Package asmsink defines the write-only assembler sink interface the
// ABI core emits through, plus one reference text-emitting
// implementation (TextSink, see textsink.go). Consumers of the sysv
// package may supply their own Sink — a binary encoder, a DWARF-aware
// sink, or anything else that can render the same calls.
package asmsink

// DataKind selects the directive width for a Data call.
type DataKind byte

const (
	Byte DataKind = iota
	Word
	Double // .long, 4 bytes
	Quad
	Ascii
)

// OperandKind discriminates the Operand sum type. The set is closed:
// an instruction operand is a register, an immediate, a symbol/label
// expression, a base+displacement memory reference, or a
// segment-relative memory reference.
type OperandKind byte

const (
	OpReg OperandKind = iota
	OpImm
	OpSym
	OpMem
	OpSegMem
)

// Operand is one instruction operand in dialect-neutral form. The sink
// owns rendering it into the configured assembler syntax; emitters
// never bake dialect-specific text into an operand themselves.
type Operand struct {
	Kind OperandKind

	Reg string // register name at its intended width, e.g. "eax", "xmm0"
	Imm int64

	// Sym is a symbol/label expression: a call target, a jump label, or
	// the symbolic part of a memory reference (OpMem with Base "rip",
	// or a @tpoff expression).
	Sym string

	// Memory fields, valid for OpMem/OpSegMem.
	Base   string // base register; empty for an absolute symbol reference
	Offset int64
	Seg    string // segment register for OpSegMem, e.g. "fs"

	// Size is the operand's width in bytes when the instruction would
	// otherwise be ambiguous (a memory operand with no register operand
	// to infer from): 1, 2, 4, 8, or 10/16 for x87 long doubles. Zero
	// means no explicit size decoration is needed.
	Size int
}

// Reg builds a register operand.
func Reg(name string) Operand { return Operand{Kind: OpReg, Reg: name} }

// Imm builds an immediate operand.
func Imm(v int64) Operand { return Operand{Kind: OpImm, Imm: v} }

// Sym builds a symbol/label operand, e.g. a call target.
func Sym(text string) Operand { return Operand{Kind: OpSym, Sym: text} }

// Mem builds a base+displacement memory operand. base may also be a
// symbol name for an absolute reference, which the dialect renderer
// detects against the register name table.
func Mem(base string, offset int64) Operand {
	return Operand{Kind: OpMem, Base: base, Offset: offset}
}

// SizedMem is Mem with an explicit operand size, for instructions
// whose width the assembler cannot infer (x87 loads, byte stores).
func SizedMem(base string, offset int64, sizeBytes int) Operand {
	return Operand{Kind: OpMem, Base: base, Offset: offset, Size: sizeBytes}
}

// SymMem builds a symbol-relative memory operand such as a
// RIP-relative or @tpoff reference: Intel `[base+sym]`, AT&T
// `sym(%base)`.
func SymMem(symbol, base string) Operand {
	return Operand{Kind: OpMem, Base: base, Sym: symbol}
}

// SegMem builds a segment-relative memory operand: Intel `seg:off`,
// AT&T `%seg:off`.
func SegMem(seg string, offset int64) Operand {
	return Operand{Kind: OpSegMem, Seg: seg, Offset: offset}
}

// Sink is the write-only assembler text/directive surface the core
// drives.
type Sink interface {
	Section(name string)
	Label(format string, args ...any)
	Global(symbol string)
	External(symbol string)
	Align(bytes int)
	AlignZero(bytes int)

	Data(kind DataKind, operands ...any)
	BinData(bytes []byte)
	ZeroData(bytes int)
	UninitData(bytes int)

	// Instr emits one instruction with its mnemonic and dialect-neutral
	// operands, e.g. Instr("mov", Reg("eax"), Mem("rbp", -8)). A
	// reference sink renders these per its configured syntax; a
	// binary-encoding sink could instead dispatch on mnemonic to its
	// own encoder.
	Instr(mnemonic string, operands ...Operand)

	InlineAssembly(template string)

	Comment(format string, args ...any)
	Newline(count int)
	Close()
}
