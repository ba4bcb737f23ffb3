package asmsink

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Syntax selects the assembler dialect TextSink renders. Matches the
// `syntax` CLI/config option.
type Syntax byte

const (
	IntelPrefix Syntax = iota
	IntelNoPrefix
	ATT
)

// TextSink is the reference Sink implementation: it renders every call
// into assembler source text for one of the three configured dialects,
// with per-operand formatting generalized to a textual emission walk
// rather than binary encoding.
type TextSink struct {
	w      io.Writer
	syntax Syntax
	err    error
}

// NewTextSink returns a TextSink writing to w in the given dialect.
func NewTextSink(w io.Writer, syntax Syntax) *TextSink {
	return &TextSink{w: w, syntax: syntax}
}

// Err returns the first write error encountered, if any.
func (s *TextSink) Err() error { return s.err }

func (s *TextSink) writef(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, err := fmt.Fprintf(s.w, format, args...)
	if err != nil {
		s.err = err
	}
}

// Section implements Sink.
func (s *TextSink) Section(name string) { s.writef(".section %s\n", name) }

// Label implements Sink.
func (s *TextSink) Label(format string, args ...any) {
	s.writef(fmt.Sprintf(format, args...) + ":\n")
}

// Global implements Sink.
func (s *TextSink) Global(symbol string) { s.writef(".globl %s\n", symbol) }

// External implements Sink.
func (s *TextSink) External(symbol string) { s.writef(".extern %s\n", symbol) }

// Align implements Sink.
func (s *TextSink) Align(bytes int) { s.writef(".align %d\n", bytes) }

// AlignZero implements Sink.
func (s *TextSink) AlignZero(bytes int) { s.writef(".align %d, 0x00\n", bytes) }

var dataDirective = map[DataKind]string{
	Byte:   ".byte",
	Word:   ".word",
	Double: ".long",
	Quad:   ".quad",
	Ascii:  ".ascii",
}

// Data implements Sink.
func (s *TextSink) Data(kind DataKind, operands ...any) {
	directive, ok := dataDirective[kind]
	if !ok {
		panic(fmt.Sprintf("BUG: invalid data kind %d", byte(kind)))
	}
	if kind == Ascii {
		if len(operands) != 1 {
			panic("BUG: Ascii data takes exactly one string operand")
		}
		s.writef("  %s \"%s\"\n", directive, escapeAscii(fmt.Sprint(operands[0])))
		return
	}
	parts := make([]string, len(operands))
	for i, op := range operands {
		parts[i] = fmt.Sprint(op)
	}
	s.writef("  %s %s\n", directive, strings.Join(parts, ", "))
}

func escapeAscii(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// BinData implements Sink, emitting raw bytes as a .byte list.
func (s *TextSink) BinData(bytes []byte) {
	if len(bytes) == 0 {
		return
	}
	parts := make([]string, len(bytes))
	for i, b := range bytes {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	s.writef("  .byte %s\n", strings.Join(parts, ", "))
}

// ZeroData implements Sink.
func (s *TextSink) ZeroData(bytes int) {
	if bytes <= 0 {
		return
	}
	s.writef("  .zero %d\n", bytes)
}

// UninitData implements Sink — identical directive to ZeroData, kept
// distinct in the interface because callers use it for .bss reservation
// rather than interior structure padding.
func (s *TextSink) UninitData(bytes int) { s.ZeroData(bytes) }

// Instr implements Sink. AT&T reverses operand order relative to Intel
// and appends a size suffix to the mnemonic when an operand carries an
// explicit width; the two Intel dialects share operand order and
// differ only in whether the explicit operand-size keyword ("byte
// ptr", "tbyte ptr", ...) is rendered.
func (s *TextSink) Instr(mnemonic string, operands ...Operand) {
	if len(operands) == 0 {
		s.writef("  %s\n", mnemonic)
		return
	}
	ops := make([]string, len(operands))
	if s.syntax == ATT {
		for i, op := range operands {
			ops[len(operands)-1-i] = FormatOperand(ATT, op)
		}
		mnemonic += attSizeSuffix(operands)
	} else {
		for i, op := range operands {
			ops[i] = FormatOperand(s.syntax, op)
		}
	}
	s.writef("  %s %s\n", mnemonic, strings.Join(ops, ", "))
}

// baseRegisters is the set of names FormatOperand treats as a register
// base inside a memory operand; anything else is an absolute symbol
// reference.
var baseRegisters = map[string]bool{
	"rax": true, "rcx": true, "rdx": true, "rbx": true,
	"rsp": true, "rbp": true, "rsi": true, "rdi": true,
	"r8": true, "r9": true, "r10": true, "r11": true,
	"r12": true, "r13": true, "r14": true, "r15": true,
	"rip": true,
}

// sizeKeyword maps an explicit operand size to the Intel operand-size
// keyword rendered ahead of a memory operand.
func sizeKeyword(size int) string {
	switch size {
	case 1:
		return "byte ptr"
	case 2:
		return "word ptr"
	case 4:
		return "dword ptr"
	case 8:
		return "qword ptr"
	case 10, 16:
		return "tbyte ptr"
	default:
		return "qword ptr"
	}
}

// attSizeSuffix derives the AT&T mnemonic suffix from the first
// operand carrying an explicit size, mirroring where Intel syntax
// would need a size keyword.
func attSizeSuffix(operands []Operand) string {
	for _, op := range operands {
		if op.Size == 0 {
			continue
		}
		switch op.Size {
		case 1:
			return "b"
		case 2:
			return "w"
		case 4:
			return "l"
		case 8:
			return "q"
		case 10, 16:
			return "t"
		}
	}
	return ""
}

// FormatOperand renders one dialect-neutral operand as syntax dictates.
// Exported so operand substitution outside instruction emission (the
// inline-assembly formatter) renders identically to Instr.
func FormatOperand(syntax Syntax, op Operand) string {
	switch op.Kind {
	case OpReg:
		if syntax == ATT {
			return "%" + op.Reg
		}
		return op.Reg
	case OpImm:
		if syntax == ATT {
			return "$" + strconv.FormatInt(op.Imm, 10)
		}
		return strconv.FormatInt(op.Imm, 10)
	case OpSym:
		return op.Sym
	case OpMem:
		if syntax == ATT {
			return attMem(op)
		}
		inner := intelMem(op)
		if syntax == IntelPrefix && op.Size != 0 {
			return sizeKeyword(op.Size) + " " + inner
		}
		return inner
	case OpSegMem:
		if syntax == ATT {
			return fmt.Sprintf("%%%s:%d", op.Seg, op.Offset)
		}
		return fmt.Sprintf("%s:%d", op.Seg, op.Offset)
	default:
		panic(fmt.Sprintf("BUG: invalid operand kind %d", byte(op.Kind)))
	}
}

func intelMem(op Operand) string {
	switch {
	case op.Sym != "" && op.Base != "":
		return fmt.Sprintf("[%s+%s]", op.Base, op.Sym)
	case op.Sym != "":
		return fmt.Sprintf("[%s]", op.Sym)
	case op.Offset > 0:
		return fmt.Sprintf("[%s+%d]", op.Base, op.Offset)
	case op.Offset < 0:
		return fmt.Sprintf("[%s-%d]", op.Base, -op.Offset)
	default:
		return fmt.Sprintf("[%s]", op.Base)
	}
}

func attMem(op Operand) string {
	switch {
	case op.Sym != "" && op.Base != "":
		return fmt.Sprintf("%s(%%%s)", op.Sym, op.Base)
	case op.Sym != "":
		return op.Sym
	case !baseRegisters[op.Base]:
		// A symbol used as a base is an absolute reference.
		if op.Offset != 0 {
			return fmt.Sprintf("%s%+d", op.Base, op.Offset)
		}
		return op.Base
	case op.Offset != 0:
		return fmt.Sprintf("%d(%%%s)", op.Offset, op.Base)
	default:
		return fmt.Sprintf("(%%%s)", op.Base)
	}
}

// InlineAssembly implements Sink, passing the already-substituted
// template through verbatim, one indented line at a time.
func (s *TextSink) InlineAssembly(template string) {
	for _, line := range strings.Split(template, "\n") {
		s.writef("  %s\n", line)
	}
}

// Comment implements Sink.
func (s *TextSink) Comment(format string, args ...any) {
	s.writef("  # "+format+"\n", args...)
}

// Newline implements Sink.
func (s *TextSink) Newline(count int) {
	for i := 0; i < count; i++ {
		s.writef("\n")
	}
}

// Close implements Sink. TextSink holds no resources of its own beyond
// the io.Writer the caller owns, so Close is a no-op.
func (s *TextSink) Close() {}
