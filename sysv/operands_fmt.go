package sysv

import (
	"fmt"

	"github.com/amd64sysv/codegen/asmsink"
)

// memRef is a base-register-plus-displacement value source/destination,
// used by the prologue/epilogue emitter and the call materializer to
// describe copy sources and destinations. Rendering into assembler
// syntax is the sink's job; operand() converts to the sink's
// dialect-neutral form.
type memRef struct {
	base   string
	offset int64
}

func (m memRef) operand() asmsink.Operand { return asmsink.Mem(m.base, m.offset) }

func (m memRef) sized(bytes int) asmsink.Operand {
	return asmsink.SizedMem(m.base, m.offset, bytes)
}

// String renders an Intel-style form for diagnostics and test
// assertions only; emission always goes through operand().
func (m memRef) String() string {
	if m.offset == 0 {
		return fmt.Sprintf("[%s]", m.base)
	}
	if m.offset > 0 {
		return fmt.Sprintf("[%s+%d]", m.base, m.offset)
	}
	return fmt.Sprintf("[%s-%d]", m.base, -m.offset)
}

// MemOperand is the caller-facing name for a memRef: a base register
// (or symbol) plus a byte displacement, used to describe where a call
// argument's value currently lives or where a call's return value
// should land (CallSite.ArgSources, CallSite.ReturnDest).
type MemOperand = memRef

// NewMemOperand describes a value living at [base+offset], e.g.
// NewMemOperand("rbp", -24) for a local spilled in the caller's own
// frame, or NewMemOperand("my_string", 0) for a named symbol's address.
func NewMemOperand(base string, offset int64) MemOperand {
	return memRef{base: base, offset: offset}
}

// rbpMem builds a frame-relative memory operand.
func rbpMem(offset int64) asmsink.Operand { return asmsink.Mem("rbp", offset) }

// copyUnrollLimit is the aggregate size, in bytes, up to which a copy
// is unrolled into loads/stores; larger aggregates fall back to a
// rep-prefixed string instruction.
const copyUnrollLimit = 64

// emitMemcpy copies size bytes from src to dst, unrolling qword (and a
// byte tail) moves for size <= copyUnrollLimit, else emitting a
// `rep movsb` sequence.
func (e *Emitter) emitMemcpy(dst, src memRef, size int64) {
	if size <= 0 {
		return
	}
	if size <= copyUnrollLimit {
		var off int64
		for off+8 <= size {
			e.sink.Instr("mov", asmsink.Reg("rax"), memRef{src.base, src.offset + off}.operand())
			e.sink.Instr("mov", memRef{dst.base, dst.offset + off}.operand(), asmsink.Reg("rax"))
			off += 8
		}
		for off < size {
			e.sink.Instr("mov", asmsink.Reg("al"), memRef{src.base, src.offset + off}.operand())
			e.sink.Instr("mov", memRef{dst.base, dst.offset + off}.operand(), asmsink.Reg("al"))
			off++
		}
		return
	}
	e.sink.Instr("lea", asmsink.Reg("rdi"), dst.operand())
	e.sink.Instr("lea", asmsink.Reg("rsi"), src.operand())
	e.sink.Instr("mov", asmsink.Reg("rcx"), asmsink.Imm(size))
	e.sink.Instr("cld")
	e.sink.Instr("rep movsb")
}

// emitZero zero-fills size bytes at dst, unrolling for small sizes.
func (e *Emitter) emitZero(dst memRef, size int64) {
	if size <= 0 {
		return
	}
	if size <= copyUnrollLimit {
		var off int64
		for off+8 <= size {
			e.sink.Instr("mov", memRef{dst.base, dst.offset + off}.sized(8), asmsink.Imm(0))
			off += 8
		}
		for off < size {
			e.sink.Instr("mov", memRef{dst.base, dst.offset + off}.sized(1), asmsink.Imm(0))
			off++
		}
		return
	}
	e.sink.Instr("lea", asmsink.Reg("rdi"), dst.operand())
	e.sink.Instr("xor", asmsink.Reg("eax"), asmsink.Reg("eax"))
	e.sink.Instr("mov", asmsink.Reg("rcx"), asmsink.Imm(size))
	e.sink.Instr("cld")
	e.sink.Instr("rep stosb")
}
