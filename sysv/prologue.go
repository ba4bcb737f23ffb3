package sysv

import (
	"github.com/amd64sysv/codegen/asmsink"
)

// Emitter drives prologue/epilogue emission and, together with the
// call materializer, the rest of per-function codegen. It writes into
// a Sink.
type Emitter struct {
	sink asmsink.Sink
}

// NewEmitter wraps a Sink.
func NewEmitter(sink asmsink.Sink) *Emitter { return &Emitter{sink: sink} }

// EmitPrologue emits the five-step prologue sequence.
//
//	(high address)
//	|     .......     |
//	|      arg 0      | <----- RSP before the call; RBP+16 after step 1
//	|   Return Addr   |
//	|    Caller_RBP   | <----- RBP (after step 1)
//	|     .......     |  register-save area, parameter shadow,
//	|                 |  locals, outgoing-call temporaries
//	+-----------------+ <----- RSP (after step 1: RBP-TotalSize)
//	(low address)
func (e *Emitter) EmitPrologue(name string, fd *FunctionDescriptor, fp *FramePlan, variadic bool) {
	e.sink.Label("%s", name)

	// 1. Standard frame entry.
	e.sink.Instr("push", asmsink.Reg("rbp"))
	e.sink.Instr("mov", asmsink.Reg("rbp"), asmsink.Reg("rsp"))
	if fp.TotalSize > 0 {
		e.sink.Instr("sub", asmsink.Reg("rsp"), asmsink.Imm(fp.TotalSize))
	}

	// 2. Variadic register-save area: save RDI..R9 unconditionally, then
	// branch on AL to decide whether to also save XMM0..XMM7.
	if variadic {
		e.emitRegisterSaveArea(fp)
	}

	// 3. Spill every register-resident parameter into the frame's
	// parameter-shadow region. This non-optimizing codegen always
	// spills on entry.
	e.spillParameters(fd, fp)

	// 4. Memory parameters already sit at [rbp+16+offset]; nothing to
	// emit.

	// 5. A Memory return stashes the hidden RDI pointer for the
	// epilogue to retrieve.
	if fd.ImplicitReturnParam {
		e.sink.Instr("mov", rbpMem(fp.ReturnBufferSlot), asmsink.Reg("rdi"))
	}
}

// emitRegisterSaveArea saves the six integer parameter registers at
// area offsets 0..40 and, when AL says any were used, XMM0..XMM7 at
// offsets 48..160. Addresses ascend from the area's base at
// rbp-RegisterSaveArea.
func (e *Emitter) emitRegisterSaveArea(fp *FramePlan) {
	base := -fp.RegisterSaveArea
	intRegs := []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	for i, reg := range intRegs {
		e.sink.Instr("mov", rbpMem(base+int64(i*8)), asmsink.Reg(reg))
	}
	e.sink.Instr("test", asmsink.Reg("al"), asmsink.Reg("al"))
	e.sink.Instr("jz", asmsink.Sym("skip_sse_save"))
	for i := 0; i < 8; i++ {
		e.sink.Instr("movdqu", rbpMem(base+48+int64(i*16)), asmsink.Reg(sseName(i)))
	}
	e.sink.Label("skip_sse_save")
}

func sseName(i int) string { return SSEReg(i).String() }

// spillParameters stores every register-resident parameter into its
// frame slot, in declaration order.
func (e *Emitter) spillParameters(fd *FunctionDescriptor, fp *FramePlan) {
	for i, loc := range fd.Params {
		e.spillOne(loc, fp.ParamSlotOffset(i))
	}
}

func (e *Emitter) spillOne(loc Location, slotOffset int64) {
	switch loc.Kind {
	case LocNone, LocMemory:
		return
	case LocNested:
		// Covered by the parent aggregate's spill.
		return
	case LocGPReg:
		e.sink.Instr("mov", rbpMem(slotOffset), asmsink.Reg(loc.GPReg.String()))
	case LocSSEReg:
		e.sink.Instr("movq", rbpMem(slotOffset), asmsink.Reg(loc.SSEReg.String()))
	case LocMultiple:
		for i, sub := range loc.Multiple {
			e.spillOne(sub, slotOffset+int64(i)*8)
		}
	default:
		panic("BUG: cannot spill location kind " + loc.String())
	}
}

// EmitEpilogue emits the two-step epilogue sequence.
// resultSlotOffset is the RBP-relative frame slot where the return
// value was materialized by the code preceding `ret`; resultSize is
// only meaningful for a Memory return (the byte count to copy into the
// caller-provided buffer).
func (e *Emitter) EmitEpilogue(fd *FunctionDescriptor, fp *FramePlan, resultSlotOffset int64, resultSize int64) {
	// 1. Materialize the return value at its ABI location.
	switch fd.Return.Kind {
	case LocNone:
		// nothing to materialize.
	case LocGPReg:
		e.sink.Instr("mov", asmsink.Reg(fd.Return.GPReg.String()), rbpMem(resultSlotOffset))
	case LocSSEReg:
		e.sink.Instr("movq", asmsink.Reg(fd.Return.SSEReg.String()), rbpMem(resultSlotOffset))
	case LocMultiple:
		for i, sub := range fd.Return.Multiple {
			e.materializeReturnQword(sub, resultSlotOffset+int64(i)*8)
		}
	case LocX87:
		e.sink.Instr("fld", asmsink.SizedMem("rbp", resultSlotOffset, 10))
	case LocComplexX87:
		// Imaginary part pushed first so the real part ends up in st0.
		e.sink.Instr("fld", asmsink.SizedMem("rbp", resultSlotOffset+16, 10))
		e.sink.Instr("fld", asmsink.SizedMem("rbp", resultSlotOffset, 10))
	case LocMemory:
		// handled by the ImplicitReturnParam branch below.
	default:
		panic("BUG: cannot materialize return location kind " + fd.Return.String())
	}

	if fd.ImplicitReturnParam {
		e.sink.Instr("mov", asmsink.Reg("rdi"), rbpMem(fp.ReturnBufferSlot))
		e.emitMemcpy(memRef{"rdi", 0}, memRef{"rbp", resultSlotOffset}, resultSize)
		// The copy clobbers RDI (rep movsb) and RAX (unrolled loads), so
		// the buffer address is reloaded from its frame slot.
		e.sink.Instr("mov", asmsink.Reg("rax"), rbpMem(fp.ReturnBufferSlot))
	}

	// 2. Standard frame exit.
	e.sink.Instr("mov", asmsink.Reg("rsp"), asmsink.Reg("rbp"))
	e.sink.Instr("pop", asmsink.Reg("rbp"))
	e.sink.Instr("ret")
}

func (e *Emitter) materializeReturnQword(loc Location, slotOffset int64) {
	switch loc.Kind {
	case LocGPReg:
		e.sink.Instr("mov", asmsink.Reg(loc.GPReg.String()), rbpMem(slotOffset))
	case LocSSEReg:
		e.sink.Instr("movq", asmsink.Reg(loc.SSEReg.String()), rbpMem(slotOffset))
	case LocNone, LocNested:
	default:
		panic("BUG: unexpected return qword location " + loc.String())
	}
}
