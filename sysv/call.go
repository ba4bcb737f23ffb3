package sysv

import (
	"github.com/amd64sysv/codegen/asmsink"
	"github.com/amd64sysv/codegen/ir"
)

// CallSite describes one call instruction's resolved inputs to the
// call materializer: the callee's declaration, how the call reaches
// it, the memory operand each argument currently lives at, and where
// the return value goes (this module does not own SSA value storage,
// which belongs to the IR).
type CallSite struct {
	Kind      ir.CallKind
	Callee    *FunctionDecl
	CalleeSym string // direct-call symbol name; unused for indirect calls
	// ThroughPLT routes a direct call through the procedure linkage
	// table, as position-independent code requires for any symbol the
	// static linker may not resolve locally.
	ThroughPLT bool
	ArgSources []memRef
	// ReturnDest, if the return is register-resident, is where the
	// caller wants the retrieved value copied to; for a Memory return
	// it is the caller-owned buffer the hidden pointer will point at.
	ReturnDest memRef
}

// FunctionDecl aliases ir.FunctionDecl so call.go reads self-contained;
// kept as a type alias rather than a wrapper since the Call
// Materializer needs nothing beyond the IR's own declaration shape.
type FunctionDecl = ir.FunctionDecl

// callerSavedGPRegs and callerSavedSSERegs are the registers a call
// site must consider stashing: every register not guaranteed
// callee-saved by the ABI.
var callerSavedGPRegs = []GPReg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}
var callerSavedSSERegs = []SSEReg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}

// CallPlan is the resolved per-call-site resource plan the Call
// Materializer emits from: the callee's Function Descriptor, the
// outgoing stack-argument area size, and whether the call is eligible
// to be a tail call.
type CallPlan struct {
	Callee           *FunctionDescriptor
	OutgoingBytes    int64
	TailCallEligible bool
}

// PlanCall resolves the callee's Function Descriptor and computes the
// outgoing-argument area size, rounded to 16 bytes.
func (a *ParamAllocator) PlanCall(callee *ir.FunctionDecl) (*CallPlan, error) {
	fd, err := a.Allocate(callee)
	if err != nil {
		return nil, err
	}
	return &CallPlan{
		Callee:        fd,
		OutgoingBytes: roundUp(fd.StackBytes, 16),
	}, nil
}

// TailCallEligible tests whether a call site may be lowered as a tail
// jump: the callee's return location must match the caller's, no live
// values may span the call (the caller asserts this; the core cannot
// see liveness, which is the IR/optimizer's business), and the
// callee's outgoing stack-argument area must fit within the caller's
// own incoming argument area.
func TailCallEligible(callerFD, calleeFD *FunctionDescriptor, callerIncomingStackBytes int64) bool {
	if !sameLocationKind(callerFD.Return, calleeFD.Return) {
		return false
	}
	if calleeFD.StackBytes > callerIncomingStackBytes {
		return false
	}
	return true
}

func sameLocationKind(a, b Location) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case LocGPReg:
		return a.GPReg == b.GPReg
	case LocSSEReg:
		return a.SSEReg == b.SSEReg
	default:
		return true
	}
}

// RegisterStash is the set of caller-saved registers the materializer
// decided to preserve across a call, and the frame slots they were
// spilled to. The order slices record spill order so unstashing emits
// the same instruction sequence on every run (map iteration would
// not).
type RegisterStash struct {
	GPSlots  map[GPReg]int64
	SSESlots map[SSEReg]int64
	gpOrder  []GPReg
	sseOrder []SSEReg
}

// EmitCallSequence emits the full call sequence: reserve the outgoing
// argument area, stash live caller-saved registers, marshal arguments
// into their ABI locations, emit the call (or tail jump), retrieve the
// return value, unstash, and restore RSP. liveGP/liveSSE are the
// caller-saved registers currently holding
// live values (the IR/register allocator's determination, passed in by
// the caller); spillBase is an RBP-relative offset in the
// outgoing-call-temporaries region, and stash slots are taken below it
// at spillBase-8, spillBase-16, and so on.
func (e *Emitter) EmitCallSequence(plan *CallPlan, site *CallSite, liveGP []GPReg, liveSSE []SSEReg, spillBase int64) *RegisterStash {
	fd := plan.Callee

	// 2. Align the stack: reserve the outgoing argument area.
	if plan.OutgoingBytes > 0 {
		e.sink.Instr("sub", asmsink.Reg("rsp"), asmsink.Imm(plan.OutgoingBytes))
	}

	// 3. Preserve caller-saved state.
	stash := e.stashRegisters(liveGP, liveSSE, fd, &spillBase)

	// 4. Compute the return-buffer address for a Memory/aggregate return.
	var returnBuffer memRef
	if fd.ReturnIsMemory {
		returnBuffer = site.ReturnDest
	}

	// 5. Marshal arguments.
	e.marshalArguments(fd, site)
	if fd.ImplicitReturnParam {
		e.sink.Instr("lea", asmsink.Reg("rdi"), returnBuffer.operand())
	}
	if site.Callee != nil && site.Callee.Variadic {
		e.sink.Instr("mov", asmsink.Reg("al"), asmsink.Imm(int64(countSSEUsedForVarargs(fd))))
	}

	// 6. Emit the CALL (or tail-call jmp).
	calleeSym := site.CalleeSym
	if site.ThroughPLT {
		calleeSym += "@PLT"
	}
	switch site.Kind {
	case ir.CallDirect:
		e.sink.Instr("call", asmsink.Sym(calleeSym))
	case ir.CallIndirect:
		e.sink.Instr("call", asmsink.Reg("rax"))
	case ir.CallTail:
		e.sink.Instr("jmp", asmsink.Sym(calleeSym))
		return stash // a tail call never returns to unstash/retrieve.
	}

	// 7. Retrieve the return value.
	e.retrieveReturn(fd, site)

	// 8. Unstash preserved registers.
	e.unstashRegisters(stash)

	// 9. Restore RSP.
	if plan.OutgoingBytes > 0 {
		e.sink.Instr("add", asmsink.Reg("rsp"), asmsink.Imm(plan.OutgoingBytes))
	}

	return stash
}

// countSSEUsedForVarargs returns the number of SSE registers a call
// consumed, for the AL-count convention varargs callees rely on.
func countSSEUsedForVarargs(fd *FunctionDescriptor) int { return fd.SSEUsed }

func (e *Emitter) stashRegisters(liveGP []GPReg, liveSSE []SSEReg, callee *FunctionDescriptor, spillBase *int64) *RegisterStash {
	stash := &RegisterStash{GPSlots: map[GPReg]int64{}, SSESlots: map[SSEReg]int64{}}
	// Registers about to be overwritten by the return value are excluded
	// from unstashing.
	excludedGP, excludedSSE := returnOverwriteSet(callee)

	for _, r := range liveGP {
		if !isCallerSavedGP(r) || excludedGP[r] {
			continue
		}
		*spillBase -= 8
		stash.GPSlots[r] = *spillBase
		stash.gpOrder = append(stash.gpOrder, r)
		e.sink.Instr("mov", rbpMem(*spillBase), asmsink.Reg(r.String()))
	}
	for _, r := range liveSSE {
		if excludedSSE[r] {
			continue
		}
		*spillBase -= 8
		stash.SSESlots[r] = *spillBase
		stash.sseOrder = append(stash.sseOrder, r)
		e.sink.Instr("movq", rbpMem(*spillBase), asmsink.Reg(r.String()))
	}
	return stash
}

func (e *Emitter) unstashRegisters(stash *RegisterStash) {
	for _, r := range stash.gpOrder {
		e.sink.Instr("mov", asmsink.Reg(r.String()), rbpMem(stash.GPSlots[r]))
	}
	for _, r := range stash.sseOrder {
		e.sink.Instr("movq", asmsink.Reg(r.String()), rbpMem(stash.SSESlots[r]))
	}
}

func returnOverwriteSet(fd *FunctionDescriptor) (map[GPReg]bool, map[SSEReg]bool) {
	gp, sse := map[GPReg]bool{}, map[SSEReg]bool{}
	markOverwritten(fd.Return, gp, sse)
	return gp, sse
}

func markOverwritten(loc Location, gp map[GPReg]bool, sse map[SSEReg]bool) {
	switch loc.Kind {
	case LocGPReg:
		gp[loc.GPReg] = true
	case LocSSEReg:
		sse[loc.SSEReg] = true
	case LocMultiple:
		for _, sub := range loc.Multiple {
			markOverwritten(sub, gp, sse)
		}
	}
}

func isCallerSavedGP(r GPReg) bool {
	for _, c := range callerSavedGPRegs {
		if c == r {
			return true
		}
	}
	return false
}

// marshalArguments moves each argument, in parameter order, into its
// ABI-designated location. A Memory-class argument's byte count comes
// from the allocator's own Requirement.StackBytes (params.go), so the
// copy is exactly as wide as the parameter, never a fixed 8 bytes.
func (e *Emitter) marshalArguments(fd *FunctionDescriptor, site *CallSite) {
	for i, loc := range fd.Params {
		if i >= len(site.ArgSources) {
			break
		}
		src := site.ArgSources[i]
		size := int64(0)
		if i < len(fd.ParamReqs) {
			size = fd.ParamReqs[i].StackBytes
		}
		e.marshalOne(loc, src, size)
	}
}

func (e *Emitter) marshalOne(loc Location, src memRef, size int64) {
	switch loc.Kind {
	case LocNone:
		return
	case LocGPReg:
		e.sink.Instr("mov", asmsink.Reg(loc.GPReg.String()), src.operand())
	case LocSSEReg:
		e.sink.Instr("movq", asmsink.Reg(loc.SSEReg.String()), src.operand())
	case LocMultiple:
		for i, sub := range loc.Multiple {
			e.marshalOne(sub, memRef{src.base, src.offset + int64(i)*8}, 8)
		}
	case LocMemory:
		dst := memRef{"rsp", loc.Offset}
		if size <= 0 {
			size = 8
		}
		e.emitMemcpy(dst, src, size)
	case LocNested:
		// A member destination inside a memory-resident aggregate.
		resolved, ok := ResolveNested(loc)
		if !ok {
			panic("BUG: cannot marshal into nested location with non-memory parent " + loc.String())
		}
		e.marshalOne(resolved, src, size)
	case LocX87:
		e.sink.Instr("fld", src.sized(10))
		e.sink.Instr("fstp", asmsink.SizedMem("rsp", loc.Offset, 10))
	default:
		panic("BUG: cannot marshal argument location " + loc.String())
	}
}

// retrieveReturn copies the callee's returned value out of its ABI
// location into the caller's chosen destination.
func (e *Emitter) retrieveReturn(fd *FunctionDescriptor, site *CallSite) {
	switch fd.Return.Kind {
	case LocNone:
		return
	case LocGPReg:
		e.sink.Instr("mov", site.ReturnDest.operand(), asmsink.Reg(fd.Return.GPReg.String()))
	case LocSSEReg:
		e.sink.Instr("movq", site.ReturnDest.operand(), asmsink.Reg(fd.Return.SSEReg.String()))
	case LocMultiple:
		for i, sub := range fd.Return.Multiple {
			e.retrieveReturnQword(sub, memRef{site.ReturnDest.base, site.ReturnDest.offset + int64(i)*8})
		}
	case LocX87:
		e.sink.Instr("fstp", site.ReturnDest.sized(10))
	case LocComplexX87:
		// st0 holds the real part, st1 the imaginary.
		e.sink.Instr("fstp", site.ReturnDest.sized(10))
		e.sink.Instr("fstp", memRef{site.ReturnDest.base, site.ReturnDest.offset + 16}.sized(10))
	case LocMemory:
		// Already materialized at site.ReturnDest by the callee; the
		// caller's SSA destination is just that address, so there is
		// nothing left to copy.
	}
}

func (e *Emitter) retrieveReturnQword(loc Location, dst memRef) {
	switch loc.Kind {
	case LocGPReg:
		e.sink.Instr("mov", dst.operand(), asmsink.Reg(loc.GPReg.String()))
	case LocSSEReg:
		e.sink.Instr("movq", dst.operand(), asmsink.Reg(loc.SSEReg.String()))
	case LocNone, LocNested:
	}
}

// MarkReturnsTwice records the point after a call to a returns_twice
// function: every SSA value with a stack home is considered spilled,
// and every local is considered potentially mutated from outside. The
// core's only responsibility is to refrain from assuming anything
// cached in a register survives the call — which it already does not
// do, since this codegen always reloads from the frame. Recorded here
// only as a marker comment for callers that track finer dataflow.
func (e *Emitter) MarkReturnsTwice() {
	e.sink.Comment("returns_twice: callee-visible state reloaded from frame below this point")
}
