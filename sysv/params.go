package sysv

import (
	"github.com/amd64sysv/codegen/ir"
)

// Requirement is the exact resource triple a parameter or return value
// consumes.
type Requirement struct {
	GPRegs     int
	SSERegs    int
	StackBytes int64
}

// incomingParamBase is the callee-view offset of the first
// memory-resident parameter: past the saved RBP and the return
// address. FramePlan.ParametersInMemoryBase carries the same value.
const incomingParamBase = 16

// FunctionDescriptor is the Function Descriptor: the ordered parameter
// locations, the return location, an optional
// implicit return-pointer parameter, and the caller-requirements
// summary.
type FunctionDescriptor struct {
	// Params holds the caller-view location of each parameter: memory
	// parameters are RSP-relative at the call site. CalleeParams holds
	// the callee-view twin: the same location except that memory
	// parameters are addressed RBP-relative at 16+offset, past the
	// saved RBP and return address, which is where a function finds its
	// own memory-resident parameters.
	Params       []Location
	CalleeParams []Location

	// ParamSlots holds, per parameter, the full per-slot location
	// vector: slot 0 is the parameter's top-level (caller-view)
	// location and every nested slot a Nested reference into it.
	ParamSlots [][]Location

	ParamReqs      []Requirement
	Return         Location
	ReturnIsMemory bool

	// ImplicitReturnParam is true when the return is classified Memory:
	// a hidden pointer occupies the first integer register (RDI).
	ImplicitReturnParam bool

	GPUsed     int
	SSEUsed    int
	StackBytes int64
	StackAlign int64
}

// ParamAllocator walks a function's parameter list, drawing from the
// fixed integer/SSE register pools and spilling to memory when a
// parameter's demand would overflow either pool.
type ParamAllocator struct {
	classifier *Classifier
}

// NewParamAllocator builds an allocator over the given classifier.
func NewParamAllocator(classifier *Classifier) *ParamAllocator { return &ParamAllocator{classifier: classifier} }

// Allocate computes the Function Descriptor for decl.
func (a *ParamAllocator) Allocate(decl *ir.FunctionDecl) (*FunctionDescriptor, error) {
	fd := &FunctionDescriptor{StackAlign: 8}

	intUsed, sseUsed := 0, 0

	if decl.Return != nil {
		retResult, err := a.classifier.Classify(decl.Return)
		if err != nil {
			return nil, err
		}
		loc, retIsMemory, err := a.decideReturnLocation(retResult)
		if err != nil {
			return nil, err
		}
		fd.Return = loc
		fd.ReturnIsMemory = retIsMemory
		if retIsMemory {
			fd.ImplicitReturnParam = true
			intUsed++ // RDI reserved for the hidden pointer.
		}
	} else {
		fd.Return = None
	}

	var stackBytes int64
	for _, p := range decl.Params {
		result, err := a.classifier.Classify(p.Type)
		if err != nil {
			return nil, err
		}
		loc, req, err := a.decideParamLocation(result, &intUsed, &sseUsed, &stackBytes)
		if err != nil {
			return nil, err
		}
		fd.Params = append(fd.Params, loc)
		fd.CalleeParams = append(fd.CalleeParams, calleeView(loc))
		fd.ParamReqs = append(fd.ParamReqs, req)

		slots, err := a.classifier.SlotLocations(p.Type, loc)
		if err != nil {
			return nil, err
		}
		fd.ParamSlots = append(fd.ParamSlots, slots)
	}

	fd.GPUsed = intUsed
	fd.SSEUsed = sseUsed
	fd.StackBytes = stackBytes
	return fd, nil
}

// decideReturnLocation implements the "return value first" rule: the
// return location is decided before any parameter consumes a register.
func (a *ParamAllocator) decideReturnLocation(result *ClassifyResult) (Location, bool, error) {
	if result.Size == 0 {
		return None, false, nil
	}
	if result.ForcedMemory {
		return NewMemoryLocation(BaseRBP, 0), true, nil
	}
	if len(result.Qwords) == 0 {
		return None, false, nil
	}
	if isX87(result.Qwords) {
		if len(result.Qwords) == 1 && result.Qwords[0] == ComplexX87 {
			return Location{Kind: LocComplexX87}, false, nil
		}
		return Location{Kind: LocX87}, false, nil
	}

	var qwordLocs []Location
	gp, sse := 0, 0
	for _, q := range result.Qwords {
		switch q {
		case Integer:
			if gp >= len(IntegerReturnPool) {
				return Location{}, false, ErrNotSupported("return aggregate needs more than %d integer registers", len(IntegerReturnPool))
			}
			qwordLocs = append(qwordLocs, NewGPRegLocation(IntegerReturnPool[gp]))
			gp++
		case Sse, SseUp:
			if sse >= len(SSEReturnPool) {
				return Location{}, false, ErrNotSupported("return aggregate needs more than %d SSE registers", len(SSEReturnPool))
			}
			if q == Sse {
				qwordLocs = append(qwordLocs, NewSSERegLocation(SSEReturnPool[sse]))
				sse++
			} else {
				// SSEUP shares the previous SSE register's upper bits;
				// it does not consume a new register.
				qwordLocs = append(qwordLocs, NewSSERegLocation(SSEReturnPool[sse-1]))
			}
		case NoClass:
			qwordLocs = append(qwordLocs, None)
		default:
			return Location{}, false, ErrInvalidState("unexpected return qword class %s", q)
		}
	}
	if len(qwordLocs) == 1 {
		return qwordLocs[0], false, nil
	}
	return NewMultipleLocation(qwordLocs), false, nil
}

func isX87(qwords []EightbyteClass) bool {
	for _, q := range qwords {
		if q == X87 || q == X87Up || q == ComplexX87 {
			return true
		}
	}
	return false
}

// decideParamLocation implements the per-parameter allocation rule:
// classify, compute demand, spill to memory wholesale if either pool
// would overflow, otherwise allocate consecutive registers.
func (a *ParamAllocator) decideParamLocation(result *ClassifyResult, intUsed, sseUsed *int, stackBytes *int64) (Location, Requirement, error) {
	if result.Size == 0 {
		return None, Requirement{}, nil
	}

	// Long double and any forced-memory aggregate are always Memory as
	// a parameter.
	if result.ForcedMemory || isX87(result.Qwords) {
		return a.spillToMemory(result, stackBytes)
	}

	demandInt, demandSSE := 0, 0
	for _, q := range result.Qwords {
		switch q {
		case Integer:
			demandInt++
		case Sse:
			demandSSE++
		case SseUp, NoClass:
			// SSEUP rides on the preceding SSE register; NoClass
			// consumes nothing.
		default:
			return Location{}, Requirement{}, ErrInvalidState("unexpected param qword class %s", q)
		}
	}

	if *intUsed+demandInt > len(IntegerParamPool) || *sseUsed+demandSSE > len(SSEParamPool) {
		return a.spillToMemory(result, stackBytes)
	}

	var qwordLocs []Location
	startInt, startSSE := *intUsed, *sseUsed
	for _, q := range result.Qwords {
		switch q {
		case Integer:
			qwordLocs = append(qwordLocs, NewGPRegLocation(IntegerParamPool[*intUsed]))
			*intUsed++
		case Sse:
			qwordLocs = append(qwordLocs, NewSSERegLocation(SSEParamPool[*sseUsed]))
			*sseUsed++
		case SseUp:
			qwordLocs = append(qwordLocs, NewSSERegLocation(SSEParamPool[*sseUsed-1]))
		case NoClass:
			qwordLocs = append(qwordLocs, None)
		}
	}
	req := Requirement{GPRegs: *intUsed - startInt, SSERegs: *sseUsed - startSSE}

	if len(qwordLocs) == 1 {
		return qwordLocs[0], req, nil
	}
	return NewMultipleLocation(qwordLocs), req, nil
}

// calleeView translates a caller-view parameter location into the
// callee's: a memory parameter placed at [rsp+offset] by the caller is
// found by the callee at [rbp+16+offset], past the saved RBP and
// return address. Register locations are identical on both sides.
func calleeView(loc Location) Location {
	if loc.Kind != LocMemory {
		return loc
	}
	return NewMemoryLocation(BaseRBP, incomingParamBase+loc.Offset)
}

// CalleeParam returns parameter i's location as seen from inside the
// function's own body.
func (fd *FunctionDescriptor) CalleeParam(i int) Location { return fd.CalleeParams[i] }

// spillToMemory implements the memory-parameter layout rule: round up
// to max(8, alignment), assign, and advance stackBytes by the
// 8-byte-rounded size.
func (a *ParamAllocator) spillToMemory(result *ClassifyResult, stackBytes *int64) (Location, Requirement, error) {
	align := result.Alignment
	if align < 8 {
		align = 8
	}
	offset := roundUp(*stackBytes, align)
	size := roundUp(result.Size, 8)
	*stackBytes = offset + size
	return NewMemoryLocation(BaseRSP, offset), Requirement{StackBytes: size}, nil
}
