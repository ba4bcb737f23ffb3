package sysv

import "fmt"

// EightbyteClass is one of the ABI's eightbyte classes.
// The set is closed and fixed by the ABI document — kept as a plain byte
// enum, never extended at runtime.
type EightbyteClass byte

const (
	NoClass EightbyteClass = iota
	Integer
	Sse
	SseUp
	X87
	X87Up
	ComplexX87
	Memory
)

// String implements fmt.Stringer.
func (c EightbyteClass) String() string {
	switch c {
	case NoClass:
		return "NO_CLASS"
	case Integer:
		return "INTEGER"
	case Sse:
		return "SSE"
	case SseUp:
		return "SSEUP"
	case X87:
		return "X87"
	case X87Up:
		return "X87UP"
	case ComplexX87:
		return "COMPLEX_X87"
	case Memory:
		return "MEMORY"
	default:
		panic(fmt.Sprintf("BUG: invalid eightbyte class %d", byte(c)))
	}
}

// mergeClass implements the ABI merge rule, applied
// whenever two classes must combine into one qword.
func mergeClass(a, b EightbyteClass) EightbyteClass {
	switch {
	case a == b:
		return a
	case a == NoClass:
		return b
	case b == NoClass:
		return a
	case a == Memory || b == Memory:
		return Memory
	case a == Integer || b == Integer:
		return Integer
	case isX87Family(a) || isX87Family(b):
		return Memory
	default:
		return Sse
	}
}

func isX87Family(c EightbyteClass) bool {
	return c == X87 || c == X87Up || c == ComplexX87
}

// LocationKind discriminates the ParameterLocation sum type. Kept
// closed and matched exhaustively wherever it appears: no dynamic
// dispatch, no interface values.
type LocationKind byte

const (
	LocNone LocationKind = iota
	LocGPReg
	LocSSEReg
	LocX87
	LocX87Up
	LocComplexX87
	LocMultiple
	LocMemory
	LocNested
)

// MemoryBase distinguishes the two addressing bases a Memory location can
// use: RSP from the caller's perspective at a call site, RBP from the
// callee's perspective inside its own frame.
type MemoryBase byte

const (
	BaseRSP MemoryBase = iota
	BaseRBP
)

// Location is the closed ParameterLocation sum type. Only the fields
// relevant to Kind are meaningful; callers must switch on Kind first.
type Location struct {
	Kind LocationKind

	GPReg  GPReg
	SSEReg SSEReg

	// Multiple holds one sub-Location per qword when Kind == LocMultiple.
	Multiple []Location

	// Memory fields, valid when Kind == LocMemory.
	Base   MemoryBase
	Offset int64

	// Nested fields, valid when Kind == LocNested: a member's location is
	// expressed relative to its parent aggregate's qword vector.
	Parent       *Location
	MemberOffset int64
}

// None is the shared zero-sized-type location.
var None = Location{Kind: LocNone}

// NewGPRegLocation builds a single general-purpose-register location.
func NewGPRegLocation(r GPReg) Location { return Location{Kind: LocGPReg, GPReg: r} }

// NewSSERegLocation builds a single SSE-register location.
func NewSSERegLocation(r SSEReg) Location { return Location{Kind: LocSSEReg, SSEReg: r} }

// NewMemoryLocation builds a Memory location addressed relative to base.
func NewMemoryLocation(base MemoryBase, offset int64) Location {
	return Location{Kind: LocMemory, Base: base, Offset: offset}
}

// NewMultipleLocation builds a MultipleRegisters location over qwords.
func NewMultipleLocation(qwords []Location) Location {
	return Location{Kind: LocMultiple, Multiple: qwords}
}

// NewNestedLocation builds a location referring to a member inside a
// parent aggregate's already-assigned location.
func NewNestedLocation(parent *Location, memberOffset int64) Location {
	return Location{Kind: LocNested, Parent: parent, MemberOffset: memberOffset}
}

// ResolveNested flattens a Nested chain into the concrete location it
// denotes. Only memory-resident parents are addressable: the member's
// address is the parent's plus the accumulated member offsets. A
// member of a register-resident aggregate has no location of its own
// until the aggregate is spilled, so ok is false.
func ResolveNested(l Location) (Location, bool) {
	var off int64
	for l.Kind == LocNested {
		off += l.MemberOffset
		if l.Parent == nil {
			return Location{}, false
		}
		l = *l.Parent
	}
	if l.Kind != LocMemory {
		return Location{}, false
	}
	return NewMemoryLocation(l.Base, l.Offset+off), true
}

// String implements fmt.Stringer for diagnostics and tests.
func (l Location) String() string {
	switch l.Kind {
	case LocNone:
		return "none"
	case LocGPReg:
		return l.GPReg.String()
	case LocSSEReg:
		return l.SSEReg.String()
	case LocX87:
		return "x87"
	case LocX87Up:
		return "x87up"
	case LocComplexX87:
		return "complex_x87"
	case LocMultiple:
		return fmt.Sprintf("multi%v", l.Multiple)
	case LocMemory:
		base := "rsp"
		if l.Base == BaseRBP {
			base = "rbp"
		}
		return fmt.Sprintf("[%s+%d]", base, l.Offset)
	case LocNested:
		return fmt.Sprintf("nested(+%d)", l.MemberOffset)
	default:
		panic(fmt.Sprintf("BUG: invalid location kind %d", byte(l.Kind)))
	}
}
