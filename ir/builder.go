package ir

import "fmt"

// TypeBuilder accumulates Entries for a single Type via a
// recursive-descent construction API, assembling the flat
// opener+children encoding a Type holds.
type TypeBuilder struct {
	t Type
}

// NewTypeBuilder starts an empty type builder.
func NewTypeBuilder() *TypeBuilder { return &TypeBuilder{} }

// Scalar appends a scalar leaf entry and returns its slot.
func (b *TypeBuilder) Scalar(code TypeCode) int {
	return b.append(Entry{Typecode: code, ParentSlot: -1})
}

// Bits appends a bit-field leaf of the given width, packed against the
// struct at parentSlot.
func (b *TypeBuilder) Bits(width int, parentSlot int) int {
	return b.append(Entry{Typecode: Bits, Param: width, ParentSlot: parentSlot})
}

// Pad appends an explicit padding entry of the given byte size.
func (b *TypeBuilder) Pad(bytes int) int {
	return b.append(Entry{Typecode: PadEntry, Param: bytes, ParentSlot: -1})
}

// OpenStruct appends a struct opener for memberCount members; the
// caller must append exactly memberCount child subtrees immediately
// after. Returns the opener's slot.
func (b *TypeBuilder) OpenStruct(memberCount int, alignment int) int {
	return b.append(Entry{Typecode: Struct, Param: memberCount, Alignment: alignment, ParentSlot: -1})
}

// OpenUnion appends a union opener for memberCount members.
func (b *TypeBuilder) OpenUnion(memberCount int, alignment int) int {
	return b.append(Entry{Typecode: Union, Param: memberCount, Alignment: alignment, ParentSlot: -1})
}

// OpenArray appends an array opener of the given element count; the
// caller must append exactly one child subtree (the element type)
// immediately after.
func (b *TypeBuilder) OpenArray(count int) int {
	return b.append(Entry{Typecode: Array, Param: count, ParentSlot: -1})
}

func (b *TypeBuilder) append(e Entry) int {
	slot := len(b.t.Entries)
	b.t.Entries = append(b.t.Entries, e)
	return slot
}

// Build finalizes the Type.
func (b *TypeBuilder) Build() *Type { return &b.t }

// Param is one formal parameter of a function declaration: its whole
// Type, whose slot 0 is the parameter's top-level type.
type Param struct {
	Type *Type
}

// FunctionDecl is a function's signature as seen by the ABI core,
// independent of whether a body is present (declarations created for
// call sites reference the same shape).
type FunctionDecl struct {
	Name      string
	Params    []Param
	Return    *Type // nil for void
	Variadic  bool
	ReturnsTwice bool
}

// CallKind distinguishes the three ways a call instruction may resolve
// its callee.
type CallKind byte

const (
	CallDirect CallKind = iota
	CallIndirect
	CallTail
)

// ValueRefKind tags where a call argument's value, or a call's return
// destination, currently lives. This minimal IR model has no
// virtual-register storage of its own, so the representable sources
// are a slot in the current function's own frame, a named
// global/string-literal symbol, and one of the enclosing function's
// own incoming parameters.
type ValueRefKind byte

const (
	ValueNone ValueRefKind = iota
	ValueLocal
	ValueGlobal
	ValueParam
)

// ValueRef is one operand source: a byte offset into the current
// function's own RBP-relative frame (ValueLocal), a named symbol
// (ValueGlobal, e.g. a string literal or global variable address), or
// the enclosing function's parameter at the given index (ValueParam),
// resolved by codegen against the function's own descriptor —
// register-resident parameters from their entry spill slot, memory
// parameters from the callee-view incoming argument area.
type ValueRef struct {
	Kind   ValueRefKind
	Offset int64  // ValueLocal: byte offset from RBP
	Symbol string // ValueGlobal: symbol name
	Index  int    // ValueParam: parameter index in declaration order
}

// Instruction is a minimal IR instruction surface: only the shape the
// ABI core needs to react to (a call site referencing a FunctionDecl,
// its argument sources, and where its return value should land).
// Opcodes beyond calls belong to the frontend and are out of scope
// here.
type Instruction struct {
	IsCall     bool
	CallKind   CallKind
	Callee     *FunctionDecl
	Args       []ValueRef // one per parameter, in declaration order
	ReturnDest ValueRef   // ValueNone if the call's result is discarded
}

// Function is one function body: its declaration plus the flattened
// aggregate of all local variables (used by the frame planner) and its
// instruction stream.
type Function struct {
	Decl         FunctionDecl
	Locals       *Type // aggregate of all locals; nil if none
	Instructions []Instruction
}

// Global is one static-data symbol.
type Global struct {
	Name        string
	Type        *Type
	Initialized bool
	ThreadLocal bool
	Values      []InitValue // flattened, one per leaf slot; empty if !Initialized
}

// InitValueKind tags the payload carried by a static initializer leaf.
type InitValueKind byte

const (
	InitInt InitValueKind = iota
	InitFloat32
	InitFloat64
	InitLongDouble
	InitPointerToSymbol
	InitZero
)

// InitValue is one leaf initializer value for a Global.
type InitValue struct {
	Kind          InitValueKind
	Int           int64
	Float32       float32
	Float64       float64
	LongDoubleLo  uint64
	LongDoubleHi  uint64
	SymbolName    string
	SymbolAddend  int64
}

// Module is the top-level container iterated by the module
// orchestrator: functions, declarations, globals, string literals.
type Module struct {
	Functions       []*Function
	Declarations    map[string]*FunctionDecl
	Globals         []*Global
	StringLiterals  []StringLiteral
	InlineAsm       []InlineAsm
	Identifiers     map[string]Identifier
}

// NewModule returns an empty module ready for population.
func NewModule() *Module {
	return &Module{
		Declarations: make(map[string]*FunctionDecl),
		Identifiers:  make(map[string]Identifier),
	}
}

// AddFunction registers a function body and its declaration.
func (m *Module) AddFunction(fn *Function) {
	m.Functions = append(m.Functions, fn)
	decl := fn.Decl
	m.Declarations[decl.Name] = &decl
}

// AddDeclaration registers an external function declaration with no
// body (e.g. a call-site-only symbol).
func (m *Module) AddDeclaration(decl *FunctionDecl) {
	m.Declarations[decl.Name] = decl
}

// GetDeclaration looks up a registered function declaration by name.
func (m *Module) GetDeclaration(name string) (*FunctionDecl, error) {
	decl, ok := m.Declarations[name]
	if !ok {
		return nil, fmt.Errorf("ir: no declaration named %q", name)
	}
	return decl, nil
}

// AddGlobal registers a global variable.
func (m *Module) AddGlobal(g *Global) { m.Globals = append(m.Globals, g) }

// AddInlineAsm registers a top-level inline-assembly fragment and
// returns its ID.
func (m *Module) AddInlineAsm(template string) int {
	id := len(m.InlineAsm)
	m.InlineAsm = append(m.InlineAsm, InlineAsm{ID: id, Template: template})
	return id
}

// AddStringLiteral registers a string literal and returns its ID.
func (m *Module) AddStringLiteral(kind StringLiteralKind, bytes []byte, public bool) int {
	id := len(m.StringLiterals)
	m.StringLiterals = append(m.StringLiterals, StringLiteral{
		ID: id, Kind: kind, Public: public, Bytes: bytes, Length: len(bytes),
	})
	return id
}
