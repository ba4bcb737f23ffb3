// Package ir models the read-only IR consumer interface the ABI core
// is driven by: a flat, slot-indexed type tree, function declarations,
// globals, and string literals. A full opcode set, module container,
// and instruction blocks belong to an external frontend; this package
// supplies just enough of a concrete implementation to make the core
// testable and usable standalone, with an opener+children encoding for
// aggregate types.
package ir

import "fmt"

// TypeCode enumerates the scalar kinds and aggregate openers a type
// entry can carry.
type TypeCode byte

const (
	Bool TypeCode = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	LongDouble
	ComplexFloat32
	ComplexFloat64
	ComplexLongDouble
	Word // pointer
	Bits // bit-field of N bits
	Struct
	Union
	Array
	PadEntry
	Builtin // e.g. vararg marker
)

// IsAggregateOpener reports whether a type code opens a container that
// is immediately followed by its children in the flat encoding.
func (t TypeCode) IsAggregateOpener() bool {
	return t == Struct || t == Union || t == Array
}

// String implements fmt.Stringer.
func (t TypeCode) String() string {
	names := [...]string{
		"bool", "int8", "int16", "int32", "int64", "float32", "float64",
		"long_double", "complex_float32", "complex_float64", "complex_long_double",
		"word", "bits", "struct", "union", "array", "pad", "builtin",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("typecode(%d)", byte(t))
}

// Entry is one flat type-tree node: a scalar, an aggregate opener
// (immediately followed by its children), or padding.
type Entry struct {
	Typecode TypeCode

	// Param carries, depending on Typecode: array length (Array),
	// member count (Struct/Union), bit width (Bits), or is unused for
	// plain scalars.
	Param int

	// Alignment is an explicit alignment override in bytes, or 0 to use
	// the type's natural alignment.
	Alignment int

	// ParentSlot is the slot of the immediately enclosing Struct/Union,
	// or -1 at the top level. Used by bit-field packing.
	ParentSlot int
}

// Type is a flat, linearized sequence of type entries — its "slot"
// sequence. Index i in Entries is slot i.
type Type struct {
	Entries []Entry
}

// EntryAt returns the entry at the given slot.
func (t *Type) EntryAt(slot int) (Entry, error) {
	if slot < 0 || slot >= len(t.Entries) {
		return Entry{}, fmt.Errorf("ir: slot %d out of bounds (len=%d)", slot, len(t.Entries))
	}
	return t.Entries[slot], nil
}

// SlotCount returns the number of slots in the type's flat encoding.
func (t *Type) SlotCount() int { return len(t.Entries) }

// ChildrenOf returns the slot indices of the immediate children of the
// aggregate opener at slot. For Struct/Union, children follow
// immediately and their count is Entries[slot].Param entries long,
// honoring nested aggregates' own child spans. For Array, there is
// exactly one child type, repeated Entries[slot].Param times logically,
// but physically encoded once.
func (t *Type) ChildrenOf(slot int) ([]int, error) {
	entry, err := t.EntryAt(slot)
	if err != nil {
		return nil, err
	}
	if !entry.Typecode.IsAggregateOpener() {
		return nil, fmt.Errorf("ir: slot %d (%s) is not an aggregate opener", slot, entry.Typecode)
	}
	if entry.Typecode == Array {
		if slot+1 >= len(t.Entries) {
			return nil, fmt.Errorf("ir: array at slot %d missing element type", slot)
		}
		return []int{slot + 1}, nil
	}
	var children []int
	cur := slot + 1
	for i := 0; i < entry.Param; i++ {
		if cur >= len(t.Entries) {
			return nil, fmt.Errorf("ir: struct/union at slot %d truncated: expected %d members, found %d", slot, entry.Param, i)
		}
		children = append(children, cur)
		span, err := t.spanOf(cur)
		if err != nil {
			return nil, err
		}
		cur += span
	}
	return children, nil
}

// SpanOf returns how many flat entries the subtree rooted at slot
// occupies (1 for a scalar, 1 + sum(children spans) for an aggregate).
func (t *Type) SpanOf(slot int) (int, error) { return t.spanOf(slot) }

func (t *Type) spanOf(slot int) (int, error) {
	entry, err := t.EntryAt(slot)
	if err != nil {
		return 0, err
	}
	if !entry.Typecode.IsAggregateOpener() {
		return 1, nil
	}
	if entry.Typecode == Array {
		elemSpan, err := t.spanOf(slot + 1)
		if err != nil {
			return 0, err
		}
		return 1 + elemSpan, nil
	}
	total := 1
	cur := slot + 1
	for i := 0; i < entry.Param; i++ {
		span, err := t.spanOf(cur)
		if err != nil {
			return 0, err
		}
		total += span
		cur += span
	}
	return total, nil
}

// IdentifierScope tags a module-level symbol's linkage visibility.
type IdentifierScope byte

const (
	ScopeLocal IdentifierScope = iota
	ScopeImport
	ScopeExport
)

// Identifier is the resolved {scope, symbol_name, alias} tuple for a
// module-level symbol.
type Identifier struct {
	Scope      IdentifierScope
	SymbolName string
	Alias      string
}

// StringLiteralKind distinguishes the three string encodings the module
// orchestrator must serialize.
type StringLiteralKind byte

const (
	Multibyte StringLiteralKind = iota
	UTF16
	UTF32
)

// StringLiteral is one string constant the module must serialize.
type StringLiteral struct {
	ID     int
	Kind   StringLiteralKind
	Public bool
	Bytes  []byte
	Length int
}

// InlineAsm is one top-level inline-assembly fragment. File-scope asm
// carries no parameters; parameterized fragments are embedded in
// function bodies, whose operand allocation belongs to the per-function
// codegen state.
type InlineAsm struct {
	ID       int
	Template string
}
