package sysv

import (
	"math"

	"github.com/amd64sysv/codegen/asmsink"
	"github.com/amd64sysv/codegen/ir"
)

// DataLayoutMismatch is raised when a global's serialized byte count
// disagrees with its computed type layout.
func DataLayoutMismatch(name string, wrote, want int64) *Error {
	return ErrInvalidState("global %q: wrote %d bytes, layout requires %d", name, wrote, want)
}

// DataSerializer drives the Static Data Serializer (C7): given a
// layout table and a global's initializer values (flattened, one per
// leaf slot in slot order), it emits the directive sequence for that
// global into a Sink.
type DataSerializer struct {
	layout *LayoutTable
	sink   asmsink.Sink
}

// NewDataSerializer builds a serializer over the given layout table and
// sink.
func NewDataSerializer(layout *LayoutTable, sink asmsink.Sink) *DataSerializer {
	return &DataSerializer{layout: layout, sink: sink}
}

// serializeState tracks the running byte offset within the current
// symbol so interior padding and the under/over-emit check can be
// computed as leaves are visited.
type serializeState struct {
	values []ir.InitValue
	cursor int
	offset int64
}

func (s *serializeState) next() ir.InitValue {
	v := s.values[s.cursor]
	s.cursor++
	return v
}

// EmitGlobal emits one global's full directive sequence: section
// selection, alignment, label, and either its initialized leaf values
// or a single .bss reservation.
func (ds *DataSerializer) EmitGlobal(g *ir.Global) error {
	entries, err := ds.layout.Layout(g.Type)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrInvalidType("global %q has empty type layout", g.Name)
	}
	root := entries[0]

	ds.sink.Section(sectionFor(g))
	ds.sink.Align(int(root.Alignment))
	ds.sink.Label("%s", g.Name)

	if !g.Initialized {
		ds.sink.UninitData(int(root.Size))
		return nil
	}

	st := &serializeState{values: g.Values}
	if err := ds.emitSlot(g.Type, 0, entries, st); err != nil {
		return err
	}
	if st.offset != root.Size {
		return DataLayoutMismatch(g.Name, st.offset, root.Size)
	}
	return nil
}

func sectionFor(g *ir.Global) string {
	switch {
	case g.ThreadLocal && g.Initialized:
		return ".tdata"
	case g.ThreadLocal:
		return ".tbss"
	case g.Initialized:
		return ".data"
	default:
		return ".bss"
	}
}

// emitSlot dispatches on the slot's typecode, recursing into
// Struct/Union/Array children and consuming one ir.InitValue per leaf.
// st.offset is advanced as bytes are actually emitted so interior
// padding can be detected and zero-filled.
func (ds *DataSerializer) emitSlot(t *ir.Type, slot int, entries []LayoutEntry, st *serializeState) error {
	entry, err := t.EntryAt(slot)
	if err != nil {
		return err
	}
	layoutEntry := entries[slot]
	absOffset := layoutEntry.RelativeOffset

	if entry.Typecode != ir.Bits {
		ds.padTo(st, absOffset)
	}

	switch entry.Typecode {
	case ir.Struct:
		children, err := t.ChildrenOf(slot)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := ds.emitSlot(t, child, entries, st); err != nil {
				return err
			}
		}
		ds.padTo(st, absOffset+layoutEntry.Size)
		return nil

	case ir.Union:
		children, err := t.ChildrenOf(slot)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			ds.padTo(st, absOffset+layoutEntry.Size)
			return nil
		}
		// Only the first member carries an initializer; the remainder of
		// the union's storage is zero-filled.
		if err := ds.emitSlot(t, children[0], entries, st); err != nil {
			return err
		}
		ds.padTo(st, absOffset+layoutEntry.Size)
		return nil

	case ir.Array:
		children, err := t.ChildrenOf(slot)
		if err != nil {
			return err
		}
		if len(children) != 1 {
			return ErrInvalidType("array at slot %d must have exactly one child", slot)
		}
		elemSlot := children[0]
		for i := 0; i < entry.Param; i++ {
			if err := ds.emitSlot(t, elemSlot, entries, st); err != nil {
				return err
			}
		}
		ds.padTo(st, absOffset+layoutEntry.Size)
		return nil

	case ir.Bits:
		// A zero-width bit-field carries no initializer and occupies no
		// bytes of its own; a bit-field that is not the first in its
		// storage unit was already packed and emitted along with the
		// unit's first field.
		if layoutEntry.BitWidth == 0 || layoutEntry.BitOffset != 0 {
			return nil
		}
		return ds.emitBitfieldUnit(t, slot, entries, st)

	case ir.PadEntry:
		ds.padTo(st, absOffset+layoutEntry.Size)
		return nil

	default:
		return ds.emitLeaf(entry.Typecode, layoutEntry, st)
	}
}

// padTo emits zero-fill to bring the running cursor up to target.
func (ds *DataSerializer) padTo(st *serializeState, target int64) {
	if target > st.offset {
		ds.sink.ZeroData(int(target - st.offset))
		st.offset = target
	}
}

// emitBitfieldUnit packs every bit-field sharing one storage unit into
// a single integer value and emits it once; it is called from the
// unit's first bit-field and scans forward over the rest of the run.
func (ds *DataSerializer) emitBitfieldUnit(t *ir.Type, slot int, entries []LayoutEntry, st *serializeState) error {
	unitOffset := entries[slot].BitfieldUnitOffset
	unitSize := entries[slot].Size

	ds.padTo(st, unitOffset)

	var packed uint64
	cursorSlot := slot
	for cursorSlot < len(entries) {
		e, err := t.EntryAt(cursorSlot)
		if err != nil || e.Typecode != ir.Bits {
			break
		}
		le := entries[cursorSlot]
		if le.BitWidth == 0 || le.BitfieldUnitOffset != unitOffset {
			break
		}
		v := st.next()
		bits := maskToWidth(v.Int, le.BitWidth)
		packed |= bits << uint(le.BitOffset)
		cursorSlot++
	}

	ds.emitIntData(unitSize, int64(packed))
	st.offset = unitOffset + unitSize
	return nil
}

func maskToWidth(v int64, widthBits int) uint64 {
	if widthBits >= 64 {
		return uint64(v)
	}
	return uint64(v) & ((1 << uint(widthBits)) - 1)
}

// emitLeaf emits a single scalar initializer value.
func (ds *DataSerializer) emitLeaf(code ir.TypeCode, le LayoutEntry, st *serializeState) error {
	v := st.next()
	switch code {
	case ir.Bool, ir.Int8:
		ds.emitIntData(1, v.Int)
	case ir.Int16:
		ds.emitIntData(2, v.Int)
	case ir.Int32:
		ds.emitIntData(4, v.Int)
	case ir.Int64:
		ds.emitIntData(8, v.Int)
	case ir.Float32:
		bits := math.Float32bits(v.Float32)
		ds.sink.Data(asmsink.Double, int64(bits))
	case ir.Float64:
		bits := math.Float64bits(v.Float64)
		ds.sink.Data(asmsink.Quad, int64(bits))
	case ir.LongDouble:
		ds.sink.Data(asmsink.Quad, int64(v.LongDoubleLo))
		ds.sink.Data(asmsink.Quad, int64(v.LongDoubleHi))
	case ir.Word:
		ds.emitPointer(v)
	default:
		return ErrNotSupported("cannot serialize leaf typecode %s", code)
	}
	st.offset += le.Size
	return nil
}

func (ds *DataSerializer) emitIntData(size int64, v int64) {
	switch size {
	case 1:
		ds.sink.Data(asmsink.Byte, v&0xff)
	case 2:
		ds.sink.Data(asmsink.Word, v&0xffff)
	case 4:
		ds.sink.Data(asmsink.Double, v&0xffffffff)
	case 8:
		ds.sink.Data(asmsink.Quad, v)
	default:
		panic("BUG: invalid integer data size")
	}
}

// emitPointer emits a .quad relocation against either a string-literal
// label or a plain global identifier, with an optional addend.
func (ds *DataSerializer) emitPointer(v ir.InitValue) {
	if v.Kind != ir.InitPointerToSymbol {
		ds.sink.Data(asmsink.Quad, v.Int)
		return
	}
	operand := v.SymbolName
	if v.SymbolAddend != 0 {
		operand = formatAddend(operand, v.SymbolAddend)
	}
	ds.sink.Data(asmsink.Quad, operand)
}

func formatAddend(symbol string, addend int64) string {
	if addend >= 0 {
		return symbol + "+" + itoa(addend)
	}
	return symbol + itoa(addend)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EmitEmulatedTLS emits the __emutls_v.<name>/__emutls_t.<name> pair
// for a thread-local global when emulated TLS is selected instead of
// native .tdata/.tbss.
func (ds *DataSerializer) EmitEmulatedTLS(g *ir.Global) error {
	entries, err := ds.layout.Layout(g.Type)
	if err != nil {
		return err
	}
	root := entries[0]

	templateLabel := "__emutls_t." + g.Name
	if g.Initialized {
		ds.sink.Section(".rodata")
		ds.sink.Align(int(root.Alignment))
		ds.sink.Label("%s", templateLabel)
		st := &serializeState{values: g.Values}
		if err := ds.emitSlot(g.Type, 0, entries, st); err != nil {
			return err
		}
	}

	ds.sink.Section(".data")
	ds.sink.Align(8)
	ds.sink.Label("__emutls_v.%s", g.Name)
	ds.sink.Data(asmsink.Quad, root.Size)
	ds.sink.Data(asmsink.Quad, root.Alignment)
	ds.sink.Data(asmsink.Quad, 0)
	if g.Initialized {
		ds.sink.Data(asmsink.Quad, templateLabel)
	} else {
		ds.sink.Data(asmsink.Quad, 0)
	}
	return nil
}
