package sysv

import (
	"github.com/amd64sysv/codegen/ir"
)

// LayoutEntry is the per-slot Type Layout Entry.
type LayoutEntry struct {
	Size           int64
	Alignment      int64
	RelativeOffset int64
	Aligned        bool

	// BitfieldUnitOffset/BitOffset are valid only for ir.Bits slots: the
	// byte offset of the underlying storage unit, measured like
	// RelativeOffset from the start of the type being laid out, and the
	// bit's offset within that unit.
	BitfieldUnitOffset int64
	BitOffset          int64
	BitWidth           int
}

// LongDoubleWidth selects between the native 80-bit x87 long double and
// a 64-bit downgrade (for targets built with long double disabled). The
// switch is read once when building a LayoutTable, never rechecked
// per-call.
type LongDoubleWidth byte

const (
	LongDouble80 LongDoubleWidth = iota
	LongDouble64
)

// LayoutTable computes and caches Type Layout Entries for every slot of
// one ir.Type, keyed by type identity.
type LayoutTable struct {
	ldWidth LongDoubleWidth
	byType  map[*ir.Type][]LayoutEntry
}

// NewLayoutTable constructs a layout table branching once on the
// long-double width.
func NewLayoutTable(ldWidth LongDoubleWidth) *LayoutTable {
	return &LayoutTable{ldWidth: ldWidth, byType: make(map[*ir.Type][]LayoutEntry)}
}

// Layout returns the per-slot layout entries for t, computing and
// caching them on first use.
func (lt *LayoutTable) Layout(t *ir.Type) ([]LayoutEntry, error) {
	if cached, ok := lt.byType[t]; ok {
		return cached, nil
	}
	entries := make([]LayoutEntry, t.SlotCount())
	if _, err := lt.layoutSlot(t, 0, 0, entries, nil); err != nil {
		return nil, err
	}
	lt.byType[t] = entries
	return entries, nil
}

// scalarSizeAlign returns the ABI-defined size/alignment table lookup
// for a scalar typecode.
func (lt *LayoutTable) scalarSizeAlign(code ir.TypeCode) (size, align int64, err error) {
	switch code {
	case ir.Bool, ir.Int8:
		return 1, 1, nil
	case ir.Int16:
		return 2, 2, nil
	case ir.Int32, ir.Float32:
		return 4, 4, nil
	case ir.Int64, ir.Float64, ir.Word:
		return 8, 8, nil
	case ir.ComplexFloat32:
		return 8, 4, nil
	case ir.ComplexFloat64:
		return 16, 8, nil
	case ir.LongDouble:
		if lt.ldWidth == LongDouble64 {
			return 8, 8, nil
		}
		return 16, 16, nil
	case ir.ComplexLongDouble:
		if lt.ldWidth == LongDouble64 {
			return 16, 8, nil
		}
		return 32, 16, nil
	default:
		return 0, 0, ErrInvalidType("unknown scalar typecode %s", code)
	}
}

func roundUp(v, align int64) int64 {
	if align <= 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// layoutSlot recursively lays out the subtree rooted at slot, returning
// the number of flat entries consumed (its span) so the caller can
// advance past it. parentStack guards against cyclic self-reference.
func (lt *LayoutTable) layoutSlot(t *ir.Type, slot int, baseOffset int64, out []LayoutEntry, parentStack []int) (span int, err error) {
	for _, p := range parentStack {
		if p == slot {
			return 0, ErrInvalidType("cyclic type reference at slot %d", slot)
		}
	}
	entry, err := t.EntryAt(slot)
	if err != nil {
		return 0, err
	}

	switch entry.Typecode {
	case ir.PadEntry:
		out[slot] = LayoutEntry{Size: int64(entry.Param), Alignment: 1, RelativeOffset: baseOffset}
		return 1, nil

	case ir.Bits:
		// Bit-fields are packed by the enclosing struct's layoutStruct;
		// a bare Bits slot not under a struct gets a standalone minimal
		// storage unit.
		unitSize := bitfieldUnitSize(entry.Param)
		out[slot] = LayoutEntry{
			Size: unitSize, Alignment: unitSize, RelativeOffset: baseOffset,
			BitfieldUnitOffset: baseOffset, BitOffset: 0, BitWidth: entry.Param,
		}
		return 1, nil

	case ir.Struct:
		return lt.layoutStruct(t, slot, entry, baseOffset, out, parentStack)

	case ir.Union:
		return lt.layoutUnion(t, slot, entry, baseOffset, out, parentStack)

	case ir.Array:
		return lt.layoutArray(t, slot, entry, baseOffset, out, parentStack)

	default:
		size, align, err := lt.scalarSizeAlign(entry.Typecode)
		if err != nil {
			return 0, err
		}
		if entry.Alignment != 0 {
			align = int64(entry.Alignment)
		}
		out[slot] = LayoutEntry{Size: size, Alignment: align, RelativeOffset: baseOffset, Aligned: true}
		return 1, nil
	}
}

// bitfieldUnitSize picks the smallest standard integer storage unit (1,
// 2, 4, or 8 bytes) that can hold a bit-field of the given width.
func bitfieldUnitSize(widthBits int) int64 {
	switch {
	case widthBits <= 8:
		return 1
	case widthBits <= 16:
		return 2
	case widthBits <= 32:
		return 4
	default:
		return 8
	}
}

func (lt *LayoutTable) layoutStruct(t *ir.Type, slot int, opener ir.Entry, baseOffset int64, out []LayoutEntry, parentStack []int) (int, error) {
	children, err := t.ChildrenOf(slot)
	if err != nil {
		return 0, err
	}
	nextStack := append(append([]int{}, parentStack...), slot)

	var running int64
	var structAlign int64 = 1
	span := 1

	// unitStart tracks the byte offset of the current bit-field storage
	// unit; unitBitsUsed tracks how many bits of it are occupied.
	unitStart := int64(-1)
	var unitBitsUsed int
	var unitByteSize int64

	for _, child := range children {
		childEntry, err := t.EntryAt(child)
		if err != nil {
			return 0, err
		}

		if childEntry.Typecode == ir.Bits {
			unitSize := bitfieldUnitSize(childEntry.Param)
			if childEntry.Param == 0 {
				// Zero-width bit-field: force the next field to a new
				// storage-unit boundary.
				if unitStart >= 0 {
					running = unitStart + unitByteSize
				}
				unitStart = -1
				unitBitsUsed = 0
				out[child] = LayoutEntry{Size: 0, Alignment: 1, RelativeOffset: running, BitWidth: 0}
				span++
				continue
			}
			if unitStart < 0 || unitBitsUsed+childEntry.Param > int(unitByteSize)*8 {
				// Begin a new storage unit, aligned to the unit size.
				running = roundUp(running, unitSize)
				unitStart = running
				unitByteSize = unitSize
				unitBitsUsed = 0
			}
			out[child] = LayoutEntry{
				Size: unitByteSize, Alignment: unitByteSize, RelativeOffset: unitStart,
				BitfieldUnitOffset: unitStart, BitOffset: int64(unitBitsUsed), BitWidth: childEntry.Param,
			}
			unitBitsUsed += childEntry.Param
			if unitStart+unitByteSize > running {
				running = unitStart + unitByteSize
			}
			if unitByteSize > structAlign {
				structAlign = unitByteSize
			}
			span++
			continue
		}

		// A non-bitfield field closes any in-progress storage unit.
		unitStart = -1
		unitBitsUsed = 0

		childSpan, err := lt.layoutSlot(t, child, 0, out, nextStack)
		if err != nil {
			return 0, err
		}
		fieldAlign := out[child].Alignment
		running = roundUp(running, fieldAlign)
		// Shift the just-computed subtree (laid out at baseOffset 0) to
		// its real offset within this struct.
		shiftOffsets(t, child, childSpan, running, out)
		if fieldAlign > structAlign {
			structAlign = fieldAlign
		}
		running += out[child].Size
		span += childSpan
	}

	if opener.Alignment != 0 {
		structAlign = int64(opener.Alignment)
	}
	size := roundUp(running, structAlign)
	out[slot] = LayoutEntry{Size: size, Alignment: structAlign, Aligned: true}
	shiftOffsets(t, slot, span, baseOffset, out)
	return span, nil
}

func (lt *LayoutTable) layoutUnion(t *ir.Type, slot int, opener ir.Entry, baseOffset int64, out []LayoutEntry, parentStack []int) (int, error) {
	children, err := t.ChildrenOf(slot)
	if err != nil {
		return 0, err
	}
	nextStack := append(append([]int{}, parentStack...), slot)

	var maxSize, maxAlign int64 = 0, 1
	span := 1
	for _, child := range children {
		childSpan, err := lt.layoutSlot(t, child, 0, out, nextStack)
		if err != nil {
			return 0, err
		}
		// Every union member starts at relative offset zero.
		shiftOffsets(t, child, childSpan, 0, out)
		if out[child].Size > maxSize {
			maxSize = out[child].Size
		}
		if out[child].Alignment > maxAlign {
			maxAlign = out[child].Alignment
		}
		span += childSpan
	}
	if opener.Alignment != 0 {
		maxAlign = int64(opener.Alignment)
	}
	size := roundUp(maxSize, maxAlign)
	out[slot] = LayoutEntry{Size: size, Alignment: maxAlign, Aligned: true}
	shiftOffsets(t, slot, span, baseOffset, out)
	return span, nil
}

func (lt *LayoutTable) layoutArray(t *ir.Type, slot int, opener ir.Entry, baseOffset int64, out []LayoutEntry, parentStack []int) (int, error) {
	nextStack := append(append([]int{}, parentStack...), slot)
	elemSlot := slot + 1
	elemSpan, err := lt.layoutSlot(t, elemSlot, 0, out, nextStack)
	if err != nil {
		return 0, err
	}
	shiftOffsets(t, elemSlot, elemSpan, 0, out)
	elemSize := out[elemSlot].Size
	elemAlign := out[elemSlot].Alignment

	align := elemAlign
	if opener.Alignment != 0 {
		align = int64(opener.Alignment)
	}
	size := elemSize * int64(opener.Param)
	out[slot] = LayoutEntry{Size: size, Alignment: align, Aligned: true}
	span := 1 + elemSpan
	shiftOffsets(t, slot, span, baseOffset, out)
	return span, nil
}

// shiftOffsets rebases the RelativeOffset of a just-computed subtree
// (laid out starting at relative offset 0) to its real position
// `newBase` within the enclosing container, walking only the slots that
// belong to that subtree.
func shiftOffsets(t *ir.Type, rootSlot int, span int, newBase int64, out []LayoutEntry) {
	if newBase == 0 {
		return
	}
	for s := rootSlot; s < rootSlot+span; s++ {
		if s >= len(out) {
			break
		}
		out[s].RelativeOffset += newBase
		if out[s].BitfieldUnitOffset != 0 || out[s].BitWidth != 0 {
			out[s].BitfieldUnitOffset += newBase
		}
	}
}
