package sysv

import (
	"github.com/amd64sysv/codegen/ir"
)

// maxClassifiedQwords is the most 8-byte eightbytes the classifier walks.
const maxClassifiedQwords = 8 // 64 bytes; beyond this the type is MEMORY unconditionally.

// Classifier partitions aggregate types into eightbytes and assigns
// ABI classes to each.
type Classifier struct {
	layout *LayoutTable
}

// NewClassifier builds a classifier backed by the given layout table.
func NewClassifier(layout *LayoutTable) *Classifier { return &Classifier{layout: layout} }

// ClassifyResult is the outcome of classifying one ir.Type: its
// per-qword classes (one per eightbyte of the type, all Memory when it
// spans more than maxClassifiedQwords) and whether it degraded to
// MEMORY outright.
type ClassifyResult struct {
	Qwords       []EightbyteClass
	Size         int64
	Alignment    int64
	ForcedMemory bool
}

// Classify computes the eightbyte classes for t, applying the merge
// rule and the three post-pass corrections.
func (c *Classifier) Classify(t *ir.Type) (*ClassifyResult, error) {
	entries, err := c.layout.Layout(t)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &ClassifyResult{}, nil
	}
	root := entries[0]
	size, align := root.Size, root.Alignment

	if size == 0 {
		return &ClassifyResult{Size: 0, Alignment: align}, nil
	}

	// A bare _Complex long double is COMPLEX_X87 as a whole: the ABI
	// reserves that class for it alone, outside the qword merge rules
	// that govern aggregates. Under the 64-bit long-double downgrade it
	// is an ordinary SSE pair and takes the general path below.
	if rootEntry, err := t.EntryAt(0); err == nil &&
		rootEntry.Typecode == ir.ComplexLongDouble && c.layout.ldWidth == LongDouble80 {
		return &ClassifyResult{Qwords: []EightbyteClass{ComplexX87}, Size: size, Alignment: align}, nil
	}

	nQwords := int((size + 7) / 8)
	if nQwords > maxClassifiedQwords {
		return &ClassifyResult{Size: size, Alignment: align, ForcedMemory: true,
			Qwords: repeatClass(Memory, nQwords)}, nil
	}

	qwords := make([]EightbyteClass, nQwords)
	for i := range qwords {
		qwords[i] = NoClass
	}

	if err := c.classifySlot(t, 0, 0, qwords); err != nil {
		return nil, err
	}

	forced := applyPostPassCorrections(qwords, size)
	return &ClassifyResult{Qwords: qwords, Size: size, Alignment: align, ForcedMemory: forced}, nil
}

func repeatClass(cl EightbyteClass, n int) []EightbyteClass {
	out := make([]EightbyteClass, n)
	for i := range out {
		out[i] = cl
	}
	return out
}

// classifySlot walks the subtree at slot, merging each leaf scalar's
// class into the qword(s) its byte range spans. offset is the slot's
// byte offset relative to the root aggregate being classified.
func (c *Classifier) classifySlot(t *ir.Type, slot int, offset int64, qwords []EightbyteClass) error {
	entry, err := t.EntryAt(slot)
	if err != nil {
		return err
	}
	entries, err := c.layout.Layout(t)
	if err != nil {
		return err
	}
	layoutEntry := entries[slot]

	switch entry.Typecode {
	case ir.Struct, ir.Union:
		children, err := t.ChildrenOf(slot)
		if err != nil {
			return err
		}
		for _, child := range children {
			childLayout := entries[child]
			childOffset := offset + (childLayout.RelativeOffset - layoutEntry.RelativeOffset)
			if err := c.classifySlot(t, child, childOffset, qwords); err != nil {
				return err
			}
		}
		return nil

	case ir.Array:
		elemSlot := slot + 1
		elemLayout := entries[elemSlot]
		count := entry.Param
		for i := 0; i < count; i++ {
			elemOffset := offset + int64(i)*elemLayout.Size
			if err := c.classifySlot(t, elemSlot, elemOffset, qwords); err != nil {
				return err
			}
		}
		return nil

	case ir.PadEntry:
		return nil

	default:
		cls, err := c.leafClass(entry.Typecode)
		if err != nil {
			return err
		}
		mergeIntoQwords(qwords, offset, layoutEntry.Size, cls)
		return nil
	}
}

// leafClass maps a scalar typecode to its initial ABI class before any
// merging for each leaf scalar slot. The long-double downgrade makes
// x87-family scalars ordinary SSE values.
func (c *Classifier) leafClass(code ir.TypeCode) (EightbyteClass, error) {
	switch code {
	case ir.Bool, ir.Int8, ir.Int16, ir.Int32, ir.Int64, ir.Word, ir.Bits:
		return Integer, nil
	case ir.Float32, ir.Float64, ir.ComplexFloat32, ir.ComplexFloat64:
		return Sse, nil
	case ir.LongDouble:
		if c.layout.ldWidth == LongDouble64 {
			return Sse, nil
		}
		return X87, nil
	case ir.ComplexLongDouble:
		if c.layout.ldWidth == LongDouble64 {
			return Sse, nil
		}
		return ComplexX87, nil
	default:
		return NoClass, ErrInvalidType("cannot classify typecode %s", code)
	}
}

// mergeIntoQwords merges cls into every qword the byte range
// [offset, offset+size) touches.
func mergeIntoQwords(qwords []EightbyteClass, offset, size int64, cls EightbyteClass) {
	if size == 0 {
		return
	}
	first := offset / 8
	last := (offset + size - 1) / 8
	// An 80-bit long double contributes X87 to its first qword and
	// X87Up to the rest; merging X87 into both would collapse the pair
	// to Memory under the merge rule.
	if cls == X87 && last > first {
		if first >= 0 && int(first) < len(qwords) {
			qwords[first] = mergeClass(qwords[first], X87)
		}
		for q := first + 1; q <= last; q++ {
			if q >= 0 && int(q) < len(qwords) {
				qwords[q] = mergeClass(qwords[q], X87Up)
			}
		}
		return
	}
	for q := first; q <= last; q++ {
		if q < 0 || int(q) >= len(qwords) {
			continue
		}
		qwords[q] = mergeClass(qwords[q], cls)
	}
}

// applyPostPassCorrections implements the three post-pass corrections,
// mutating qwords to Memory wholesale when any apply. Returns whether
// the aggregate was forced to MEMORY.
func applyPostPassCorrections(qwords []EightbyteClass, size int64) bool {
	// 1. If any qword is Memory, the whole aggregate is Memory.
	for _, q := range qwords {
		if q == Memory {
			fillMemory(qwords)
			return true
		}
	}
	// 2. If any qword is X87Up not immediately preceded by X87, the
	// whole aggregate is Memory.
	for i, q := range qwords {
		if q == X87Up && (i == 0 || qwords[i-1] != X87) {
			fillMemory(qwords)
			return true
		}
	}
	// 3. If the aggregate is > 16 bytes and the first qword is not Sse,
	// or any subsequent qword is not SseUp, the whole aggregate is
	// Memory.
	if size > 16 {
		if qwords[0] != Sse {
			fillMemory(qwords)
			return true
		}
		for i := 1; i < len(qwords); i++ {
			if qwords[i] != SseUp {
				fillMemory(qwords)
				return true
			}
		}
	}
	return false
}

func fillMemory(qwords []EightbyteClass) {
	for i := range qwords {
		qwords[i] = Memory
	}
}

// SlotLocations expands a type's decided top-level location into the
// per-slot location vector: slot 0 carries the top-level location
// itself, and every nested slot gets a Nested reference to it with the
// member's byte offset, so a consumer can address any member through
// the aggregate's single ABI placement.
func (c *Classifier) SlotLocations(t *ir.Type, top Location) ([]Location, error) {
	entries, err := c.layout.Layout(t)
	if err != nil {
		return nil, err
	}
	locs := make([]Location, t.SlotCount())
	if len(locs) == 0 {
		return locs, nil
	}
	locs[0] = top
	for s := 1; s < len(locs); s++ {
		locs[s] = NewNestedLocation(&locs[0], entries[s].RelativeOffset)
	}
	return locs, nil
}

// AllNoClass reports whether every qword in the result classified as
// NoClass — the whole value contributes nothing and may be dropped.
func (r *ClassifyResult) AllNoClass() bool {
	for _, q := range r.Qwords {
		if q != NoClass {
			return false
		}
	}
	return true
}
