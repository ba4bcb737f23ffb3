package sysv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amd64sysv/codegen/asmsink"
	"github.com/amd64sysv/codegen/ir"
)

func newTestEmitter() (*Emitter, *bytes.Buffer, *asmsink.TextSink) {
	var buf bytes.Buffer
	sink := asmsink.NewTextSink(&buf, asmsink.IntelPrefix)
	return NewEmitter(sink), &buf, sink
}

// Scenario 1: int f(int a) prologue/epilogue shape.
func TestPrologueEpilogueScenario1(t *testing.T) {
	a := newAllocator()
	fd, err := a.Allocate(declWithParams(scalarType(ir.Int32), scalarType(ir.Int32)))
	require.NoError(t, err)
	fp := PlanFrame(fd, false, 0, 1, 0)

	e, buf, _ := newTestEmitter()
	e.EmitPrologue("f", fd, fp, false)
	out := buf.String()
	require.Contains(t, out, "push rbp")
	require.Contains(t, out, "mov rbp, rsp")
	require.Contains(t, out, "mov [rbp"+offsetSuffix(fp.ParamSlotOffset(0))+"], rdi")

	buf.Reset()
	e.EmitEpilogue(fd, fp, fp.ParamSlotOffset(0), 4)
	out = buf.String()
	require.Contains(t, out, "mov rax, [rbp"+offsetSuffix(fp.ParamSlotOffset(0))+"]")
	require.Contains(t, out, "mov rsp, rbp")
	require.Contains(t, out, "pop rbp")
	require.Contains(t, out, "ret")
}

func offsetSuffix(off int64) string {
	if off < 0 {
		return "-" + itoa(-off)
	}
	return "+" + itoa(off)
}

func TestVariadicPrologueSavesIntRegsAndBranchesOnAL(t *testing.T) {
	a := newAllocator()
	decl := declWithParams(nil, scalarType(ir.Word))
	decl.Variadic = true
	fd, err := a.Allocate(decl)
	require.NoError(t, err)
	fp := PlanFrame(fd, true, 0, 1, 0)

	e, buf, _ := newTestEmitter()
	e.EmitPrologue("printf", fd, fp, true)
	out := buf.String()
	require.True(t, strings.Contains(out, "mov [rbp-"))
	require.Contains(t, out, "test al, al")
	require.Contains(t, out, "jz skip_sse_save")
	require.Contains(t, out, "movdqu")
	require.Contains(t, out, "skip_sse_save:")
}

// Scenario 4: long double parameter via memory, x87 return.
func TestLongDoubleEpilogueUsesFldTbyte(t *testing.T) {
	a := newAllocator()
	fd, err := a.Allocate(declWithParams(scalarType(ir.LongDouble), scalarType(ir.LongDouble)))
	require.NoError(t, err)
	fp := PlanFrame(fd, false, 16, 16, 0)

	e, buf, _ := newTestEmitter()
	e.EmitEpilogue(fd, fp, -fp.LocalsBase, 16)
	require.Contains(t, buf.String(), "fld tbyte")
}

func TestMemoryReturnEpilogueCopiesIntoCallerBuffer(t *testing.T) {
	b := ir.NewTypeBuilder()
	b.OpenStruct(1, 0)
	b.OpenArray(32)
	b.Scalar(ir.Int8)
	big := b.Build()

	a := newAllocator()
	fd, err := a.Allocate(declWithParams(big))
	require.NoError(t, err)
	fp := PlanFrame(fd, false, 32, 8, 0)

	e, buf, _ := newTestEmitter()
	e.EmitPrologue("f3", fd, fp, false)
	require.Contains(t, buf.String(), "mov [rbp"+offsetSuffix(fp.ReturnBufferSlot)+"], rdi")

	buf.Reset()
	e.EmitEpilogue(fd, fp, -fp.LocalsBase, 32)
	out := buf.String()
	require.Contains(t, out, "mov rdi, [rbp"+offsetSuffix(fp.ReturnBufferSlot)+"]")
	require.Contains(t, out, "mov rax, [rbp"+offsetSuffix(fp.ReturnBufferSlot)+"]")
}
