package asmsink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextSinkIntelPrefixInstr(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.Instr("mov", Reg("eax"), Mem("rbp", -8))
	require.Equal(t, "  mov eax, [rbp-8]\n", buf.String())
}

func TestTextSinkIntelPrefixKeepsSizeKeyword(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.Instr("fld", SizedMem("rbp", -24, 10))
	s.Instr("mov", SizedMem("rbp", -8, 1), Reg("al"))
	require.Equal(t, "  fld tbyte ptr [rbp-24]\n  mov byte ptr [rbp-8], al\n", buf.String())
}

func TestTextSinkIntelNoPrefixStripsSizeKeyword(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelNoPrefix)
	s.Instr("fld", SizedMem("rbp", -24, 10))
	s.Instr("mov", SizedMem("rbp", -8, 1), Reg("al"))
	require.Equal(t, "  fld [rbp-24]\n  mov [rbp-8], al\n", buf.String())
}

func TestTextSinkATTReversesOperandsAndDecorates(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, ATT)
	s.Instr("mov", Reg("eax"), Imm(5))
	require.Equal(t, "  mov $5, %eax\n", buf.String())
}

func TestTextSinkATTMemoryOperand(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, ATT)
	s.Instr("mov", Reg("eax"), Mem("rbp", -8))
	s.Instr("mov", Reg("rdi"), Mem("rsp", 0))
	require.Equal(t, "  mov -8(%rbp), %eax\n  mov (%rsp), %rdi\n", buf.String())
}

func TestTextSinkATTSizedMemorySuffixesMnemonic(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, ATT)
	s.Instr("fld", SizedMem("rbp", -24, 10))
	require.Equal(t, "  fldt -24(%rbp)\n", buf.String())
}

func TestTextSinkATTSymbolicMemory(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, ATT)
	s.Instr("lea", Reg("rdi"), SymMem("__emutls_v.x", "rip"))
	s.Instr("mov", Reg("rax"), Mem("my_string", 4))
	require.Equal(t, "  lea __emutls_v.x(%rip), %rdi\n  mov my_string+4, %rax\n", buf.String())
}

func TestTextSinkSegmentMemory(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.Instr("mov", Reg("rax"), SegMem("fs", 0))
	require.Equal(t, "  mov rax, fs:0\n", buf.String())

	buf.Reset()
	att := NewTextSink(&buf, ATT)
	att.Instr("mov", Reg("rax"), SegMem("fs", 0))
	require.Equal(t, "  mov %fs:0, %rax\n", buf.String())
}

func TestTextSinkDataDirectives(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.Data(Byte, 1)
	s.Data(Word, 2)
	s.Data(Double, 3)
	s.Data(Quad, 4)
	require.Equal(t, "  .byte 1\n  .word 2\n  .long 3\n  .quad 4\n", buf.String())
}

func TestTextSinkLabelGlobalExternal(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.Label("%s", "foo")
	s.Global("foo")
	s.External("bar")
	out := buf.String()
	require.Contains(t, out, "foo:\n")
	require.Contains(t, out, ".globl foo\n")
	require.Contains(t, out, ".extern bar\n")
}

func TestTextSinkZeroDataAndBinData(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.ZeroData(4)
	s.BinData([]byte{0x01, 0xff})
	out := buf.String()
	require.Contains(t, out, ".zero 4\n")
	require.Contains(t, out, ".byte 0x01, 0xff\n")
}

func TestTextSinkInlineAssemblyIndentsEachLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.InlineAssembly("nop\nret")
	require.Equal(t, "  nop\n  ret\n", buf.String())
}

func TestTextSinkInstrNoOperands(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, IntelPrefix)
	s.Instr("ret")
	require.Equal(t, "  ret\n", buf.String())
}

func TestTextSinkPropagatesWriteError(t *testing.T) {
	s := NewTextSink(failingWriter{}, IntelPrefix)
	s.Instr("ret")
	require.Error(t, s.Err())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errWriteFailed }

var errWriteFailed = writeErr("boom")

type writeErr string

func (e writeErr) Error() string { return string(e) }
