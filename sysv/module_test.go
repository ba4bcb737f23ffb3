package sysv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amd64sysv/codegen/asmsink"
	"github.com/amd64sysv/codegen/ir"
)

// Scenario 1 end-to-end: int f(int a) through the full orchestrator.
func TestOrchestratorEmitsScenario1Function(t *testing.T) {
	m := ir.NewModule()
	decl := ir.FunctionDecl{Name: "f", Params: []ir.Param{{Type: scalarType(ir.Int32)}}, Return: scalarType(ir.Int32)}
	m.AddFunction(&ir.Function{Decl: decl})

	var buf bytes.Buffer
	cfg := &Config{Syntax: asmsink.IntelPrefix}
	sink := asmsink.NewTextSink(&buf, cfg.Syntax)
	o := NewOrchestrator(cfg, sink)

	err := o.EmitModule(m, nil)
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "__f_body:")
	require.Contains(t, out, "__f_epilogue:")
	require.Contains(t, out, "__f_gate:")
	require.Contains(t, out, "push rbp")
	require.Contains(t, out, "ret")
}

// The same module rendered with --syntax att must come out in AT&T
// operand syntax end to end: reversed operand order, %-decorated
// registers, and displacement(base) memory references — no Intel
// bracket operands anywhere.
func TestOrchestratorEmitsATTMemoryOperands(t *testing.T) {
	m := ir.NewModule()
	decl := ir.FunctionDecl{Name: "f", Params: []ir.Param{{Type: scalarType(ir.Int32)}}, Return: scalarType(ir.Int32)}
	m.AddFunction(&ir.Function{Decl: decl})

	var buf bytes.Buffer
	cfg := &Config{Syntax: asmsink.ATT}
	sink := asmsink.NewTextSink(&buf, cfg.Syntax)
	o := NewOrchestrator(cfg, sink)
	require.NoError(t, o.EmitModule(m, nil))

	out := buf.String()
	require.Contains(t, out, "push %rbp")
	require.Contains(t, out, "mov %rsp, %rbp")
	require.Contains(t, out, "mov %rdi, -8(%rbp)")
	require.NotContains(t, out, "[")
}

func TestOrchestratorEmitsGlobalsAndExternalsSortedAndTLSThunks(t *testing.T) {
	m := ir.NewModule()
	m.Identifiers["imported_fn"] = ir.Identifier{Scope: ir.ScopeImport, SymbolName: "imported_fn"}
	m.Identifiers["exported_var"] = ir.Identifier{Scope: ir.ScopeExport, SymbolName: "exported_var"}
	m.AddGlobal(&ir.Global{Name: "g1", Type: scalarType(ir.Int32), Initialized: false})
	m.AddGlobal(&ir.Global{Name: "tlsvar", Type: scalarType(ir.Int32), ThreadLocal: true, Initialized: false})

	var buf bytes.Buffer
	cfg := &Config{Syntax: asmsink.IntelPrefix}
	sink := asmsink.NewTextSink(&buf, cfg.Syntax)
	o := NewOrchestrator(cfg, sink)
	require.NoError(t, o.EmitModule(m, nil))

	out := buf.String()
	require.Contains(t, out, ".extern imported_fn")
	require.Contains(t, out, ".globl exported_var")
	require.Less(t, strings.Index(out, ".globl exported_var"), strings.Index(out, ".extern imported_fn"))
	require.Contains(t, out, "__kefir_tls_tlsvar:")
	require.Contains(t, out, ".section .bss")
}

func TestOrchestratorStringLiteralLabels(t *testing.T) {
	m := ir.NewModule()
	id := m.AddStringLiteral(ir.Multibyte, []byte("hi\x00"), true)
	require.Equal(t, 0, id)

	var buf bytes.Buffer
	cfg := &Config{Syntax: asmsink.IntelPrefix}
	sink := asmsink.NewTextSink(&buf, cfg.Syntax)
	o := NewOrchestrator(cfg, sink)
	require.NoError(t, o.EmitModule(m, nil))
	out := buf.String()
	require.Contains(t, out, "__kefir_string_literal_0:")
	require.Contains(t, out, ".globl __kefir_string_literal_0")
}

func TestOrchestratorEmitsTopLevelInlineAsm(t *testing.T) {
	m := ir.NewModule()
	m.AddInlineAsm("nop\nnop")

	var buf bytes.Buffer
	cfg := &Config{Syntax: asmsink.IntelPrefix}
	sink := asmsink.NewTextSink(&buf, cfg.Syntax)
	o := NewOrchestrator(cfg, sink)
	require.NoError(t, o.EmitModule(m, nil))
	require.Contains(t, buf.String(), "nop")
}

func TestOrchestratorEmulatedTLSRoutesThroughEmutlsHelper(t *testing.T) {
	m := ir.NewModule()
	m.AddGlobal(&ir.Global{Name: "counter", Type: scalarType(ir.Int32), ThreadLocal: true})

	var buf bytes.Buffer
	cfg := &Config{Syntax: asmsink.IntelPrefix, EmulatedTLS: true}
	sink := asmsink.NewTextSink(&buf, cfg.Syntax)
	o := NewOrchestrator(cfg, sink)
	require.NoError(t, o.EmitModule(m, nil))
	out := buf.String()
	require.Contains(t, out, "__emutls_v.counter:")
	require.Contains(t, out, "call __emutls_get_address")
}
