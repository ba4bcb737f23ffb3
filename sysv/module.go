package sysv

import (
	"sort"

	"github.com/samber/lo"

	"github.com/amd64sysv/codegen/asmsink"
	"github.com/amd64sysv/codegen/ir"
)

// FunctionCodegenContext is what an InstructionEmitter callback is
// handed for one function body: the emitter to write through, this
// function's already-computed descriptor/frame plan, and the shared
// allocator so the callback can resolve its own call sites via
// ParamAllocator.PlanCall.
type FunctionCodegenContext struct {
	Emitter    *Emitter
	Params     *ParamAllocator
	Descriptor *FunctionDescriptor
	Frame      *FramePlan

	// PIC mirrors Config.PositionIndependentCode so call lowering can
	// route direct calls through the PLT.
	PIC bool
}

// InstructionEmitter lowers one IR instruction within a function body.
// The module orchestrator brackets every function with prologue,
// epilogue, and appendices; actual instruction-by-instruction lowering
// is an external collaborator's responsibility, matching how the
// opcode set and value storage live outside this module's scope.
type InstructionEmitter func(ctx *FunctionCodegenContext, inst ir.Instruction) error

// Orchestrator drives the six-step module emission sequence, wiring
// together the layout table, classifier, parameter allocator,
// prologue/epilogue emitter, and static data serializer around one
// Sink.
type Orchestrator struct {
	cfg        *Config
	layout     *LayoutTable
	classifier *Classifier
	params     *ParamAllocator
	emitter    *Emitter
	data       *DataSerializer
	sink       asmsink.Sink
}

// NewOrchestrator wires up every component from cfg and sink.
func NewOrchestrator(cfg *Config, sink asmsink.Sink) *Orchestrator {
	layout := NewLayoutTable(cfg.LongDoubleWidth)
	classifier := NewClassifier(layout)
	params := NewParamAllocator(classifier)
	return &Orchestrator{
		cfg:        cfg,
		layout:     layout,
		classifier: classifier,
		params:     params,
		emitter:    NewEmitter(sink),
		data:       NewDataSerializer(layout, sink),
		sink:       sink,
	}
}

func syntaxName(s asmsink.Syntax) string {
	switch s {
	case asmsink.IntelNoPrefix:
		return "intel-noprefix"
	case asmsink.ATT:
		return "att"
	default:
		return "intel-prefix"
	}
}

// EmitModule drives the full six-step sequence over m, delegating
// function-body instruction lowering to body.
func (o *Orchestrator) EmitModule(m *ir.Module, body InstructionEmitter) error {
	o.emitFilePrologue()

	if err := o.emitExternalsAndGlobals(m); err != nil {
		return err
	}
	if err := o.emitText(m, body); err != nil {
		return err
	}
	if err := o.emitInlineAsm(m); err != nil {
		return err
	}
	if err := o.emitVirtualGates(m); err != nil {
		return err
	}
	if err := o.emitTLSThunks(m); err != nil {
		return err
	}
	if err := o.emitStaticData(m); err != nil {
		return err
	}

	o.sink.Close()
	return nil
}

// emitFilePrologue emits the file-level header: the chosen syntax
// dialect and PIC mode, recorded as a leading comment since TextSink
// itself already bakes the dialect into every subsequent call.
func (o *Orchestrator) emitFilePrologue() {
	o.sink.Comment("syntax=%s pic=%v emulated_tls=%v", syntaxName(o.cfg.Syntax), o.cfg.PositionIndependentCode, o.cfg.EmulatedTLS)
}

// emitExternalsAndGlobals declares every imported symbol as external
// and every exported symbol as global, plus external declarations for
// any function referenced but never defined in this module. Iteration
// order is sorted so the emitted assembly is reproducible across runs,
// since Go map iteration is randomized.
func (o *Orchestrator) emitExternalsAndGlobals(m *ir.Module) error {
	idNames := lo.Keys(m.Identifiers)
	sort.Strings(idNames)
	for _, name := range idNames {
		id := m.Identifiers[name]
		switch id.Scope {
		case ir.ScopeImport:
			o.sink.External(id.SymbolName)
		case ir.ScopeExport:
			o.sink.Global(id.SymbolName)
		}
	}

	hasBody := make(map[string]bool, len(m.Functions))
	for _, fn := range m.Functions {
		hasBody[fn.Decl.Name] = true
	}
	declNames := lo.Keys(m.Declarations)
	sort.Strings(declNames)
	for _, name := range declNames {
		if !hasBody[name] {
			o.sink.External(name)
		}
	}

	if o.cfg.EmulatedTLS {
		hasTLS := lo.SomeBy(m.Globals, func(g *ir.Global) bool { return g.ThreadLocal })
		if hasTLS {
			o.sink.External("__emutls_get_address")
		}
	}
	return nil
}

// emitText opens .text and emits every function's label, prologue,
// body, epilogue, and in-progress appendices (the function gate for
// indirect-call targets).
func (o *Orchestrator) emitText(m *ir.Module, body InstructionEmitter) error {
	o.sink.Section(".text")
	for _, fn := range m.Functions {
		if err := o.emitFunction(fn, body); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) emitFunction(fn *ir.Function, body InstructionEmitter) error {
	fd, err := o.params.Allocate(&fn.Decl)
	if err != nil {
		return err
	}

	maxOutgoing, err := o.maxOutgoingCallBytes(fn)
	if err != nil {
		return err
	}
	localsSize, localsAlign, err := o.localsSizeAlign(fn)
	if err != nil {
		return err
	}
	fp := PlanFrame(fd, fn.Decl.Variadic, localsSize, localsAlign, maxOutgoing)

	bodyLabel := "__" + fn.Decl.Name + "_body"
	o.emitter.EmitPrologue(bodyLabel, fd, fp, fn.Decl.Variadic)

	ctx := &FunctionCodegenContext{Emitter: o.emitter, Params: o.params, Descriptor: fd, Frame: fp, PIC: o.cfg.PositionIndependentCode}
	for _, inst := range fn.Instructions {
		if body == nil {
			continue
		}
		if err := body(ctx, inst); err != nil {
			return err
		}
	}

	o.sink.Label("__%s_epilogue", fn.Decl.Name)
	// Convention: the return value is materialized at the base of the
	// locals region before control reaches the epilogue.
	resultSlot := -fp.LocalsBase
	o.emitter.EmitEpilogue(fd, fp, resultSlot, sizeOfReturn(o.layout, fn.Decl.Return))

	if fn.Decl.ReturnsTwice {
		o.emitter.MarkReturnsTwice()
	}

	return o.emitFunctionGate(fn, fd)
}

func sizeOfReturn(layout *LayoutTable, ret *ir.Type) int64 {
	if ret == nil {
		return 0
	}
	entries, err := layout.Layout(ret)
	if err != nil || len(entries) == 0 {
		return 0
	}
	return entries[0].Size
}

func (o *Orchestrator) maxOutgoingCallBytes(fn *ir.Function) (int64, error) {
	var widest int64
	for _, inst := range fn.Instructions {
		if !inst.IsCall || inst.Callee == nil {
			continue
		}
		plan, err := o.params.PlanCall(inst.Callee)
		if err != nil {
			return 0, err
		}
		if plan.OutgoingBytes > widest {
			widest = plan.OutgoingBytes
		}
	}
	return widest, nil
}

func (o *Orchestrator) localsSizeAlign(fn *ir.Function) (int64, int64, error) {
	if fn.Locals == nil {
		return 0, 1, nil
	}
	entries, err := o.layout.Layout(fn.Locals)
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 1, nil
	}
	return entries[0].Size, entries[0].Alignment, nil
}

// emitFunctionGate emits the `__<name>_gate` trampoline used by
// indirect dispatch tables to call through a function pointer. The
// gate performs no ABI marshalling of its own: the caller already
// placed arguments per the callee's Function Descriptor, so the gate
// only needs to forward control.
func (o *Orchestrator) emitFunctionGate(fn *ir.Function, fd *FunctionDescriptor) error {
	o.sink.Label("__%s_gate", fn.Decl.Name)
	o.sink.Instr("jmp", asmsink.Sym("__"+fn.Decl.Name+"_body"))
	return nil
}

// emitInlineAsm formats and emits every top-level inline-assembly
// fragment. File-scope asm carries no parameters, so the substitution
// pass only resolves %%, %= and rejects stray placeholders.
func (o *Orchestrator) emitInlineAsm(m *ir.Module) error {
	for _, frag := range m.InlineAsm {
		text, err := FormatInlineAsm(o.cfg.Syntax, frag.Template, nil, "", frag.ID, frag.ID)
		if err != nil {
			return err
		}
		o.sink.InlineAssembly(text)
	}
	return nil
}

// emitVirtualGates emits one `__<name>_vgate` stub per distinct callee
// declaration: a pass-through trampoline that tail-jumps to the
// address held, by convention, in R11 — the one caller-saved register
// never used for parameter passing or return values.
func (o *Orchestrator) emitVirtualGates(m *ir.Module) error {
	names := lo.Keys(m.Declarations)
	sort.Strings(names)
	for _, name := range names {
		o.sink.Label("__%s_vgate", name)
		o.sink.Instr("jmp", asmsink.Reg("r11"))
	}
	return nil
}

// emitTLSThunks emits one `__kefir_tls_<name>` thunk per thread-local
// global: a leaf routine returning the symbol's address in the
// current thread in RAX, via the %fs segment base in native TLS mode
// or __emutls_get_address in emulated mode.
func (o *Orchestrator) emitTLSThunks(m *ir.Module) error {
	for _, g := range m.Globals {
		if !g.ThreadLocal {
			continue
		}
		o.sink.Label("__kefir_tls_%s", g.Name)
		if o.cfg.EmulatedTLS {
			o.sink.Instr("lea", asmsink.Reg("rdi"), asmsink.SymMem("__emutls_v."+g.Name, "rip"))
			o.sink.Instr("call", asmsink.Sym("__emutls_get_address"))
		} else {
			o.sink.Instr("mov", asmsink.Reg("rax"), asmsink.SegMem("fs", 0))
			o.sink.Instr("lea", asmsink.Reg("rax"), asmsink.SymMem(g.Name+"@tpoff", "rax"))
		}
		o.sink.Instr("ret")
	}
	return nil
}

// emitStaticData switches sections and emits, in order: .data, .bss,
// .tdata/.tbss (or their emulated-TLS equivalents), then .rodata
// string literals. Globals are grouped so each section is opened once
// rather than interleaved in declaration order.
func (o *Orchestrator) emitStaticData(m *ir.Module) error {
	ordinary := lo.Filter(m.Globals, func(g *ir.Global, _ int) bool {
		return !(g.ThreadLocal && o.cfg.EmulatedTLS)
	})
	emulated := lo.Filter(m.Globals, func(g *ir.Global, _ int) bool {
		return g.ThreadLocal && o.cfg.EmulatedTLS
	})

	sectionOrder := []string{".data", ".bss", ".tdata", ".tbss"}
	for _, section := range sectionOrder {
		for _, g := range ordinary {
			if sectionFor(g) != section {
				continue
			}
			if err := o.data.EmitGlobal(g); err != nil {
				return err
			}
		}
	}
	for _, g := range emulated {
		if err := o.data.EmitEmulatedTLS(g); err != nil {
			return err
		}
	}

	o.sink.Section(".rodata")
	for _, lit := range m.StringLiterals {
		o.sink.Align(1)
		if lit.Public {
			o.sink.Global(stringLiteralLabel(lit.ID))
		}
		o.sink.Label("%s", stringLiteralLabel(lit.ID))
		o.sink.BinData(lit.Bytes)
	}
	return nil
}

func stringLiteralLabel(id int) string {
	return "__kefir_string_literal_" + itoa(int64(id))
}
