// Command sysvabi drives the System V AMD64 ABI code generation core
// from the command line: compiling a JSON IR module fixture to
// assembly, or printing the Type Layout and eightbyte classification
// of a struct/union parsed straight out of C source.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amd64sysv/codegen/asmsink"
	"github.com/amd64sysv/codegen/ir"
	"github.com/amd64sysv/codegen/irfromc"
	"github.com/amd64sysv/codegen/sysv"
)

var (
	syntaxFlag      string
	emulatedTLSFlag bool
	picFlag         bool
	outputFlag      string
)

var rootCmd = &cobra.Command{
	Use:   "sysvabi",
	Short: "System V AMD64 ABI code generation core",
}

var compileCmd = &cobra.Command{
	Use:   "compile <ir.json>",
	Short: "emit assembly for a JSON-encoded IR module",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

var layoutCmd = &cobra.Command{
	Use:   "layout <header.c> <TypeName>",
	Short: "print the Type Layout and classification of a C struct or union",
	Args:  cobra.ExactArgs(2),
	RunE:  runLayout,
}

func init() {
	compileCmd.Flags().StringVar(&syntaxFlag, "syntax", "intel-prefix", "assembler dialect: intel-prefix, intel-noprefix, att")
	compileCmd.Flags().BoolVar(&emulatedTLSFlag, "emulated-tls", false, "route thread-local globals through __emutls_get_address")
	compileCmd.Flags().BoolVar(&picFlag, "pic", false, "generate position-independent code")
	compileCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(compileCmd, layoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseSyntax(s string) (asmsink.Syntax, error) {
	switch s {
	case "intel-prefix":
		return asmsink.IntelPrefix, nil
	case "intel-noprefix":
		return asmsink.IntelNoPrefix, nil
	case "att":
		return asmsink.ATT, nil
	default:
		return 0, fmt.Errorf("unrecognized --syntax %q", s)
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var m ir.Module
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}
	if m.Declarations == nil {
		m.Declarations = make(map[string]*ir.FunctionDecl)
	}
	if m.Identifiers == nil {
		m.Identifiers = make(map[string]ir.Identifier)
	}

	syntax, err := parseSyntax(syntaxFlag)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outputFlag != "" {
		file, err := os.Create(outputFlag)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	cfg := sysv.DefaultConfig()
	cfg.Syntax = syntax
	cfg.EmulatedTLS = emulatedTLSFlag
	cfg.PositionIndependentCode = picFlag

	sink := asmsink.NewTextSink(out, syntax)
	orch := sysv.NewOrchestrator(cfg, sink)

	if err := orch.EmitModule(&m, lowerBody); err != nil {
		return fmt.Errorf("emitting module: %w", err)
	}
	return sink.Err()
}

// lowerBody handles the one opcode the minimal IR surface carries: call
// instructions. Each argument's source and the call's return
// destination come from the instruction's own ValueRef operands
// (ir.Instruction.Args/ReturnDest), converted to the sysv package's
// memory-operand form — driving a full call sequence (argument
// marshalling, CALL, return retrieval) rather than just its structural
// skeleton.
func lowerBody(ctx *sysv.FunctionCodegenContext, inst ir.Instruction) error {
	if !inst.IsCall || inst.Callee == nil {
		return nil
	}
	plan, err := ctx.Params.PlanCall(inst.Callee)
	if err != nil {
		return err
	}
	args := make([]sysv.MemOperand, len(inst.Args))
	for i, a := range inst.Args {
		op, err := resolveValue(ctx, a)
		if err != nil {
			return err
		}
		args[i] = op
	}
	site := &sysv.CallSite{
		Kind:       inst.CallKind,
		Callee:     inst.Callee,
		CalleeSym:  inst.Callee.Name,
		ThroughPLT: ctx.PIC && inst.CallKind == ir.CallDirect,
		ArgSources: args,
	}
	if inst.ReturnDest.Kind != ir.ValueNone {
		dest, err := resolveValue(ctx, inst.ReturnDest)
		if err != nil {
			return err
		}
		site.ReturnDest = dest
	}
	// Stash slots grow downward from the top of the outgoing-call
	// temporaries region, which spans [rbp-Base, rbp-Base+Size).
	spillBase := ctx.Frame.OutgoingCallTempsSize - ctx.Frame.OutgoingCallTempsBase
	ctx.Emitter.EmitCallSequence(plan, site, nil, nil, spillBase)
	return nil
}

// toMemOperand converts an IR value reference into the sysv package's
// memory-operand form: a frame-relative local or a named symbol.
func toMemOperand(v ir.ValueRef) sysv.MemOperand {
	if v.Kind == ir.ValueGlobal {
		return sysv.NewMemOperand(v.Symbol, v.Offset)
	}
	return sysv.NewMemOperand("rbp", v.Offset)
}

// resolveValue locates a ValueRef in the enclosing function's frame. A
// ValueParam resolves through the function's own descriptor: a
// register-resident parameter was spilled to its shadow slot on entry,
// while a memory parameter sits in the incoming argument area, located
// by the descriptor's callee-view twin of its location.
func resolveValue(ctx *sysv.FunctionCodegenContext, v ir.ValueRef) (sysv.MemOperand, error) {
	if v.Kind != ir.ValueParam {
		return toMemOperand(v), nil
	}
	if v.Index < 0 || v.Index >= len(ctx.Descriptor.CalleeParams) {
		return sysv.MemOperand{}, fmt.Errorf("parameter reference %d out of range (%d parameters)", v.Index, len(ctx.Descriptor.CalleeParams))
	}
	loc := ctx.Descriptor.CalleeParam(v.Index)
	if loc.Kind == sysv.LocMemory {
		return sysv.NewMemOperand("rbp", loc.Offset), nil
	}
	return sysv.NewMemOperand("rbp", ctx.Frame.ParamSlotOffset(v.Index)), nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	typ, err := irfromc.ParseTypeLayout(f, args[0], args[1], irfromc.DefaultConfig())
	if err != nil {
		return err
	}

	cfg := sysv.DefaultConfig()
	layout := sysv.NewLayoutTable(cfg.LongDoubleWidth)
	entries, err := layout.Layout(typ)
	if err != nil {
		return err
	}
	classifier := sysv.NewClassifier(layout)
	result, err := classifier.Classify(typ)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: size=%d align=%d\n", args[1], entries[0].Size, entries[0].Alignment)
	if result.ForcedMemory {
		fmt.Fprintln(cmd.OutOrStdout(), "  eightbytes: MEMORY (forced)")
		return nil
	}
	for i, c := range result.Qwords {
		fmt.Fprintf(cmd.OutOrStdout(), "  eightbyte[%d]: %s\n", i, c)
	}
	return nil
}
