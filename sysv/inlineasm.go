package sysv

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/amd64sysv/codegen/asmsink"
)

// AsmParamKind discriminates what an inline-asm fragment's Nth
// placeholder resolves to.
type AsmParamKind byte

const (
	AsmParamRegister AsmParamKind = iota
	AsmParamMemory
	AsmParamImmediate
	AsmParamLabel
)

// AsmParam is one inline-asm fragment parameter, pre-allocated by the
// Parameter Allocator (when the fragment is embedded in a function) or
// by a dedicated top-level allocator.
type AsmParam struct {
	Kind AsmParamKind

	// Register/Memory: the pre-computed allocation. A Memory parameter
	// may be a Nested location (a member of a memory-resident
	// aggregate), which is resolved to its concrete address at
	// substitution time.
	Loc Location

	// Immediate/identifier: the literal text to substitute verbatim.
	Immediate string

	// Label: the jump target's unique id within this fragment, used to
	// build __kefir_asm_label_<func>_<asm_id>_<target_uid>.
	TargetUID int
}

// widthSuffix maps the placeholder's forced-width letter to a byte
// count, or 0 for "use the parameter's natural width".
func widthSuffix(b byte) int64 {
	switch b {
	case 'b':
		return 1
	case 'w':
		return 2
	case 'd':
		return 4
	case 'q':
		return 8
	default:
		return 0
	}
}

// FormatInlineAsm scans template for parameter placeholders and
// substitutes each against params, func name and asmID (used to build
// jump-trampoline labels), and a per-instantiation unique value for
// %=. Register and memory substitutions are rendered for the given
// syntax dialect so the template's operands match the surrounding
// emission. The result is the literal text handed to the assembler
// sink's InlineAssembly call.
func FormatInlineAsm(syntax asmsink.Syntax, template string, params []AsmParam, funcName string, asmID int, unique int) (string, error) {
	var out strings.Builder
	runes := []rune(template)
	i := 0
	for i < len(runes) {
		if runes[i] != '%' {
			out.WriteRune(runes[i])
			i++
			continue
		}
		if i+1 >= len(runes) {
			return "", ErrInvalidParameter("inline-asm template ends with a dangling '%%'")
		}
		next := runes[i+1]
		switch {
		case next == '%':
			out.WriteByte('%')
			i += 2
		case next == '=':
			out.WriteString(strconv.Itoa(unique))
			i += 2
		case next == 'l':
			n, consumed, err := scanDigits(runes, i+2)
			if err != nil {
				return "", err
			}
			text, err := formatLabelPlaceholder(params, n, funcName, asmID)
			if err != nil {
				return "", err
			}
			out.WriteString(text)
			i = i + 2 + consumed
		case isWidthLetter(next):
			n, consumed, err := scanDigits(runes, i+2)
			if err != nil {
				return "", err
			}
			text, err := formatParamPlaceholder(syntax, params, n, widthSuffix(byte(next)))
			if err != nil {
				return "", err
			}
			out.WriteString(text)
			i = i + 2 + consumed
		case next >= '0' && next <= '9':
			n, consumed, err := scanDigits(runes, i+1)
			if err != nil {
				return "", err
			}
			text, err := formatParamPlaceholder(syntax, params, n, 0)
			if err != nil {
				return "", err
			}
			out.WriteString(text)
			i = i + 1 + consumed
		default:
			return "", ErrInvalidParameter("inline-asm template: unrecognized placeholder '%%%c'", next)
		}
	}
	return out.String(), nil
}

func isWidthLetter(r rune) bool {
	return r == 'b' || r == 'w' || r == 'd' || r == 'q'
}

// scanDigits reads the longest run of ASCII digits starting at from,
// greedily matching the widest placeholder index rather than stopping
// at the first digit.
func scanDigits(runes []rune, from int) (value int, consumed int, err error) {
	start := from
	for from < len(runes) && runes[from] >= '0' && runes[from] <= '9' {
		from++
	}
	if from == start {
		return 0, 0, ErrInvalidParameter("inline-asm template: expected a parameter index")
	}
	n, convErr := strconv.Atoi(string(runes[start:from]))
	if convErr != nil {
		return 0, 0, ErrInvalidParameter("inline-asm template: malformed parameter index %q", string(runes[start:from]))
	}
	return n, from - start, nil
}

func paramAt(params []AsmParam, n int) (AsmParam, error) {
	if n < 0 || n >= len(params) {
		return AsmParam{}, ErrOutOfBounds("inline-asm placeholder %%%d out of range (have %d parameters)", n, len(params))
	}
	return params[n], nil
}

func formatLabelPlaceholder(params []AsmParam, n int, funcName string, asmID int) (string, error) {
	p, err := paramAt(params, n)
	if err != nil {
		return "", err
	}
	if p.Kind != AsmParamLabel {
		return "", ErrInvalidState("inline-asm placeholder %%l%d does not reference a jump target", n)
	}
	return InlineAsmLabel(funcName, asmID, p.TargetUID), nil
}

// InlineAsmLabel builds the bit-exact jump-trampoline label name for
// one inline-asm jump target.
func InlineAsmLabel(funcName string, asmID, targetUID int) string {
	return "__kefir_asm_label_" + funcName + "_" + strconv.Itoa(asmID) + "_" + strconv.Itoa(targetUID)
}

func formatParamPlaceholder(syntax asmsink.Syntax, params []AsmParam, n int, forcedWidth int64) (string, error) {
	p, err := paramAt(params, n)
	if err != nil {
		return "", err
	}
	switch p.Kind {
	case AsmParamRegister:
		return formatRegisterOperand(syntax, p.Loc, forcedWidth)
	case AsmParamMemory:
		return formatMemoryOperand(syntax, p.Loc, forcedWidth)
	case AsmParamImmediate:
		return p.Immediate, nil
	default:
		return "", ErrInvalidState("inline-asm placeholder %%%d has no register/memory/immediate form", n)
	}
}

func formatRegisterOperand(syntax asmsink.Syntax, loc Location, forcedWidth int64) (string, error) {
	switch loc.Kind {
	case LocGPReg:
		width := forcedWidth
		if width == 0 {
			width = 8
		}
		return asmsink.FormatOperand(syntax, asmsink.Reg(SubRegister(loc.GPReg, int(width)))), nil
	case LocSSEReg:
		return asmsink.FormatOperand(syntax, asmsink.Reg(loc.SSEReg.String())), nil
	default:
		return "", ErrInvalidState("inline-asm register placeholder resolved to non-register location %s", loc)
	}
}

func formatMemoryOperand(syntax asmsink.Syntax, loc Location, forcedWidth int64) (string, error) {
	if loc.Kind == LocNested {
		resolved, ok := ResolveNested(loc)
		if !ok {
			return "", ErrInvalidState("inline-asm memory placeholder: nested location has no addressable parent")
		}
		loc = resolved
	}
	if loc.Kind != LocMemory {
		return "", ErrInvalidState("inline-asm memory placeholder resolved to non-memory location %s", loc)
	}
	width := forcedWidth
	if width == 0 {
		width = 8
	}
	return asmsink.FormatOperand(syntax, asmsink.SizedMem(baseRegName(loc.Base), loc.Offset, int(width))), nil
}

func baseRegName(b MemoryBase) string {
	if b == BaseRBP {
		return "rbp"
	}
	return "rsp"
}

// collectLabelParams returns the subset of params that are jump
// targets, preserving order — used by the module orchestrator to know
// which trampoline labels a fragment requires before emitting it.
func collectLabelParams(params []AsmParam) []AsmParam {
	return lo.Filter(params, func(p AsmParam, _ int) bool { return p.Kind == AsmParamLabel })
}
