// Package irfromc builds an ir.Type from a real C struct or union
// declaration, parsed with modernc.org/cc/v4, so the layout and
// classification core can be driven from actual C source text instead
// of programmatic ir.Builder calls alone.
package irfromc

import (
	"fmt"
	"io"
	"strings"

	"modernc.org/cc/v4"

	"github.com/amd64sysv/codegen/ir"
)

// Config selects the parse target, mirroring cc.NewConfig's own
// (targetOS, target) pair.
type Config struct {
	TargetOS string
	Target   string
}

// DefaultConfig targets linux/amd64, the only ABI this module
// implements.
func DefaultConfig() Config {
	return Config{TargetOS: "linux", Target: "amd64"}
}

// ParseTypeLayout parses source (named filename, for diagnostics) and
// returns the ir.Type for the struct or union named typeName, whether
// declared directly (`struct Foo { ... };`) or through a typedef
// (`typedef struct { ... } Foo;`).
func ParseTypeLayout(source io.Reader, filename, typeName string, cfg Config) (*ir.Type, error) {
	ccCfg, err := cc.NewConfig(cfg.TargetOS, cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("irfromc: configuring parser: %w", err)
	}
	ast, err := cc.Parse(ccCfg, []cc.Source{
		{Name: "<predefined>", Value: ccCfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
		{Name: filename, Value: source},
	})
	if err != nil {
		return nil, fmt.Errorf("irfromc: parsing %s: %w", filename, err)
	}

	spec, err := findStructOrUnion(ast, filename, typeName)
	if err != nil {
		return nil, err
	}

	b := ir.NewTypeBuilder()
	if err := convertStructOrUnion(b, spec); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// findStructOrUnion walks every external declaration in filename
// looking for a struct/union specifier tagged typeName, or a typedef
// naming typeName whose underlying type is a struct/union specifier.
func findStructOrUnion(ast *cc.AST, filename, typeName string) (*cc.StructOrUnionSpecifier, error) {
	for tu := ast.TranslationUnit; tu != nil; tu = tu.TranslationUnit {
		ed := tu.ExternalDeclaration
		if ed == nil || ed.Position().Filename != filename {
			continue
		}
		if ed.Case != cc.ExternalDeclarationDecl || ed.Declaration == nil {
			continue
		}
		if spec := searchDeclaration(ed.Declaration, typeName); spec != nil {
			return spec, nil
		}
	}
	return nil, fmt.Errorf("irfromc: no struct or union named %q found in %s", typeName, filename)
}

// searchDeclaration inspects one top-level Declaration for a matching
// struct/union tag, or for a typedef declarator whose name is typeName
// (in which case the tag match is against the underlying
// StructOrUnionSpecifier, not the typedef name itself, since tagged
// and typedef'd structs both resolve through the same
// DeclarationSpecifiers chain).
func searchDeclaration(decl *cc.Declaration, typeName string) *cc.StructOrUnionSpecifier {
	spec := findTypeSpecifier(decl.DeclarationSpecifiers)
	if spec == nil || spec.Case != cc.TypeSpecifierStructOrUnion || spec.StructOrUnionSpecifier == nil {
		return nil
	}
	sou := spec.StructOrUnionSpecifier
	if sou.Token.SrcStr() == typeName {
		return sou
	}
	for decls := decl.InitDeclaratorList; decls != nil; decls = decls.InitDeclaratorList {
		if decls.InitDeclarator == nil || decls.InitDeclarator.Declarator == nil {
			continue
		}
		if declaratorName(decls.InitDeclarator.Declarator) == typeName {
			return sou
		}
	}
	return nil
}

// findTypeSpecifier walks a DeclarationSpecifiers chain for its
// TypeSpecifier node, skipping storage-class, qualifier, and function
// specifiers that may precede or follow it.
func findTypeSpecifier(ds *cc.DeclarationSpecifiers) *cc.TypeSpecifier {
	for ; ds != nil; ds = ds.DeclarationSpecifiers {
		if ds.Case == cc.DeclarationSpecifiersTypeSpec && ds.TypeSpecifier != nil {
			return ds.TypeSpecifier
		}
	}
	return nil
}

func declaratorName(d *cc.Declarator) string {
	dd := d.DirectDeclarator
	for dd != nil && dd.Case != cc.DirectDeclaratorIdent {
		dd = dd.DirectDeclarator
	}
	if dd == nil {
		return ""
	}
	return dd.Token.SrcStr()
}

// convertStructOrUnion walks the member list of sou and emits its
// children into b after opening the appropriate aggregate.
func convertStructOrUnion(b *ir.TypeBuilder, sou *cc.StructOrUnionSpecifier) error {
	members, err := collectMembers(sou.StructDeclarationList)
	if err != nil {
		return err
	}

	var opener int
	isUnion := sou.StructOrUnion != nil && sou.StructOrUnion.Case == cc.StructOrUnionUnion
	if isUnion {
		opener = b.OpenUnion(len(members), 0)
	} else {
		opener = b.OpenStruct(len(members), 0)
	}
	for _, m := range members {
		if err := convertMember(b, opener, m); err != nil {
			return err
		}
	}
	return nil
}

// member is one flattened struct/union declarator: its declarator
// (nil for an anonymous nested struct/union member) and the
// SpecifierQualifierList governing its base type, plus an optional
// bit-field width.
type member struct {
	sql      *cc.SpecifierQualifierList
	decl     *cc.Declarator
	bitWidth int
	hasBits  bool
}

func collectMembers(list *cc.StructDeclarationList) ([]member, error) {
	var out []member
	for ; list != nil; list = list.StructDeclarationList {
		sd := list.StructDeclaration
		if sd == nil || sd.Case != cc.StructDeclarationDecl {
			continue
		}
		for sdl := sd.StructDeclaratorList; sdl != nil; sdl = sdl.StructDeclaratorList {
			d := sdl.StructDeclarator
			if d == nil {
				continue
			}
			m := member{sql: sd.SpecifierQualifierList, decl: d.Declarator}
			if d.Case == cc.StructDeclaratorBitField && d.ConstantExpression != nil {
				width, err := evalConstantInt(d.ConstantExpression)
				if err != nil {
					return nil, err
				}
				m.bitWidth = width
				m.hasBits = true
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func convertMember(b *ir.TypeBuilder, parentSlot int, m member) error {
	if m.hasBits {
		b.Bits(m.bitWidth, parentSlot)
		return nil
	}
	return convertDeclaredType(b, m.sql, m.decl)
}

// convertDeclaredType emits the full type of one declarator: pointer
// indirection collapses to Word, array wraps the element type, and a
// bare declarator resolves the SpecifierQualifierList's base type
// (scalar keyword or nested struct/union).
func convertDeclaredType(b *ir.TypeBuilder, sql *cc.SpecifierQualifierList, d *cc.Declarator) error {
	if d != nil && d.Pointer != nil {
		b.Scalar(ir.Word)
		return nil
	}
	if arrLen, elemDD, ok := arrayOf(d); ok {
		b.OpenArray(arrLen)
		return convertDirectDeclaratorElem(b, sql, elemDD)
	}
	return convertSpecifierQualifierList(b, sql)
}

// arrayOf reports whether d's direct-declarator chain is an array
// declarator and, if so, its constant length.
func arrayOf(d *cc.Declarator) (int, *cc.DirectDeclarator, bool) {
	if d == nil {
		return 0, nil, false
	}
	dd := d.DirectDeclarator
	for dd != nil {
		if dd.Case == cc.DirectDeclaratorArr && dd.AssignmentExpression != nil {
			n, err := evalConstantInt(dd.AssignmentExpression)
			if err != nil {
				return 0, nil, false
			}
			return n, dd, true
		}
		dd = dd.DirectDeclarator
	}
	return 0, nil, false
}

// convertDirectDeclaratorElem emits the element type of an array
// declarator: same base type as the array itself, without the array
// wrapper.
func convertDirectDeclaratorElem(b *ir.TypeBuilder, sql *cc.SpecifierQualifierList, _ *cc.DirectDeclarator) error {
	return convertSpecifierQualifierList(b, sql)
}

// convertSpecifierQualifierList resolves the base scalar or nested
// struct/union type named by a member's specifier/qualifier chain.
func convertSpecifierQualifierList(b *ir.TypeBuilder, sql *cc.SpecifierQualifierList) error {
	var names []string
	var nested *cc.StructOrUnionSpecifier
	for ; sql != nil; sql = sql.SpecifierQualifierList {
		if sql.Case != cc.SpecifierQualifierListTypeSpec || sql.TypeSpecifier == nil {
			continue
		}
		ts := sql.TypeSpecifier
		if ts.Case == cc.TypeSpecifierStructOrUnion && ts.StructOrUnionSpecifier != nil {
			nested = ts.StructOrUnionSpecifier
			continue
		}
		names = append(names, ts.Token.SrcStr())
	}
	if nested != nil {
		return convertStructOrUnion(b, nested)
	}
	code, err := scalarTypeCode(names)
	if err != nil {
		return err
	}
	b.Scalar(code)
	return nil
}

// scalarTypeCode maps a C type-specifier keyword sequence (as written,
// e.g. ["long", "long", "int"] or ["unsigned", "char"]) to the
// matching ir.TypeCode. Signedness does not change layout or
// classification, only size and keyword count do.
func scalarTypeCode(keywords []string) (ir.TypeCode, error) {
	joined := strings.Join(keywords, " ")
	switch {
	case contains(keywords, "_Bool"):
		return ir.Bool, nil
	case contains(keywords, "float") && contains(keywords, "_Complex"):
		return ir.ComplexFloat32, nil
	case contains(keywords, "double") && contains(keywords, "_Complex") && contains(keywords, "long"):
		return ir.ComplexLongDouble, nil
	case contains(keywords, "double") && contains(keywords, "_Complex"):
		return ir.ComplexFloat64, nil
	case contains(keywords, "float"):
		return ir.Float32, nil
	case contains(keywords, "double") && contains(keywords, "long"):
		return ir.LongDouble, nil
	case contains(keywords, "double"):
		return ir.Float64, nil
	case contains(keywords, "char"):
		return ir.Int8, nil
	case contains(keywords, "short"):
		return ir.Int16, nil
	case count(keywords, "long") >= 1:
		return ir.Int64, nil
	case contains(keywords, "int") || len(keywords) == 0:
		return ir.Int32, nil
	default:
		return 0, fmt.Errorf("irfromc: unsupported type specifier %q", joined)
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func count(xs []string, s string) int {
	n := 0
	for _, x := range xs {
		if x == s {
			n++
		}
	}
	return n
}

// evalConstantInt evaluates a constant expression, the only form this
// module's struct declarations need it for (array lengths and
// bit-field widths). cc/v4 type-checks every declaration it parses,
// so an expression node already carries its folded Value; this
// avoids re-implementing constant folding over the expression grammar.
func evalConstantInt(ce cc.ExpressionNode) (int, error) {
	if ce == nil {
		return 0, fmt.Errorf("irfromc: missing constant expression")
	}
	switch v := ce.Value().(type) {
	case cc.Int64Value:
		return int(v), nil
	case cc.UInt64Value:
		return int(v), nil
	default:
		return 0, fmt.Errorf("irfromc: unsupported constant expression value %T at %s", v, ce.Position())
	}
}
